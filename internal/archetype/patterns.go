package archetype

import (
	"regexp"
	"strings"

	"ronin/internal/store"
)

// archetypePatterns is the seed dictionary: verb-context templates (with a
// {tech} wildcard for the object of the verb) and fixed sentence indicators,
// one set per archetype. Ported from the job-description classifier this
// pipeline grew out of.
var archetypePatterns = map[store.Archetype]struct {
	VerbPatterns       []string
	SentenceIndicators []string
}{
	store.Builder: {
		VerbPatterns: []string{
			"build {tech}", "building {tech}", "design {tech}", "designing {tech}",
			"design and implement {tech}", "designing and implementing {tech}",
			"architect {tech}", "architecting {tech}", "implement {tech} from scratch",
			"implementing {tech} from scratch", "establish {tech}", "establishing {tech}",
			"create {tech}", "creating {tech}", "set up {tech}", "setting up {tech}",
			"develop new {tech}", "developing new {tech}", "stand up {tech}", "standing up {tech}",
			"greenfield", "from the ground up", "define standards", "new platform",
			"cloud-native", "founding", "build out", "building out", "develop and deploy",
			"developing and deploying", "create a new", "design the architecture",
			"lead the development of",
		},
		SentenceIndicators: []string{
			"no existing", "first hire", "new team", "newly created", "start-up phase",
			"zero to one", "ground floor", "vision for", "shape the direction", "greenfield",
		},
	},
	store.Fixer: {
		VerbPatterns: []string{
			"migrate {tech}", "migrating {tech}", "migrate from {tech} to {tech}",
			"consolidate {tech}", "refactor {tech}", "refactoring {tech}", "modernise {tech}",
			"modernising {tech}", "modernize {tech}", "modernizing {tech}", "replace {tech}",
			"uplift {tech}", "uplifting {tech}", "remediate {tech}", "transition from {tech}",
			"transition to {tech}", "sunset {tech}", "decommission {tech}", "decommissioning {tech}",
			"optimise {tech}", "re-platform", "improve existing", "reduce complexity",
			"streamline", "transform legacy", "clean up", "rationalise", "data migration",
			"target state", "target-state", "transformation program", "uplift program",
			"platform uplift", "system decommissioning",
		},
		SentenceIndicators: []string{
			"legacy", "tech debt", "technical debt", "end of life", "current state",
			"pain points", "inefficiencies", "aging infrastructure", "manual processes",
			"existing systems need", "outdated", "migration", "migrating", "modernisation",
			"modernization", "uplift", "target state", "target-state", "transformation",
			"decommission", "decommissioning",
		},
	},
	store.Operator: {
		VerbPatterns: []string{
			"maintain {tech}", "maintaining {tech}", "support {tech}", "supporting {tech}",
			"monitor {tech}", "monitoring {tech}", "ensure reliability of {tech}", "manage {tech}",
			"administer {tech}", "troubleshoot {tech}", "troubleshooting {tech}", "on-call",
			"incident response", "production support", "bau", "run book", "sla",
			"ensure uptime", "day-to-day management", "operational readiness", "observability",
			"platform reliability", "operational resilience", "runbook", "slo", "sli",
		},
		SentenceIndicators: []string{
			"steady state", "ongoing", "business as usual", "existing environment",
			"mature platform", "well-established", "ensure continuity", "support the team",
			"keep the lights on", "incident", "runbook", "observability",
		},
	},
	store.Translator: {
		VerbPatterns: []string{
			"enable {tech}", "train on {tech}", "translate requirements",
			"bridge technical and business", "self-serve", "data literacy",
			"empower stakeholders", "gather requirements", "communicate insights",
			"present findings", "democratise data",
		},
		SentenceIndicators: []string{
			"stakeholder", "non-technical", "business users", "executive reporting",
			"data-driven culture", "enable teams", "business intelligence",
			"analytics enablement", "self-serve", "semantic model",
		},
	},
}

// knownTech is the fixed technology vocabulary used for tech-stack tagging
// and for the outcome matcher's tech-overlap scoring step.
var knownTech = []string{
	"snowflake", "dbt", "airflow", "spark", "kafka", "terraform", "aws", "azure", "gcp",
	"python", "sql", "kubernetes", "docker", "fivetran", "looker", "tableau", "power bi",
	"databricks", "redshift", "bigquery", "matillion", "informatica", "talend", "ssis",
	"ssas", "ssrs", "kimball", "data vault", "medallion",
}

// KnownTech returns the fixed technology vocabulary.
func KnownTech() []string { return knownTech }

const techWildcard = `[a-z0-9][a-z0-9\-\s/&,.]{0,80}`

// compiledPattern is a verb-pattern template turned into a case-insensitive
// regexp; tokens are joined by a loose separator when the template contains
// the {tech} wildcard, allowing JD punctuation like "designing, building and
// implementing" between the verb and its object.
type compiledPattern struct {
	re *regexp.Regexp
}

func compileVerbPattern(template string) compiledPattern {
	hasWildcard := strings.Contains(template, "{tech}")
	sep := `\s+`
	if hasWildcard {
		sep = `[\s,;:/&\-]+`
	}

	words := strings.Fields(strings.ToLower(template))
	var sb strings.Builder
	for i, word := range words {
		if i > 0 {
			sb.WriteString(sep)
		}
		if word == "{tech}" {
			sb.WriteString(techWildcard)
		} else {
			sb.WriteString(regexp.QuoteMeta(word))
		}
	}
	return compiledPattern{re: regexp.MustCompile(sb.String())}
}

type compiledArchetype struct {
	VerbPatterns       []compiledPattern
	SentenceIndicators []string
	SeedPhrases        []string
}

func compilePatterns() map[store.Archetype]compiledArchetype {
	out := make(map[store.Archetype]compiledArchetype, len(archetypePatterns))
	for archetype, entry := range archetypePatterns {
		compiled := compiledArchetype{
			SentenceIndicators: make([]string, len(entry.SentenceIndicators)),
		}
		for _, v := range entry.VerbPatterns {
			compiled.VerbPatterns = append(compiled.VerbPatterns, compileVerbPattern(v))
		}
		for i, indicator := range entry.SentenceIndicators {
			compiled.SentenceIndicators[i] = strings.ToLower(indicator)
		}
		compiled.SeedPhrases = append(append([]string{}, entry.VerbPatterns...), entry.SentenceIndicators...)
		out[archetype] = compiled
	}
	return out
}
