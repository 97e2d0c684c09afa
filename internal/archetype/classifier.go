package archetype

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ronin/internal/embedding"
	"ronin/internal/store"
)

// similarityGate and similarityWeight implement spec.md §4.2 step 2's
// embedding-similarity contribution: similarity*weight when similarity
// is at least the gate.
const (
	similarityGate   = 0.5
	similarityWeight = 0.3

	indicatorWeight = 0.5
	verbWeight      = 1.0
)

var contractPrior = map[store.Archetype]float64{
	store.Builder: 0.1, store.Fixer: 0.1, store.Operator: -0.05, store.Translator: -0.05,
}

var permanentPrior = map[store.Archetype]float64{
	store.Builder: -0.05, store.Fixer: -0.05, store.Operator: 0.05, store.Translator: 0.05,
}

var sentenceBreak = regexp.MustCompile(`[.!?]+(\s+)`)

func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var sentences []string
	last := 0
	for _, loc := range sentenceBreak.FindAllStringSubmatchIndex(text, -1) {
		sentenceEnd := loc[2]
		if s := strings.TrimSpace(text[last:sentenceEnd]); s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if last < len(text) {
		if rest := strings.TrimSpace(text[last:]); rest != "" {
			sentences = append(sentences, rest)
		}
	}
	return sentences
}

// Classifier scores a job listing against the four work archetypes and
// extracts the supporting metadata (role type, seniority, tech tags) used
// elsewhere in the pipeline. It is deterministic given its seed dictionary
// and the embedding model version it was built with.
type Classifier struct {
	model     embedding.Model
	compiled  map[store.Archetype]compiledArchetype
	centroids map[store.Archetype][]float64
}

// New builds a Classifier, computing each archetype's seed centroid (the
// mean embedding of its verb patterns and sentence indicators) up front.
func New(ctx context.Context, model embedding.Model) (*Classifier, error) {
	c := &Classifier{
		model:    model,
		compiled: compilePatterns(),
	}
	c.centroids = make(map[store.Archetype][]float64, len(c.compiled))
	for archetype, entry := range c.compiled {
		var vectors [][]float64
		for _, phrase := range entry.SeedPhrases {
			vec, err := model.Embed(ctx, phrase)
			if err != nil {
				return nil, fmt.Errorf("embedding seed phrase for %s: %w", archetype, err)
			}
			vectors = append(vectors, vec.Values)
		}
		c.centroids[archetype] = embedding.Mean(vectors)
	}
	return c, nil
}

// Metadata is the supplemental extraction (job type, seniority, tech tags)
// performed alongside classification; every field is derived from simple
// substring checks against the listing text and title.
type Metadata struct {
	RoleType  store.RoleType
	Seniority store.Seniority
	TechTags  []string
	Prior     map[store.Archetype]float64
}

// ExtractMetadata derives RoleType, Seniority, and TechTags from listing
// text and applies the contract/permanent archetype prior named in spec.md
// §4.2 step 3.
func (c *Classifier) ExtractMetadata(text, title string) Metadata {
	textLower := strings.ToLower(text)
	titleLower := strings.ToLower(title)

	roleType := store.RoleUnknown
	switch {
	case containsAny(textLower, "contract", "fixed term", "fixed-term", "6 month", "12 month"):
		roleType = store.RoleContract
	case containsAny(textLower, "permanent", "full-time", "full time", "ongoing"):
		roleType = store.RolePermanent
	}

	var techTags []string
	for _, tech := range knownTech {
		if strings.Contains(textLower, tech) {
			techTags = append(techTags, tech)
		}
	}

	seniority := store.SeniorityMid
	switch {
	case containsAny(titleLower, "junior", "graduate", "entry"):
		seniority = store.SeniorityJunior
	case containsAny(titleLower, "senior", "sr.", "sr "):
		seniority = store.SenioritySenior
	case containsAny(titleLower, "lead", "principal", "staff", "head of"):
		seniority = store.SeniorityLead
	}

	var prior map[store.Archetype]float64
	switch roleType {
	case store.RoleContract:
		prior = contractPrior
	case store.RolePermanent:
		prior = permanentPrior
	}

	return Metadata{RoleType: roleType, Seniority: seniority, TechTags: techTags, Prior: prior}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Result is the full output of Classify: normalised scores, the primary
// archetype, and the listing's own embedding (reused downstream by the
// centroid engine so the JD is only embedded once).
type Result struct {
	Scores    map[store.Archetype]float64
	Primary   store.Archetype
	Embedding embedding.Vector
	Metadata  Metadata
}

// Classify implements spec.md §4.2 exactly: sentence split, verb-pattern and
// sentence-indicator scoring, seed-centroid similarity, contract/permanent
// priors applied before normalisation, uniform fallback when every score is
// zero, and tie-break by the fixed archetype order.
func (c *Classifier) Classify(ctx context.Context, text, title string) (Result, error) {
	metadata := c.ExtractMetadata(text, title)
	sentences := splitSentences(text)

	raw := map[store.Archetype]float64{
		store.Builder: 0, store.Fixer: 0, store.Operator: 0, store.Translator: 0,
	}

	for _, sentence := range sentences {
		sentenceLower := strings.ToLower(sentence)

		for archetype, entry := range c.compiled {
			for _, pattern := range entry.VerbPatterns {
				if pattern.re.MatchString(sentenceLower) {
					raw[archetype] += verbWeight
				}
			}
			for _, indicator := range entry.SentenceIndicators {
				if strings.Contains(sentenceLower, indicator) {
					raw[archetype] += indicatorWeight
				}
			}
		}

		sentenceEmbedding, err := c.model.Embed(ctx, sentence)
		if err != nil {
			return Result{}, fmt.Errorf("embedding sentence: %w", err)
		}
		for archetype, centroid := range c.centroids {
			similarity := embedding.Cosine(sentenceEmbedding.Values, centroid)
			if similarity >= similarityGate {
				raw[archetype] += similarity * similarityWeight
			}
		}
	}

	for archetype, shift := range metadata.Prior {
		raw[archetype] += shift
	}

	total := 0.0
	for archetype, score := range raw {
		if score < 0 {
			score = 0
		}
		raw[archetype] = score
		total += score
	}

	scores := make(map[store.Archetype]float64, len(raw))
	if total > 0 {
		for archetype, score := range raw {
			scores[archetype] = score / total
		}
	} else {
		for _, archetype := range store.Archetypes {
			scores[archetype] = 0.25
		}
	}

	listingEmbedding, err := c.model.Embed(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("embedding listing text: %w", err)
	}

	return Result{
		Scores:    scores,
		Primary:   primaryArchetype(scores),
		Embedding: listingEmbedding,
		Metadata:  metadata,
	}, nil
}

// primaryArchetype returns the argmax, breaking ties by the fixed order
// builder > fixer > operator > translator.
func primaryArchetype(scores map[store.Archetype]float64) store.Archetype {
	best := store.Archetypes[0]
	bestScore := scores[best]
	for _, archetype := range store.Archetypes[1:] {
		if scores[archetype] > bestScore {
			best = archetype
			bestScore = scores[archetype]
		}
	}
	return best
}
