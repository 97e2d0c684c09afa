package outcome

import (
	"strings"
)

// tokenize lowercases and splits on anything that isn't a letter or digit,
// dropping empty tokens.
func tokenize(s string) map[string]struct{} {
	var b strings.Builder
	tokens := make(map[string]struct{})
	flush := func() {
		if b.Len() > 0 {
			tokens[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// jaccard returns the token-set Jaccard similarity of a and b, in [0, 1].
// Two empty token sets are defined as dissimilar (0), not identical, since
// an empty name or title carries no matching signal either way.
func jaccard(a, b string) float64 {
	setA, setB := tokenize(a), tokenize(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// rootDomain strips subdomains down to the registrable label the spec's
// domain heuristics key off — "jobs.mail.indeed.com" -> "indeed".
func rootDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return domain
	}
	return parts[len(parts)-2]
}

func domainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// techOverlapScore adds 0.1 for every technology tag that appears as a
// case-insensitive substring of body.
func techOverlapScore(body string, tags []string) float64 {
	lower := strings.ToLower(body)
	score := 0.0
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(tag)) {
			score += 0.1
		}
	}
	return score
}
