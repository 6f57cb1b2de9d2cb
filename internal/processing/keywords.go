package processing

import (
	"regexp"
	"strings"
)

const (
	DefaultKeywordLimit     = 10
	DefaultKeywordMinLength = 4
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]+`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "nor": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {},
	"by": {}, "from": {}, "as": {}, "into": {}, "onto": {}, "upon": {}, "about": {},
	"is": {}, "was": {}, "are": {}, "were": {}, "been": {}, "be": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"must": {}, "can": {}, "shall": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "their": {}, "there": {},
	"they": {}, "them": {}, "its": {}, "it": {},
	"which": {}, "what": {}, "when": {}, "where": {}, "while": {}, "who": {}, "whom": {},
	"than": {}, "then": {}, "also": {}, "such": {}, "each": {}, "other": {},
	"both": {}, "between": {}, "through": {}, "within": {}, "how": {}, "why": {},
}

// ExtractKeywords returns up to limit distinct tokens from text, in the order
// they first appear. Tokens shorter than minLen and stop-words are dropped.
// A non-positive limit keeps every token.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := nonAlphanumeric.ReplaceAllString(strings.ToLower(text), " ")

	seen := make(map[string]struct{})
	var keywords []string
	for _, token := range strings.Fields(clean) {
		if len(token) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
		if limit > 0 && len(keywords) == limit {
			break
		}
	}
	return keywords
}

// Keywords extracts keywords for a standard description with the default limits.
func Keywords(description string) []string {
	return ExtractKeywords(description, DefaultKeywordLimit, DefaultKeywordMinLength)
}

// Extractor returns a keyword function bound to the given limits.
func Extractor(limit, minLen int) func(string) []string {
	return func(text string) []string {
		return ExtractKeywords(text, limit, minLen)
	}
}
