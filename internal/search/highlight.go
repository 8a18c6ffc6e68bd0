package search

import (
	"regexp"
	"sort"

	"github.com/hyperjump/codesight/internal/scoring"
)

const (
	highlightOpen  = "«match»"
	highlightClose = "«/match»"
)

// Highlight wraps case-insensitive, word-boundary occurrences of any query
// token in text with highlightOpen/highlightClose markers.
func Highlight(text, queryText string) string {
	tokens := scoring.Tokenize(queryText)
	if len(tokens) == 0 {
		return text
	}

	sort.Slice(tokens, func(i, j int) bool { return len(tokens[i]) > len(tokens[j]) })

	seen := make(map[string]struct{}, len(tokens))
	var pattern string
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		if pattern != "" {
			pattern += "|"
		}
		pattern += regexp.QuoteMeta(tok)
	}
	if pattern == "" {
		return text
	}

	re, err := regexp.Compile(`(?i)\b(` + pattern + `)\b`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, highlightOpen+"$1"+highlightClose)
}
