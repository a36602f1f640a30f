package feedback

import "strings"

// stopwords excluded from pattern keys. Function words carry no signal about
// what knowledge is missing.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true,
	"i": true, "me": true, "my": true, "you": true, "your": true,
	"is": true, "are": true, "was": true, "be": true, "been": true,
	"do": true, "does": true, "did": true, "can": true, "could": true,
	"will": true, "would": true, "should": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"and": true, "or": true, "it": true, "this": true, "that": true,
	"please": true, "how": true, "what": true, "when": true, "where": true,
	"why": true, "who": true,
}

// maxPatternTokens bounds the key length; longer queries collapse to their
// leading content words.
const maxPatternTokens = 8

// PatternKey normalizes a query into its aggregation key: lowercase, strip
// punctuation, drop stopwords, keep the first content tokens joined by
// underscores. Deterministic, so re-aggregating a window always reproduces
// the same keys.
func PatternKey(query string) string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		token := strings.Map(keepAlnum, field)
		if token == "" || stopwords[token] {
			continue
		}
		tokens = append(tokens, token)
		if len(tokens) == maxPatternTokens {
			break
		}
	}
	return strings.Join(tokens, "_")
}

func keepAlnum(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return r
	default:
		return -1
	}
}
