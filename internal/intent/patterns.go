package intent

import (
	"regexp"
	"strings"
)

// PatternRule is one regex rule of the pattern tier.
type PatternRule struct {
	Intent     Type
	Pattern    *regexp.Regexp
	Confidence float64
	Enabled    bool
}

// DefaultPatterns returns the built-in rule set in priority order. Tenants
// can disable individual intents via DisablePattern.
func DefaultPatterns() []PatternRule {
	return []PatternRule{
		{
			Intent:     TypeGreeting,
			Pattern:    regexp.MustCompile(`^(hi|hello|hey|good (morning|afternoon|evening)|greetings)\b`),
			Confidence: 0.95,
			Enabled:    true,
		},
		{
			Intent:     TypeFarewell,
			Pattern:    regexp.MustCompile(`^(bye|goodbye|see you|farewell|good night)\b|\b(bye|goodbye)[.!]*$`),
			Confidence: 0.95,
			Enabled:    true,
		},
		{
			Intent:     TypeGratitude,
			Pattern:    regexp.MustCompile(`\b(thank(s| you)?|appreciate(d)?|cheers)\b`),
			Confidence: 0.9,
			Enabled:    true,
		},
		{
			Intent:     TypeHelp,
			Pattern:    regexp.MustCompile(`\b(help|support|assist(ance)?)\b|what can you do`),
			Confidence: 0.85,
			Enabled:    true,
		},
		{
			Intent:     TypeKnowledgeQuery,
			Pattern:    regexp.MustCompile(`^(what|when|where|who|why|how|which|can i|do you|does|is there)\b|\?$`),
			Confidence: 0.85,
			Enabled:    true,
		},
	}
}

// normalize lowercases, trims, and collapses internal whitespace so patterns
// and canonical examples see a stable form.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// matchPatterns runs the rules in order against normalized text and returns
// the first enabled rule whose pattern matches with confidence at or above
// the threshold. Order is the tie-break.
func matchPatterns(rules []PatternRule, normalized string, threshold float64) (Intent, bool) {
	for _, rule := range rules {
		if !rule.Enabled || rule.Confidence < threshold {
			continue
		}
		if rule.Pattern.MatchString(normalized) {
			return Intent{Type: rule.Intent, Confidence: rule.Confidence, Method: MethodPattern}, true
		}
	}
	return Intent{}, false
}
