package pipeline

import (
	"regexp"
	"strings"
)

// foodPhrase strips the question scaffolding from an informational macro
// query, leaving the food description. Mirrors the macro-question route
// patterns: whatever can trigger that route must be extractable here.
var foodPhrase = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:macros?|calories?|nutrition|macro\s+breakdown)\s+(?:of|for|in)\s+(.+?)\s*\??\s*$`),
	regexp.MustCompile(`(?i)^\s*what(?:'s| is| are)?\s+(?:the\s+)?(?:macros?|calories?|nutrition)\s+(?:of|for|in)?\s*(.+?)\s*\??\s*$`),
}

// leadingArticles are trimmed from extracted food text.
var leadingArticles = regexp.MustCompile(`(?i)^(a|an|the|some)\s+`)

// extractFood pulls the food description out of a macro question.
// Returns "" when no food phrase can be isolated.
func extractFood(text string) string {
	for _, rx := range foodPhrase {
		if m := rx.FindStringSubmatch(text); m != nil {
			food := strings.TrimSpace(m[1])
			food = leadingArticles.ReplaceAllString(food, "")
			food = strings.Trim(food, " .,!?")
			if food != "" {
				return food
			}
		}
	}
	return ""
}
