// Package router contains the deterministic first-pass classifier for user
// messages. It maps raw text to a named handler using an ordered registry of
// regular-expression rules plus explicit tie-break guardrails, so every
// routing decision is reproducible and explainable without an LLM call.
package router

import (
	"regexp"
	"strings"

	"github.com/hipat/pat/internal/model"
)

// Entry is one named rule set. Patterns are evaluated in order and the first
// match wins within the entry; whether the entry fires at all is independent
// of other entries.
type Entry struct {
	Slug       string
	Kind       model.RouteKind
	Confidence float64
	Patterns   []*regexp.Regexp
}

// Registry order is the priority order: earlier entries win ties that the
// guardrails don't resolve first.
var registry = []Entry{
	{
		// Confirmation of a previously displayed macro answer ("log it").
		Slug: SlugMacroLogging, Kind: model.RouteRole, Confidence: 1.0,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*(log|log\s+it|log\s+all|log\s+that|save\s+it)\s*$`),
			regexp.MustCompile(`(?i)^\s*log\s+(the\s+)?[a-z0-9\s]+?\s*(only)?\s*$`),
			regexp.MustCompile(`(?i)^\s*log\s+.+\s+with\s+.+$`),
			regexp.MustCompile(`(?i)^\s*(add|save|record)\s+.+\s+(to|for)\s+(breakfast|lunch|dinner|snack)`),
		},
	},
	{
		Slug: SlugUndo, Kind: model.RouteTool, Confidence: 0.95,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*undo(\s+(last(\s+meal)?|that))?\s*$`),
		},
	},
	{
		Slug: SlugMacroQuestion, Kind: model.RouteRole, Confidence: 0.95,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(^|\b)(macros?\s+of|what.*macros|macro\s+breakdown|calories\s+of)`),
			regexp.MustCompile(`(?i)\b(tell\s+me|what\s+(are|is)|how\s+many)\s+(the\s+)?(macros?|calories?|nutrition)\s+(of|for|in)\b`),
			regexp.MustCompile(`(?i)\b(macros?|calories?|nutrition)\s+(of|for|in)\s+`),
		},
	},
	{
		Slug: SlugTMWYA, Kind: model.RouteRole, Confidence: 0.9,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(ate|eaten|eating|consumed|meal|meals|food|foods|calories?|macros?|protein|carbs?|carbohydrates?|fat|nutrition|nutritional|breakfast|lunch|dinner|snack)\b`),
		},
	},
	{
		Slug: SlugWorkout, Kind: model.RouteRole, Confidence: 0.9,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(workout|exercise|gym|training|lifted|reps|sets|weights?|squat|bench|deadlift|cardio|running|cycling)\b`),
		},
	},
	{
		Slug: SlugMMB, Kind: model.RouteRole, Confidence: 0.85,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(feedback|improve|better|suggestion|enhance|make.*better|optimize|fix|help.*improve)\b`),
		},
	},
}

// noLogEscape lets the user opt any message out of food routing entirely.
var noLogEscape = "#no-log"

// explicitLogIntent detects a logging verb co-occurring with a meal-type noun,
// used to break the informational-vs-logging tie.
var explicitLogIntent = regexp.MustCompile(`(?i)\b(log|save|add|record)\b.*\b(meal|food|breakfast|lunch|dinner|snack)\b`)

// Registry exposes a copy of the built-in rule sets for debug endpoints.
func Registry() []Entry {
	out := make([]Entry, len(registry))
	copy(out, registry)
	return out
}

// FastRoute classifies raw user text into exactly one RouteHit. It is a pure
// function of the text and the static registry: no side effects, never panics,
// and empty text simply yields the none variant.
func FastRoute(text string) model.RouteHit {
	if strings.Contains(text, noLogEscape) {
		return model.RouteHit{Kind: model.RoutePat, Confidence: 1.0, Reason: "no-log escape hatch"}
	}

	var hits []Entry
	for _, e := range registry {
		for _, rx := range e.Patterns {
			if rx.MatchString(text) {
				hits = append(hits, e)
				break
			}
		}
	}
	if len(hits) == 0 {
		return model.RouteHit{Kind: model.RouteNone}
	}

	// Guardrail 1: a logging continuation is the user confirming an answer we
	// already showed them. It beats any simultaneous match.
	for _, e := range hits {
		if e.Slug == SlugMacroLogging {
			return hit(e)
		}
	}

	// Guardrail 2: informational macro query vs logging intent. Only an
	// explicit logging verb next to a meal noun flips the decision to logging.
	if containsSlug(hits, SlugMacroQuestion) && containsSlug(hits, SlugTMWYA) {
		if explicitLogIntent.MatchString(text) {
			return hit(findSlug(hits, SlugTMWYA))
		}
		return hit(findSlug(hits, SlugMacroQuestion))
	}

	// Guardrail 3: registry declaration order is the priority order.
	return hit(hits[0])
}

func hit(e Entry) model.RouteHit {
	return model.RouteHit{Kind: e.Kind, Target: e.Slug, Confidence: e.Confidence}
}

func containsSlug(entries []Entry, slug string) bool {
	for _, e := range entries {
		if e.Slug == slug {
			return true
		}
	}
	return false
}

func findSlug(entries []Entry, slug string) Entry {
	for _, e := range entries {
		if e.Slug == slug {
			return e
		}
	}
	return Entry{}
}
