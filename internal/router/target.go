package router

import "github.com/hipat/pat/internal/model"

// Handler slugs. These are the only targets the pipeline will ever delegate
// to; anything else degrades to open conversation.
const (
	SlugTMWYA         = "tmwya"          // "tell me what you ate" meal logging
	SlugWorkout       = "workout"        // workout discussion
	SlugMMB           = "mmb"            // "make me better" feedback
	SlugMacroQuestion = "macro-question" // informational macro lookup
	SlugMacroLogging  = "macro-logging"  // log a previously shown macro answer
	SlugUndo          = "undo"           // undo last meal (tool)

	// DefaultTarget is the open-ended conversational handler every ambiguous
	// or low-confidence classification falls back to.
	DefaultTarget = "ask-me-anything"
)

// MinConfidence is the floor below which a scored route is not trusted.
const MinConfidence = 0.5

var allowedTargets = map[string]bool{
	SlugTMWYA:         true,
	SlugWorkout:       true,
	SlugMMB:           true,
	SlugMacroQuestion: true,
	SlugMacroLogging:  true,
	SlugUndo:          true,
}

// legacyTargets maps long-form slugs that older clients still send.
var legacyTargets = map[string]string{
	"tell-me-what-you-ate":       SlugTMWYA,
	"tell-me-about-your-workout": SlugWorkout,
	"make-me-better":             SlugMMB,
}

// NormalizeTarget maps legacy long-form slugs onto their canonical form.
func NormalizeTarget(slug string) string {
	if canonical, ok := legacyTargets[slug]; ok {
		return canonical
	}
	return slug
}

// ChooseTarget validates a proposed route against the allow-list and
// confidence floor. Pass a negative confidence when the score is not
// applicable (deterministic rules). Any violation substitutes DefaultTarget:
// mis-classification degrades to open conversation, never to a wrong handler.
func ChooseTarget(kind model.RouteKind, target string, confidence float64) string {
	if kind == model.RouteNone {
		return DefaultTarget
	}
	target = NormalizeTarget(target)
	if !allowedTargets[target] {
		return DefaultTarget
	}
	if confidence >= 0 && confidence < MinConfidence {
		return DefaultTarget
	}
	return target
}
