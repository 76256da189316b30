package model

// RouteKind discriminates the possible outcomes of message classification.
type RouteKind string

const (
	// RouteRole delegates to a specialized role handler (tmwya, workout, ...).
	RouteRole RouteKind = "role"
	// RouteTool delegates to a direct tool invocation.
	RouteTool RouteKind = "tool"
	// RoutePat keeps the message in open conversation with the base personality.
	RoutePat RouteKind = "pat"
	// RouteNone means no deterministic rule fired; the caller decides the fallback.
	RouteNone RouteKind = "none"
)

// RouteHit is the result of classifying one user message.
// Target is set iff Kind is RouteRole or RouteTool.
type RouteHit struct {
	Kind       RouteKind      `json:"route"`
	Target     string         `json:"target,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Delegates reports whether the hit names a specialized handler.
func (h RouteHit) Delegates() bool {
	return (h.Kind == RouteRole || h.Kind == RouteTool) && h.Target != ""
}

// Valid checks the structural invariant: a target is present exactly when the
// kind requires one.
func (h RouteHit) Valid() bool {
	switch h.Kind {
	case RouteRole, RouteTool:
		return h.Target != ""
	case RoutePat, RouteNone:
		return h.Target == ""
	default:
		return false
	}
}
