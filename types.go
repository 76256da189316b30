package pat

// Role is a user's subscription tier as carried in the JWT.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleBeta     Role = "beta"
	RolePaidUser Role = "paid_user"
	RoleFreeUser Role = "free_user"
)

// Macros holds macro-nutrient totals. Kcal is kilocalories; the rest are
// grams. A standalone mirror of the internal type — no internal imports, safe
// to use from outside the module.
type Macros struct {
	Kcal     float64
	ProteinG float64
	CarbsG   float64
	FatG     float64
	FiberG   float64
}

// MacroEstimate is a resolved macro-nutrient record for one food description.
type MacroEstimate struct {
	Macros     Macros
	Confidence float64
	Source     string
	Basis      string // cooked | raw | as-served
}

// Message is one turn of conversation context passed to a Completer.
type Message struct {
	Role    string // system | user | assistant
	Content string
}

// Completion is the result of a Completer call.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// CompletionRequest carries the composed instructions plus the agent's model
// binding for one Completer call.
type CompletionRequest struct {
	Messages        []Message
	Provider        string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	ResponseFormat  string // "text" or "json"
}
