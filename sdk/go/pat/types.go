package pat

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's subscription tier.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleBeta     Role = "beta"
	RolePaidUser Role = "paid_user"
	RoleFreeUser Role = "free_user"
)

// Message is one turn of prior conversation context.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// ChatRequest is the input to Chat.
type ChatRequest struct {
	// Message is the user's text for this turn. Required.
	Message string `json:"message"`

	// SessionID groups turns into a conversation. Defaults to the
	// authenticated user ID when empty.
	SessionID string `json:"session_id,omitempty"`

	// History is prior conversation context replayed to the model.
	History []Message `json:"history,omitempty"`
}

// RouteHit is the classifier's decision for one message.
type RouteHit struct {
	Kind       string  `json:"kind"` // role | tool | pat | none
	Target     string  `json:"target,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Macros holds macro-nutrient totals. Kcal is kilocalories; the rest grams.
type Macros struct {
	Kcal     float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
	FiberG   float64 `json:"fiber_g,omitempty"`
}

// MacroEstimate is a resolved macro record for one food description.
type MacroEstimate struct {
	Macros     Macros  `json:"macros"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
	Basis      string  `json:"basis,omitempty"` // cooked | raw | as-served
}

// MealLog is one persisted meal entry.
type MealLog struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Slot        string    `json:"slot"` // breakfast | lunch | dinner | snack
	EatenAt     time.Time `json:"eaten_at"`
	Macros      Macros    `json:"macros"`
	Confidence  float64   `json:"confidence,omitempty"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatResult is the outcome of one conversational turn.
type ChatResult struct {
	Reply   string           `json:"reply"`
	Route   RouteHit         `json:"route"`
	Target  string           `json:"target"`
	Denied  bool             `json:"denied,omitempty"`
	Meal    *MealLog         `json:"meal,omitempty"`
	Events  []map[string]any `json:"events,omitempty"`
	Summary map[string]any   `json:"summary,omitempty"`
}

// RoutePreview is the result of classifying a message without executing it.
type RoutePreview struct {
	Route  RouteHit `json:"route"`
	Target string   `json:"target"`
}

// APIBinding describes the model call an agent makes.
type APIBinding struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	ResponseFormat  string  `json:"response_format"`
	JSONSchema      string  `json:"json_schema,omitempty"`
}

// AgentConfig is one personality agent.
type AgentConfig struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	RoleSlug     string     `json:"role_slug"`
	Phase        string     `json:"phase"` // pre | core | post
	Enabled      bool       `json:"enabled"`
	Order        int        `json:"order"`
	Instructions string     `json:"instructions"`
	PromptTmpl   string     `json:"prompt_template"`
	Tone         string     `json:"tone"`
	API          APIBinding `json:"api"`

	EnabledForPaid      bool `json:"enabled_for_paid"`
	EnabledForFreeTrial bool `json:"enabled_for_free_trial"`
	EnabledForBeta      bool `json:"enabled_for_beta"`
}

// AgentList is the effective agent set.
type AgentList struct {
	Version  int           `json:"version"`
	Agents   []AgentConfig `json:"agents"`
	Migrated bool          `json:"migrated"`
}

// Health is the server's health report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage,omitempty"`
}
