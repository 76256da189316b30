package model

import "fmt"

// AgentPhase places an agent in the swarm lifecycle.
type AgentPhase string

const (
	PhasePre  AgentPhase = "pre"  // runs before delegation (redaction, routing)
	PhaseCore AgentPhase = "core" // the role's main work
	PhasePost AgentPhase = "post" // tone shaping, formatting
)

// TonePreset names a canned voice adjustment applied by the tone governor.
type TonePreset string

const (
	ToneNeutral    TonePreset = "neutral"
	ToneSupportive TonePreset = "supportive"
	ToneDirect     TonePreset = "direct"
)

// APIBinding describes the LLM call an agent makes. Provider and model are
// configuration, not contract: swapping them must not change agent semantics.
type APIBinding struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	ResponseFormat  string  `json:"response_format"` // "text" or "json"
	JSONSchema      string  `json:"json_schema,omitempty"`
}

// AgentConfig is one personality agent: a named unit of behavior inside a
// role's swarm. Order is unique among enabled agents of a swarm at evaluation
// time; ties break by insertion order.
type AgentConfig struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	RoleSlug     string     `json:"role_slug"` // explicit role membership, never inferred from ID
	Phase        AgentPhase `json:"phase"`
	Enabled      bool       `json:"enabled"`
	Order        int        `json:"order"`
	Instructions string     `json:"instructions"`
	PromptTmpl   string     `json:"prompt_template"`
	Tone         TonePreset `json:"tone"`
	API          APIBinding `json:"api"`

	// Per-tier availability flags, OR-aggregated into RoleAccessFlags.
	EnabledForPaid      bool `json:"enabled_for_paid"`
	EnabledForFreeTrial bool `json:"enabled_for_free_trial"`
	EnabledForBeta      bool `json:"enabled_for_beta"`
}

// Validate checks the structural fields an override must carry.
func (a AgentConfig) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("agent: id is required")
	}
	switch a.Phase {
	case PhasePre, PhaseCore, PhasePost:
	default:
		return fmt.Errorf("agent %s: invalid phase %q", a.ID, a.Phase)
	}
	if a.API.ResponseFormat != "" && a.API.ResponseFormat != "text" && a.API.ResponseFormat != "json" {
		return fmt.Errorf("agent %s: invalid response format %q", a.ID, a.API.ResponseFormat)
	}
	return nil
}

// RoleAccessFlags aggregates per-tier availability across every agent of a
// role. A role with no agents yields the zero value: deny-by-default.
type RoleAccessFlags struct {
	Enabled             bool `json:"enabled"`
	EnabledForPaid      bool `json:"enabled_for_paid"`
	EnabledForFreeTrial bool `json:"enabled_for_free_trial"`
	EnabledForBeta      bool `json:"enabled_for_beta"`
}
