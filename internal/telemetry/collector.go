package telemetry

import (
	"sync"
	"time"
)

// EventType enumerates what happened at a pipeline stage.
type EventType string

const (
	EventIntentClassified  EventType = "intent_classified"
	EventExtracted         EventType = "nlu_extracted"
	EventNutritionResolved EventType = "nutrition_resolved"
	EventAggregated        EventType = "macros_aggregated"
	EventValidated         EventType = "validation_run"
	EventMealLogged        EventType = "meal_logged"
	EventFormatted         EventType = "response_formatted"
	EventToneShaped        EventType = "tone_shaped"
	EventPipelineComplete  EventType = "pipeline_complete"
	EventCacheHit          EventType = "cache_hit"
	EventCacheMiss         EventType = "cache_miss"
	EventError             EventType = "error"
)

// Stage tags which part of the pipeline an event belongs to.
type Stage string

const (
	StageIntent    Stage = "intent"
	StageNLU       Stage = "nlu"
	StageResolve   Stage = "resolve"
	StageAggregate Stage = "aggregate"
	StageValidate  Stage = "validate"
	StageFormat    Stage = "format"
	StageTone      Stage = "tone"
	StageStore     Stage = "store"
	StageCache     Stage = "cache"
	StageGeneral   Stage = "general"
)

// TokenUsage is LLM token accounting attached to completion events.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Event is one immutable record of a pipeline stage. Events are never mutated
// or removed after being logged.
type Event struct {
	Type      EventType     `json:"event_type"`
	Stage     Stage         `json:"stage"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`

	LLMProvider string      `json:"llm_provider,omitempty"`
	LLMModel    string      `json:"llm_model,omitempty"`
	LLMTokens   *TokenUsage `json:"llm_tokens,omitempty"`

	Intent     string   `json:"intent,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	ItemCount  int      `json:"item_count,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Summary aggregates one pipeline run.
type Summary struct {
	TotalDuration time.Duration `json:"total_duration"`
	StageCount    map[Stage]int `json:"stage_count"`
	LLMCalls      int           `json:"llm_calls"`
	Errors        int           `json:"errors"`
	Events        []Event       `json:"events"`
}

// Collector is an append-only event log scoped to one user/session pair for
// the lifetime of one pipeline execution. Logging must never block or fail
// message processing, so every operation is infallible.
type Collector struct {
	userID    string
	sessionID string
	started   time.Time

	mu     sync.Mutex
	events []Event
}

// NewCollector creates a collector for one pipeline run.
func NewCollector(userID, sessionID string) *Collector {
	return &Collector{userID: userID, sessionID: sessionID, started: time.Now()}
}

// Log appends an event, stamping it with the current time.
func (c *Collector) Log(e Event) {
	e.Timestamp = time.Now()
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Events returns a copy of all logged events in append order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Summary returns aggregate counts per stage, LLM call count, error count and
// the full event list.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		TotalDuration: time.Since(c.started),
		StageCount:    make(map[Stage]int),
		Events:        make([]Event, len(c.events)),
	}
	copy(s.Events, c.events)
	for _, e := range c.events {
		s.StageCount[e.Stage]++
		if e.LLMProvider != "" {
			s.LLMCalls++
		}
		if !e.Success {
			s.Errors++
		}
	}
	return s
}

// HasErrors reports whether any logged event failed.
func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if !e.Success {
			return true
		}
	}
	return false
}

// FirstError returns the first failed event, if any.
func (c *Collector) FirstError() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if !e.Success {
			return e, true
		}
	}
	return Event{}, false
}
