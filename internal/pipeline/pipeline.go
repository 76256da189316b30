// Package pipeline orchestrates one conversational turn: route, gate,
// resolve, persist, compose, complete. Every stage appends to the run's
// telemetry collector; a stage failure degrades the reply but never panics
// the turn.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hipat/pat/internal/llm"
	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/personality"
	"github.com/hipat/pat/internal/prompt"
	"github.com/hipat/pat/internal/router"
	"github.com/hipat/pat/internal/telemetry"
	"github.com/hipat/pat/internal/timeparse"
)

// LLMRouteThreshold is the confidence floor for the model-based router
// fallback. Stricter than the deterministic floor: a hallucinated route is
// worse than open conversation.
const LLMRouteThreshold = 0.6

// fallbackReply is returned when the completion provider is unreachable.
const fallbackReply = "I'm having trouble answering right now. Give me a moment and try again."

// MealStore persists meal entries. Nil disables persistence; meals are then
// acknowledged but not stored.
type MealStore interface {
	InsertMealLog(ctx context.Context, log model.MealLog) (model.MealLog, error)
	DeleteLastMealLog(ctx context.Context, userID string) (model.MealLog, error)
}

// Input is one user turn.
type Input struct {
	Profile   model.Profile
	SessionID string
	Message   string
	History   []llm.Message
}

// Result is the outcome of one turn.
type Result struct {
	Reply   string            `json:"reply"`
	Route   model.RouteHit    `json:"route"`
	Target  string            `json:"target"`
	Denied  bool              `json:"denied,omitempty"`
	Meal    *model.MealLog    `json:"meal,omitempty"`
	Events  []telemetry.Event `json:"events,omitempty"`
	Summary telemetry.Summary `json:"summary"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	agents   *personality.Store
	client   llm.Client
	resolver nutrition.Resolver
	meals    MealStore
	sessions *Sessions
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a pipeline. meals may be nil (no persistence).
func New(agents *personality.Store, client llm.Client, resolver nutrition.Resolver, meals MealStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		agents:   agents,
		client:   client,
		resolver: resolver,
		meals:    meals,
		sessions: NewSessions(DefaultSessionTTL),
		logger:   logger,
		now:      time.Now,
	}
}

// Handle runs one turn end to end. The returned error is reserved for
// context cancellation and configuration failures; degraded upstreams
// produce a Result with error events instead.
func (p *Pipeline) Handle(ctx context.Context, in Input) (Result, error) {
	start := p.now()
	col := telemetry.NewCollector(in.Profile.UserID, in.SessionID)

	state, migrated, err := p.agents.Load(ctx)
	if err != nil {
		p.logger.Warn("personality load failed, using defaults", "error", err)
		state = personality.State{Version: personality.CurrentVersion, Agents: personality.Defaults()}
	}
	if migrated {
		p.logger.Info("personality overrides reset to defaults after version change")
	}
	roles, notes := prompt.BuildRoles(state.Agents)
	for _, n := range notes {
		p.logger.Debug("personality load note", "note", n)
	}
	gate := personality.NewGate(state.Agents)

	hit := router.FastRoute(in.Message)
	col.Log(telemetry.Event{
		Type: telemetry.EventIntentClassified, Stage: telemetry.StageIntent,
		Intent: string(hit.Kind), Confidence: hit.Confidence, Success: true,
		Metadata: map[string]any{"target": hit.Target, "source": "rules", "message": messageDigest(in.Message)},
	})

	if hit.Kind == model.RouteNone {
		hit = p.llmRoute(ctx, col, roles, in.Message)
	}

	target := router.ChooseTarget(hit.Kind, hit.Target, hit.Confidence)

	if target != router.DefaultTarget {
		// Undo mutates the meal log, so it borrows the meal-logging gate.
		gateTarget := target
		if target == router.SlugUndo {
			gateTarget = router.SlugTMWYA
		}
		if d := gate.Check(in.Profile, gateTarget); !d.Allowed {
			col.Log(telemetry.Event{
				Type: telemetry.EventValidated, Stage: telemetry.StageValidate,
				Success:  true,
				Metadata: map[string]any{"decision": "denied", "reason": d.Reason, "target": target},
			})
			p.finish(col, start)
			return Result{
				Reply: d.Message, Route: hit, Target: target, Denied: true,
				Events: col.Events(), Summary: col.Summary(),
			}, nil
		}
	}

	res := Result{Route: hit, Target: target}

	if target == router.SlugUndo {
		res.Reply = p.handleUndo(ctx, col, in)
		p.finish(col, start)
		res.Events, res.Summary = col.Events(), col.Summary()
		return res, nil
	}

	var facts []string
	switch target {
	case router.SlugTMWYA:
		facts = p.handleMeal(ctx, col, in, in.Message, &res)
	case router.SlugMacroQuestion:
		facts = p.handleMacroQuestion(ctx, col, in)
	case router.SlugMacroLogging:
		facts = p.handleMacroLogging(ctx, col, in, &res)
	}

	res.Reply = p.complete(ctx, col, roles, target, facts, in)
	p.finish(col, start)
	res.Events, res.Summary = col.Events(), col.Summary()
	return res, ctx.Err()
}

// llmRoute is the fallback classifier for messages no deterministic rule
// matched. Any malformed or low-confidence answer degrades to open
// conversation.
func (p *Pipeline) llmRoute(ctx context.Context, col *telemetry.Collector, roles map[string]prompt.RoleProfile, message string) model.RouteHit {
	degrade := model.RouteHit{Kind: model.RoutePat, Reason: "router fallback degraded"}

	rp, ok := roles["router"]
	if !ok {
		return degrade
	}

	t0 := p.now()
	resp, err := p.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: rp.Directives},
			{Role: "user", Content: message},
		},
		Binding: rp.API,
	})
	if err != nil {
		col.Log(telemetry.Event{
			Type: telemetry.EventError, Stage: telemetry.StageIntent,
			Duration: p.now().Sub(t0), Error: err.Error(),
		})
		return degrade
	}

	var parsed struct {
		Route      string  `json:"route"`
		Target     string  `json:"target"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		col.Log(telemetry.Event{
			Type: telemetry.EventError, Stage: telemetry.StageIntent,
			Duration: p.now().Sub(t0), Error: fmt.Sprintf("router fallback returned malformed JSON: %v", err),
		})
		return degrade
	}

	kind := model.RouteKind(parsed.Route)
	switch kind {
	case model.RouteRole, model.RouteTool, model.RoutePat:
	default:
		kind = model.RoutePat
	}
	if parsed.Confidence < LLMRouteThreshold {
		kind, parsed.Target = model.RoutePat, ""
	}

	hit := model.RouteHit{Kind: kind, Target: parsed.Target, Confidence: parsed.Confidence, Reason: parsed.Reason}
	col.Log(telemetry.Event{
		Type: telemetry.EventIntentClassified, Stage: telemetry.StageIntent,
		Duration: p.now().Sub(t0), Intent: string(hit.Kind), Confidence: hit.Confidence, Success: true,
		LLMProvider: rp.API.Provider, LLMModel: resp.Model,
		LLMTokens: &telemetry.TokenUsage{Input: resp.Usage.InputTokens, Output: resp.Usage.OutputTokens},
		Metadata:  map[string]any{"target": hit.Target, "source": "llm"},
	})
	return hit
}

// handleMeal resolves and logs a described meal, returning fact lines for the
// prompt composer.
func (p *Pipeline) handleMeal(ctx context.Context, col *telemetry.Collector, in Input, description string, res *Result) []string {
	parsed := timeparse.Parse(description, p.now(), p.location(in.Profile))
	col.Log(telemetry.Event{
		Type: telemetry.EventExtracted, Stage: telemetry.StageNLU,
		Confidence: parsed.Confidence, Success: true,
		Metadata: map[string]any{"slot": string(parsed.Slot), "eaten_at": parsed.At, "matched": parsed.Matched},
	})

	est, err := p.resolveFood(ctx, col, description)
	if err != nil {
		return []string{resolverFact(err)}
	}

	facts := []string{
		fmt.Sprintf("Resolved %q: %s.", description, macroLine(est.Macros)),
		fmt.Sprintf("Meal slot: %s at %s.", parsed.Slot, parsed.At.Format("Mon 15:04")),
	}

	logged := p.persistMeal(ctx, col, model.MealLog{
		UserID:      in.Profile.UserID,
		Description: description,
		Slot:        parsed.Slot,
		EatenAt:     parsed.At,
		Macros:      est.Macros,
		Confidence:  est.Confidence,
		Source:      est.Source,
	})
	if logged != nil {
		res.Meal = logged
		facts = append(facts, "The meal was logged.")
	} else {
		facts = append(facts, "The meal was not persisted (storage unavailable); tell the user it was noted for this conversation only.")
	}
	return facts
}

func (p *Pipeline) handleMacroQuestion(ctx context.Context, col *telemetry.Collector, in Input) []string {
	food := extractFood(in.Message)
	if food == "" {
		col.Log(telemetry.Event{
			Type: telemetry.EventError, Stage: telemetry.StageNLU,
			Error: "macro question without an extractable food",
		})
		return []string{"No food could be identified in the question; ask the user which food they mean."}
	}

	est, err := p.resolveFood(ctx, col, food)
	if err != nil {
		return []string{resolverFact(err)}
	}

	p.sessions.Put(in.SessionID, PendingMacro{Food: food, Estimate: est})

	facts := []string{fmt.Sprintf("Macros for %q: %s.", food, macroLine(est.Macros))}
	if est.Basis != "" {
		facts = append(facts, fmt.Sprintf("Basis: %s.", est.Basis))
	}
	facts = append(facts, "If the user wants, they can reply \"log it\" to record this.")
	return facts
}

func (p *Pipeline) handleMacroLogging(ctx context.Context, col *telemetry.Collector, in Input, res *Result) []string {
	pending, ok := p.sessions.Get(in.SessionID)
	if !ok {
		return []string{"There is no recent macro answer to log; ask the user what they ate instead."}
	}

	parsed := timeparse.Parse(in.Message, p.now(), p.location(in.Profile))
	facts := []string{
		fmt.Sprintf("Logging the previously shown answer for %q: %s.", pending.Food, macroLine(pending.Estimate.Macros)),
		fmt.Sprintf("Meal slot: %s.", parsed.Slot),
	}

	logged := p.persistMeal(ctx, col, model.MealLog{
		UserID:      in.Profile.UserID,
		Description: pending.Food,
		Slot:        parsed.Slot,
		EatenAt:     parsed.At,
		Macros:      pending.Estimate.Macros,
		Confidence:  pending.Estimate.Confidence,
		Source:      pending.Estimate.Source,
	})
	if logged != nil {
		res.Meal = logged
		p.sessions.Clear(in.SessionID)
		facts = append(facts, "The meal was logged.")
	} else {
		facts = append(facts, "The meal was not persisted (storage unavailable).")
	}
	return facts
}

// handleUndo is a direct tool: no completion call, deterministic reply.
func (p *Pipeline) handleUndo(ctx context.Context, col *telemetry.Collector, in Input) string {
	if p.meals == nil {
		return "I can't undo anything right now: meal history isn't available."
	}
	removed, err := p.meals.DeleteLastMealLog(ctx, in.Profile.UserID)
	if err != nil {
		col.Log(telemetry.Event{
			Type: telemetry.EventError, Stage: telemetry.StageStore, Error: err.Error(),
		})
		return "There's no logged meal to undo."
	}
	col.Log(telemetry.Event{
		Type: telemetry.EventMealLogged, Stage: telemetry.StageStore, Success: true,
		Metadata: map[string]any{"action": "undo", "meal_id": removed.ID.String()},
	})
	return fmt.Sprintf("Removed %q from %s (%s).", removed.Description, removed.Slot, macroLine(removed.Macros))
}

// resolveFood wraps the resolver call with cache-aware telemetry.
func (p *Pipeline) resolveFood(ctx context.Context, col *telemetry.Collector, food string) (nutrition.Estimate, error) {
	t0 := p.now()
	est, err := p.resolver.Resolve(ctx, food, true)
	if err != nil {
		col.Log(telemetry.Event{
			Type: telemetry.EventError, Stage: telemetry.StageResolve,
			Duration: p.now().Sub(t0), Error: err.Error(),
		})
		return nutrition.Estimate{}, err
	}
	col.Log(telemetry.Event{
		Type: telemetry.EventNutritionResolved, Stage: telemetry.StageResolve,
		Duration: p.now().Sub(t0), Confidence: est.Confidence, ItemCount: 1, Success: true,
		Metadata: map[string]any{"source": est.Source},
	})
	return est, nil
}

func (p *Pipeline) persistMeal(ctx context.Context, col *telemetry.Collector, log model.MealLog) *model.MealLog {
	if p.meals == nil {
		return nil
	}
	logged, err := p.meals.InsertMealLog(ctx, log)
	if err != nil {
		col.Log(telemetry.Event{
			Type: telemetry.EventError, Stage: telemetry.StageStore, Error: err.Error(),
		})
		p.logger.Error("meal log insert failed", "error", err, "user_id", log.UserID)
		return nil
	}
	col.Log(telemetry.Event{
		Type: telemetry.EventMealLogged, Stage: telemetry.StageStore, Success: true,
		Metadata: map[string]any{"meal_id": logged.ID.String(), "slot": string(logged.Slot)},
	})
	return &logged
}

// complete composes the final prompt and calls the provider.
func (p *Pipeline) complete(ctx context.Context, col *telemetry.Collector, roles map[string]prompt.RoleProfile, target string, facts []string, in Input) string {
	master := roles[prompt.MasterRoleSlug]
	rp, ok := roles[target]
	if !ok {
		rp = prompt.RoleProfile{Slug: target}
	}

	directives := rp.Directives
	if len(facts) > 0 {
		block := "# Resolved Facts\n\n" + strings.Join(facts, "\n")
		if directives != "" {
			directives += "\n\n" + block
		} else {
			directives = block
		}
	}
	system := prompt.WithMaster(master.Directives, directives, p.logger)

	binding := rp.API
	if binding.Model == "" {
		binding = master.API
	}

	messages := make([]llm.Message, 0, len(in.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	messages = append(messages, in.History...)
	messages = append(messages, llm.Message{Role: "user", Content: in.Message})

	t0 := p.now()
	resp, err := p.client.Complete(ctx, llm.Request{Messages: messages, Binding: binding})
	if err != nil {
		col.Log(telemetry.Event{
			Type: telemetry.EventError, Stage: telemetry.StageFormat,
			Duration: p.now().Sub(t0), Error: err.Error(),
		})
		p.logger.Error("completion failed", "error", err, "target", target)
		return fallbackReply
	}

	col.Log(telemetry.Event{
		Type: telemetry.EventFormatted, Stage: telemetry.StageFormat,
		Duration: p.now().Sub(t0), Success: true,
		LLMProvider: binding.Provider, LLMModel: resp.Model,
		LLMTokens: &telemetry.TokenUsage{Input: resp.Usage.InputTokens, Output: resp.Usage.OutputTokens},
	})
	return resp.Text
}

func (p *Pipeline) finish(col *telemetry.Collector, start time.Time) {
	col.Log(telemetry.Event{
		Type: telemetry.EventPipelineComplete, Stage: telemetry.StageGeneral,
		Duration: p.now().Sub(start), Success: !col.HasErrors(),
	})
}

// SetClock overrides the pipeline's time source. Embedders use this to pin
// slot inference for replays and tests.
func (p *Pipeline) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// messageDigest reduces a user message to its first few significant words so
// telemetry metadata never carries the full text.
func messageDigest(text string) string {
	var words []string
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, ".,!?;:\"'()#")
		if len(w) <= 3 {
			continue
		}
		words = append(words, strings.ToLower(w))
		if len(words) == 10 {
			break
		}
	}
	return strings.Join(words, " ")
}

func (p *Pipeline) location(profile model.Profile) *time.Location {
	if profile.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		p.logger.Debug("invalid timezone, using UTC", "timezone", profile.Timezone)
		return time.UTC
	}
	return loc
}

func resolverFact(err error) string {
	if errors.Is(err, nutrition.ErrInvalidInput) {
		return "The food description could not be used; ask the user to rephrase what they ate."
	}
	return "Nutrition data is temporarily unavailable; apologize briefly and offer to try again later."
}

func macroLine(m model.Macros) string {
	line := fmt.Sprintf("%.0f kcal, %.1f g protein, %.1f g carbs, %.1f g fat", m.Kcal, m.ProteinG, m.CarbsG, m.FatG)
	if m.FiberG > 0 {
		line += fmt.Sprintf(", %.1f g fiber", m.FiberG)
	}
	return line
}
