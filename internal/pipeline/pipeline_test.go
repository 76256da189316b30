package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipat/pat/internal/llm"
	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/personality"
	"github.com/hipat/pat/internal/router"
	"github.com/hipat/pat/internal/storage"
	"github.com/hipat/pat/internal/telemetry"
)

type fakeLLM struct {
	replies  []llm.Response
	err      error
	requests []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	if len(f.replies) == 0 {
		return llm.Response{Text: "ok", Model: "test-model"}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

type fakeResolver struct {
	est   nutrition.Estimate
	err   error
	calls []string
}

func (f *fakeResolver) Resolve(_ context.Context, foodName string, _ bool) (nutrition.Estimate, error) {
	f.calls = append(f.calls, foodName)
	if f.err != nil {
		return nutrition.Estimate{}, f.err
	}
	return f.est, nil
}

type fakeMeals struct {
	inserted  []model.MealLog
	deleteErr error
	last      model.MealLog
}

func (f *fakeMeals) InsertMealLog(_ context.Context, log model.MealLog) (model.MealLog, error) {
	log.ID = uuid.New()
	log.CreatedAt = time.Now().UTC()
	f.inserted = append(f.inserted, log)
	return log, nil
}

func (f *fakeMeals) DeleteLastMealLog(_ context.Context, _ string) (model.MealLog, error) {
	if f.deleteErr != nil {
		return model.MealLog{}, f.deleteErr
	}
	return f.last, nil
}

func testPipeline(client llm.Client, resolver nutrition.Resolver, meals MealStore) *Pipeline {
	store := personality.NewStore(nil, slog.New(slog.DiscardHandler))
	return New(store, client, resolver, meals, slog.New(slog.DiscardHandler))
}

func paidInput(message string) Input {
	return Input{
		Profile:   model.Profile{UserID: "u1", Role: model.RolePaidUser},
		SessionID: "s1",
		Message:   message,
	}
}

func eventTypes(events []telemetry.Event) []telemetry.EventType {
	out := make([]telemetry.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestHandleMealLogsAndReplies(t *testing.T) {
	client := &fakeLLM{replies: []llm.Response{{Text: "Logged your eggs.", Model: "test-model"}}}
	resolver := &fakeResolver{est: nutrition.Estimate{
		Macros:     model.Macros{Kcal: 210, ProteinG: 18, CarbsG: 2, FatG: 14},
		Confidence: 0.9, Source: "resolver",
	}}
	meals := &fakeMeals{}
	p := testPipeline(client, resolver, meals)

	res, err := p.Handle(context.Background(), paidInput("I ate 3 eggs for breakfast"))
	require.NoError(t, err)

	assert.Equal(t, router.SlugTMWYA, res.Target)
	assert.Equal(t, "Logged your eggs.", res.Reply)
	assert.False(t, res.Denied)
	require.NotNil(t, res.Meal)
	assert.Equal(t, model.SlotBreakfast, res.Meal.Slot)
	require.Len(t, meals.inserted, 1)
	assert.Equal(t, "I ate 3 eggs for breakfast", meals.inserted[0].Description)

	types := eventTypes(res.Events)
	assert.Contains(t, types, telemetry.EventIntentClassified)
	assert.Contains(t, types, telemetry.EventNutritionResolved)
	assert.Contains(t, types, telemetry.EventMealLogged)
	assert.Contains(t, types, telemetry.EventFormatted)
	assert.Equal(t, telemetry.EventPipelineComplete, types[len(types)-1])

	// Resolved facts are composed under the master prompt.
	require.Len(t, client.requests, 1)
	system := client.requests[0].Messages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "You are Pat")
	assert.Contains(t, system.Content, "210 kcal")
}

func TestHandleDeniesFreeUserWithoutTrial(t *testing.T) {
	client := &fakeLLM{}
	p := testPipeline(client, &fakeResolver{}, nil)

	in := paidInput("I ate a sandwich for lunch")
	in.Profile.Role = model.RoleFreeUser

	res, err := p.Handle(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Denied)
	assert.Contains(t, res.Reply, "paid plan")
	assert.Empty(t, client.requests, "denied turns never reach the provider")
	assert.Equal(t, telemetry.EventPipelineComplete, eventTypes(res.Events)[len(res.Events)-1])
}

func TestHandleDisabledRoleBlocksAdmin(t *testing.T) {
	agents := personality.Defaults()
	for i := range agents {
		if agents[i].RoleSlug == "workout" {
			agents[i].Enabled = false
		}
	}
	repo := &stubRepo{state: personality.State{Version: personality.CurrentVersion, Agents: agents}}
	store := personality.NewStore(repo, slog.New(slog.DiscardHandler))
	client := &fakeLLM{}
	p := New(store, client, &fakeResolver{}, nil, slog.New(slog.DiscardHandler))

	in := paidInput("did 5 sets of squats at the gym")
	in.Profile.Role = model.RoleAdmin

	res, err := p.Handle(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Denied)
	assert.Contains(t, res.Reply, "unavailable")
}

type stubRepo struct{ state personality.State }

func (s *stubRepo) LoadOverrides(context.Context) (personality.State, error) { return s.state, nil }
func (s *stubRepo) SaveOverride(context.Context, int, model.AgentConfig) error {
	return nil
}
func (s *stubRepo) ClearOverrides(context.Context) error { return nil }

func TestHandleMacroQuestionThenLogIt(t *testing.T) {
	client := &fakeLLM{replies: []llm.Response{
		{Text: "A banana has 105 kcal.", Model: "test-model"},
		{Text: "Logged the banana.", Model: "test-model"},
	}}
	resolver := &fakeResolver{est: nutrition.Estimate{
		Macros: model.Macros{Kcal: 105, ProteinG: 1.3, CarbsG: 27, FatG: 0.4},
	}}
	meals := &fakeMeals{}
	p := testPipeline(client, resolver, meals)

	res, err := p.Handle(context.Background(), paidInput("what are the macros of a banana?"))
	require.NoError(t, err)
	assert.Equal(t, router.SlugMacroQuestion, res.Target)
	assert.Nil(t, res.Meal, "an informational answer never writes a meal log")
	assert.Empty(t, meals.inserted)
	require.Equal(t, []string{"banana"}, resolver.calls)

	res, err = p.Handle(context.Background(), paidInput("log it"))
	require.NoError(t, err)
	assert.Equal(t, router.SlugMacroLogging, res.Target)
	require.NotNil(t, res.Meal)
	assert.Equal(t, "banana", res.Meal.Description)
	require.Len(t, meals.inserted, 1)
	assert.Len(t, resolver.calls, 1, "the pending answer is reused, not re-resolved")

	// The pending answer is consumed; a second "log it" has nothing to log.
	res, err = p.Handle(context.Background(), paidInput("log it"))
	require.NoError(t, err)
	assert.Len(t, meals.inserted, 1)
}

func TestHandleUndoTool(t *testing.T) {
	meals := &fakeMeals{last: model.MealLog{
		ID: uuid.New(), Description: "protein shake", Slot: model.SlotSnack,
		Macros: model.Macros{Kcal: 180, ProteinG: 30, CarbsG: 8, FatG: 3},
	}}
	client := &fakeLLM{}
	p := testPipeline(client, &fakeResolver{}, meals)

	res, err := p.Handle(context.Background(), paidInput("undo"))
	require.NoError(t, err)
	assert.Equal(t, router.SlugUndo, res.Target)
	assert.Contains(t, res.Reply, "protein shake")
	assert.Empty(t, client.requests, "tool routes bypass the provider")

	meals.deleteErr = storage.ErrNotFound
	res, err = p.Handle(context.Background(), paidInput("undo"))
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "no logged meal")
}

func TestHandleNoLogEscapeStaysConversational(t *testing.T) {
	client := &fakeLLM{}
	resolver := &fakeResolver{}
	meals := &fakeMeals{}
	p := testPipeline(client, resolver, meals)

	res, err := p.Handle(context.Background(), paidInput("I ate way too much at the wedding #no-log"))
	require.NoError(t, err)
	assert.Equal(t, router.DefaultTarget, res.Target)
	assert.Empty(t, meals.inserted)
	assert.Empty(t, resolver.calls)
}

func TestHandleLLMRouterFallback(t *testing.T) {
	// No deterministic rule matches; the model router classifies it.
	client := &fakeLLM{replies: []llm.Response{
		{Text: `{"route":"role","target":"mmb","confidence":0.9,"reason":"feature request"}`, Model: "test-model"},
		{Text: "Thanks, recorded.", Model: "test-model"},
	}}
	p := testPipeline(client, &fakeResolver{}, nil)

	res, err := p.Handle(context.Background(), paidInput("you should let me export my data"))
	require.NoError(t, err)
	assert.Equal(t, router.SlugMMB, res.Target)
	assert.Equal(t, "Thanks, recorded.", res.Reply)
	require.Len(t, client.requests, 2)
	assert.Equal(t, "json", client.requests[0].Binding.ResponseFormat)
}

func TestHandleLLMRouterLowConfidenceDegrades(t *testing.T) {
	client := &fakeLLM{replies: []llm.Response{
		{Text: `{"route":"role","target":"mmb","confidence":0.4}`, Model: "test-model"},
		{Text: "Happy to chat.", Model: "test-model"},
	}}
	p := testPipeline(client, &fakeResolver{}, nil)

	res, err := p.Handle(context.Background(), paidInput("hmm what do you think about this"))
	require.NoError(t, err)
	assert.Equal(t, router.DefaultTarget, res.Target)
}

func TestHandleLLMRouterMalformedJSONDegrades(t *testing.T) {
	client := &fakeLLM{replies: []llm.Response{
		{Text: "not json at all", Model: "test-model"},
		{Text: "Happy to chat.", Model: "test-model"},
	}}
	p := testPipeline(client, &fakeResolver{}, nil)

	res, err := p.Handle(context.Background(), paidInput("hello there"))
	require.NoError(t, err)
	assert.Equal(t, router.DefaultTarget, res.Target)
	assert.Contains(t, eventTypes(res.Events), telemetry.EventError)
}

func TestHandleResolverDownStillReplies(t *testing.T) {
	client := &fakeLLM{replies: []llm.Response{{Text: "Couldn't look that up.", Model: "test-model"}}}
	resolver := &fakeResolver{err: nutrition.ErrUpstream}
	meals := &fakeMeals{}
	p := testPipeline(client, resolver, meals)

	res, err := p.Handle(context.Background(), paidInput("I ate a burrito for dinner"))
	require.NoError(t, err)
	assert.Equal(t, "Couldn't look that up.", res.Reply)
	assert.Nil(t, res.Meal)
	assert.Empty(t, meals.inserted, "an unresolved meal is never persisted")
	assert.Positive(t, res.Summary.Errors)
}

func TestHandleCompletionFailureFallsBack(t *testing.T) {
	client := &fakeLLM{err: errors.New("provider down")}
	p := testPipeline(client, &fakeResolver{}, nil)

	res, err := p.Handle(context.Background(), paidInput("how was my week?"))
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, res.Reply)
	assert.Contains(t, eventTypes(res.Events), telemetry.EventError)
}

func TestExtractFood(t *testing.T) {
	cases := map[string]string{
		"what are the macros of a banana?":        "banana",
		"macros of grilled chicken breast":        "grilled chicken breast",
		"calories of 2 slices of pizza":           "2 slices of pizza",
		"tell me the nutrition in oatmeal please": "oatmeal please",
		"hello":                                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractFood(in), "input %q", in)
	}
}

func TestSessionsExpire(t *testing.T) {
	s := NewSessions(time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Put("s1", PendingMacro{Food: "banana"})
	_, ok := s.Get("s1")
	assert.True(t, ok)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok = s.Get("s1")
	assert.False(t, ok, "stale answers must not be loggable")
}

func TestMessageDigestStripsShortWordsAndPunctuation(t *testing.T) {
	got := messageDigest("I ate 2 scrambled eggs, toast and a big glass of orange juice!")
	assert.Equal(t, "scrambled eggs toast glass orange juice", got)

	long := strings.Repeat("breakfast ", 20)
	assert.Len(t, strings.Fields(messageDigest(long)), 10)

	assert.Empty(t, messageDigest("I am ok"))
}
