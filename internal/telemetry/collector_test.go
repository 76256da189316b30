package telemetry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorAppendsInOrder(t *testing.T) {
	c := NewCollector("u1", "s1")
	c.Log(Event{Type: EventIntentClassified, Stage: StageIntent, Success: true})
	c.Log(Event{Type: EventNutritionResolved, Stage: StageResolve, Success: true})
	c.Log(Event{Type: EventPipelineComplete, Stage: StageGeneral, Success: true})

	events := c.Events()
	require.Len(t, events, 3)
	assert.Equal(t, EventIntentClassified, events[0].Type)
	assert.Equal(t, EventPipelineComplete, events[2].Type)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestCollectorSummary(t *testing.T) {
	c := NewCollector("u1", "s1")
	c.Log(Event{Type: EventIntentClassified, Stage: StageIntent, Success: true})
	c.Log(Event{Type: EventPipelineComplete, Stage: StageGeneral, Success: true, LLMProvider: "openai", LLMModel: "gpt-4o-mini"})
	c.Log(Event{Type: EventError, Stage: StageResolve, Success: false, Error: "upstream 503"})

	s := c.Summary()
	assert.Equal(t, 1, s.StageCount[StageIntent])
	assert.Equal(t, 1, s.StageCount[StageResolve])
	assert.Equal(t, 1, s.LLMCalls)
	assert.Equal(t, 1, s.Errors)
	assert.Len(t, s.Events, 3)
}

func TestCollectorErrorInspection(t *testing.T) {
	c := NewCollector("u1", "s1")
	assert.False(t, c.HasErrors())
	_, ok := c.FirstError()
	assert.False(t, ok)

	c.Log(Event{Type: EventCacheMiss, Stage: StageCache, Success: true})
	c.Log(Event{Type: EventError, Stage: StageResolve, Success: false, Error: "boom"})
	c.Log(Event{Type: EventError, Stage: StageStore, Success: false, Error: "later"})

	require.True(t, c.HasErrors())
	first, ok := c.FirstError()
	require.True(t, ok)
	assert.Equal(t, "boom", first.Error)
}

func TestCollectorEventsAreCopies(t *testing.T) {
	c := NewCollector("u1", "s1")
	c.Log(Event{Type: EventCacheHit, Stage: StageCache, Success: true})

	events := c.Events()
	events[0].Error = "mutated"

	fresh := c.Events()
	assert.Empty(t, fresh[0].Error, "logged events must be immutable")
}

func TestCollectorConcurrentLogging(t *testing.T) {
	c := NewCollector("u1", "s1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Log(Event{Type: EventCacheHit, Stage: StageCache, Success: true})
		}()
	}
	wg.Wait()
	assert.Len(t, c.Events(), 50)
}
