package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipat/pat/internal/model"
)

// Fixed reference instant: 2025-03-10 10:00 UTC (a breakfast-bucket hour).
var ref = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func TestParseRelativeOffset(t *testing.T) {
	got := Parse("I ate 2 hours ago", ref, nil)
	assert.Equal(t, ref.Add(-2*time.Hour), got.At)
	assert.Equal(t, model.SlotBreakfast, got.Slot)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)

	got = Parse("had a bar 30 minutes ago", ref, nil)
	assert.Equal(t, ref.Add(-30*time.Minute), got.At)

	got = Parse("finished just now", ref, nil)
	assert.Equal(t, ref, got.At)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestParseClockTimeBeforeNow(t *testing.T) {
	got := Parse("ate eggs at 8am", ref, nil)
	assert.Equal(t, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), got.At)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	assert.Equal(t, model.SlotBreakfast, got.Slot)
}

func TestParseClockTimeRollsBackOnlyWhenFuture(t *testing.T) {
	// 2pm is after the 10:00 reference, so it refers to yesterday 14:00.
	got := Parse("had chicken at 2pm", ref, nil)
	assert.Equal(t, time.Date(2025, 3, 9, 14, 0, 0, 0, time.UTC), got.At)

	// Parsed late in the day, "at 2pm" stays on the same day.
	evening := time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)
	got = Parse("had chicken at 2pm", evening, nil)
	assert.Equal(t, time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), got.At)
	assert.Equal(t, model.SlotLunch, got.Slot)
}

func TestParseClockMeridiemEdges(t *testing.T) {
	// 12am maps to hour 0.
	got := Parse("snacked at 12am", time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC), nil)
	assert.Equal(t, 0, got.At.Hour())
	assert.Equal(t, model.SlotSnack, got.Slot)

	// 12pm stays at hour 12 (pm never added twice).
	got = Parse("lunch at 12pm", time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC), nil)
	assert.Equal(t, 12, got.At.Hour())
}

func TestParseClockWithMinutes(t *testing.T) {
	got := Parse("at 2:30pm yesterday", time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC), nil)
	assert.Equal(t, time.Date(2025, 3, 9, 14, 30, 0, 0, time.UTC), got.At)
}

func TestParseSlotKeyword(t *testing.T) {
	got := Parse("for lunch I had a salad", ref, nil)
	assert.Equal(t, model.SlotLunch, got.Slot)
	assert.Equal(t, 12, got.At.Hour())
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)

	got = Parse("tonight's meal was pasta", ref, nil)
	assert.Equal(t, model.SlotDinner, got.Slot)
	assert.Equal(t, 18, got.At.Hour())
}

func TestParseDayShift(t *testing.T) {
	got := Parse("yesterday lunch was ramen", ref, nil)
	assert.Equal(t, time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC), got.At)
	assert.Equal(t, model.SlotLunch, got.Slot)

	got = Parse("last night at 10pm", ref, nil)
	assert.Equal(t, time.Date(2025, 3, 9, 22, 0, 0, 0, time.UTC), got.At)

	// Day shift combines with relative offsets the same way it does with
	// clock times and slot keywords.
	got = Parse("yesterday, about 2 hours ago", ref, nil)
	assert.Equal(t, ref.Add(-2*time.Hour).AddDate(0, 0, -1), got.At)
	assert.Equal(t, model.SlotBreakfast, got.Slot)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestParseDefault(t *testing.T) {
	got := Parse("I had some food earlier I guess", ref, nil)
	assert.Equal(t, ref, got.At)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	assert.Equal(t, model.SlotBreakfast, got.Slot)
}

func TestParseTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 10:00 UTC is 19:00 in Tokyo: the slot default lands on Tokyo's day.
	got := Parse("for dinner", ref, tokyo)
	assert.Equal(t, tokyo, got.At.Location())
	assert.Equal(t, 18, got.At.Hour())
}

func TestSlotFromHourExhaustive(t *testing.T) {
	want := map[model.MealSlot][2]int{
		model.SlotBreakfast: {5, 11},
		model.SlotLunch:     {11, 15},
		model.SlotDinner:    {15, 21},
	}
	for hour := 0; hour < 24; hour++ {
		slot := SlotFromHour(hour)
		if r, ok := want[slot]; ok {
			assert.True(t, hour >= r[0] && hour < r[1], "hour %d mapped to %s", hour, slot)
		} else {
			require.Equal(t, model.SlotSnack, slot)
			assert.True(t, hour < 5 || hour >= 21, "hour %d mapped to snack", hour)
		}
	}
}
