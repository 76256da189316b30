// Package timeparse extracts temporal and meal-slot information from free
// text. Extraction is an ordered list of (pattern, extractor) rules with
// documented precedence; the caller supplies the reference instant so every
// result is reproducible in tests.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hipat/pat/internal/model"
)

// ParsedTime is the outcome of one parse. Slot is empty only when no slot was
// stated and none could be inferred (never the case in practice: the
// hour-of-day fallback always produces one).
type ParsedTime struct {
	At         time.Time
	Slot       model.MealSlot
	Confidence float64
	Matched    string // raw phrase that drove the decision, if any
}

// Default hour-of-day per meal slot. A configuration table, not a computed
// value: product owns these numbers.
var slotDefaultHour = map[model.MealSlot]int{
	model.SlotBreakfast: 8,
	model.SlotLunch:     12,
	model.SlotDinner:    18,
	model.SlotSnack:     15,
}

// Keyword table for explicit slot mentions. First match in declaration order
// wins, so more specific phrases sit before bare slot names.
var slotKeywords = []struct {
	phrase string
	slot   model.MealSlot
}{
	{"breakfast", model.SlotBreakfast},
	{"this morning", model.SlotBreakfast},
	{"lunch", model.SlotLunch},
	{"midday", model.SlotLunch},
	{"at noon", model.SlotLunch},
	{"dinner", model.SlotDinner},
	{"supper", model.SlotDinner},
	{"tonight", model.SlotDinner},
	{"this evening", model.SlotDinner},
	{"last night", model.SlotDinner},
	{"snack", model.SlotSnack},
}

var (
	relativeRx = regexp.MustCompile(`(?i)\b(\d+)\s*(hours?|hrs?|minutes?|mins?)\s+ago\b`)
	justNowRx  = regexp.MustCompile(`(?i)\bjust\s+now\b`)
	clockRx    = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	dayShiftRx = regexp.MustCompile(`(?i)\b(yesterday|last\s+night)\b`)
)

// SlotFromHour buckets an hour-of-day into a meal slot. The bucketing is
// exhaustive and non-overlapping over [0,24).
func SlotFromHour(hour int) model.MealSlot {
	switch {
	case hour >= 5 && hour < 11:
		return model.SlotBreakfast
	case hour >= 11 && hour < 15:
		return model.SlotLunch
	case hour >= 15 && hour < 21:
		return model.SlotDinner
	default:
		return model.SlotSnack
	}
}

// Parse extracts a timestamp, meal slot and confidence from text relative to
// now. If loc is nil, now's location is used. Rules run in precedence order
// and the first that matches wins.
func Parse(text string, now time.Time, loc *time.Location) ParsedTime {
	if loc == nil {
		loc = now.Location()
	}
	now = now.In(loc)
	lower := strings.ToLower(text)
	dayShift := dayShiftRx.MatchString(lower)

	// Rule 1: explicit relative offset ("2 hours ago", "just now").
	if m := relativeRx.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		var at time.Time
		if strings.HasPrefix(m[2], "h") {
			at = now.Add(-time.Duration(n) * time.Hour)
		} else {
			at = now.Add(-time.Duration(n) * time.Minute)
		}
		if dayShift {
			at = at.AddDate(0, 0, -1)
		}
		return ParsedTime{At: at, Slot: SlotFromHour(at.Hour()), Confidence: 0.9, Matched: m[0]}
	}
	if m := justNowRx.FindString(lower); m != "" {
		at := now
		if dayShift {
			at = at.AddDate(0, 0, -1)
		}
		return ParsedTime{At: at, Slot: SlotFromHour(at.Hour()), Confidence: 0.9, Matched: m}
	}

	// Rule 2: explicit clock time ("at 9", "at 2:30pm").
	if m := clockRx.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		switch m[3] {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || minute > 59 {
			// Nonsense clock values fall through to the remaining rules.
			return parseSlotOrDefault(lower, now, dayShift)
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if dayShift {
			at = at.AddDate(0, 0, -1)
		} else if at.After(now) {
			// "at 11pm" said at breakfast refers to last night, never the future.
			at = at.AddDate(0, 0, -1)
		}
		return ParsedTime{At: at, Slot: SlotFromHour(at.Hour()), Confidence: 0.95, Matched: m[0]}
	}

	return parseSlotOrDefault(lower, now, dayShift)
}

// parseSlotOrDefault covers rules 3 and 4: keyword slot match, then the
// current-instant default.
func parseSlotOrDefault(lower string, now time.Time, dayShift bool) ParsedTime {
	for _, kw := range slotKeywords {
		if !strings.Contains(lower, kw.phrase) {
			continue
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), slotDefaultHour[kw.slot], 0, 0, 0, now.Location())
		if dayShift {
			at = at.AddDate(0, 0, -1)
		}
		return ParsedTime{At: at, Slot: kw.slot, Confidence: 0.8, Matched: kw.phrase}
	}

	at := now
	if dayShift {
		at = at.AddDate(0, 0, -1)
	}
	return ParsedTime{At: at, Slot: SlotFromHour(at.Hour()), Confidence: 0.5}
}
