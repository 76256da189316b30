package model

import (
	"time"

	"github.com/google/uuid"
)

// MealLog is one persisted meal entry for a user.
type MealLog struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Slot        MealSlot  `json:"slot"`
	EatenAt     time.Time `json:"eaten_at"`
	Macros      Macros    `json:"macros"`
	Confidence  float64   `json:"confidence,omitempty"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
