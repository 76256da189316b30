package model

import "time"

// UserRole represents a user's subscription tier.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleBeta     UserRole = "beta"
	RolePaidUser UserRole = "paid_user"
	RoleFreeUser UserRole = "free_user"
)

// KnownRole reports whether r is one of the defined tiers.
// Unknown tiers are denied everywhere (deny-by-default).
func KnownRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleBeta, RolePaidUser, RoleFreeUser:
		return true
	default:
		return false
	}
}

// Profile is the inbound view of the authenticated user.
type Profile struct {
	UserID      string     `json:"user_id"`
	Role        UserRole   `json:"role"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
}

// TrialActive reports whether the profile has a non-expired free trial.
func (p Profile) TrialActive(now time.Time) bool {
	return p.TrialEndsAt != nil && p.TrialEndsAt.After(now)
}
