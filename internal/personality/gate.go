package personality

import (
	"fmt"
	"time"

	"github.com/hipat/pat/internal/model"
)

// Decision is the outcome of a permission check. Message is a user-facing
// denial text; it is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
	Message string
}

// featureNames maps role slugs to the user-facing feature name used in
// denial messages. Unlisted slugs fall back to "this feature".
var featureNames = map[string]string{
	"tmwya":          "meal logging",
	"workout":        "workout tracking",
	"mmb":            "feedback collection",
	"macro-question": "macro lookups",
	"macro-logging":  "macro logging",
	"undo":           "undoing a logged meal",
}

// Gate answers whether a user tier may reach a role. Availability is derived
// from the agent set: a role is whatever its member agents say it is.
type Gate struct {
	agents []model.AgentConfig
	now    func() time.Time
}

func NewGate(agents []model.AgentConfig) *Gate {
	return &Gate{agents: agents, now: time.Now}
}

// RoleFlags OR-aggregates the availability flags of every agent whose
// RoleSlug matches. Each flag is aggregated independently: a disabled agent
// still contributes its tier flags, and a role with no agents returns the
// zero value, which denies everyone.
func (g *Gate) RoleFlags(roleSlug string) model.RoleAccessFlags {
	var f model.RoleAccessFlags
	for _, a := range g.agents {
		if a.RoleSlug != roleSlug {
			continue
		}
		f.Enabled = f.Enabled || a.Enabled
		f.EnabledForPaid = f.EnabledForPaid || a.EnabledForPaid
		f.EnabledForFreeTrial = f.EnabledForFreeTrial || a.EnabledForFreeTrial
		f.EnabledForBeta = f.EnabledForBeta || a.EnabledForBeta
	}
	return f
}

// Check applies the access decision table for one user against one role.
// A globally disabled role denies every tier, admin included: disabling a
// role is an operational kill switch, not a tier restriction.
func (g *Gate) Check(p model.Profile, roleSlug string) Decision {
	flags := g.RoleFlags(roleSlug)
	feature := featureNames[roleSlug]
	if feature == "" {
		feature = "this feature"
	}

	if !flags.Enabled {
		return Decision{
			Reason:  "role disabled",
			Message: fmt.Sprintf("Sorry, %s is currently unavailable.", feature),
		}
	}
	if !model.KnownRole(p.Role) {
		return Decision{
			Reason:  fmt.Sprintf("unknown user role %q", p.Role),
			Message: fmt.Sprintf("Sorry, %s is not available on your account.", feature),
		}
	}

	switch p.Role {
	case model.RoleAdmin:
		return Decision{Allowed: true, Reason: "admin"}
	case model.RolePaidUser:
		if flags.EnabledForPaid {
			return Decision{Allowed: true, Reason: "paid tier"}
		}
	case model.RoleBeta:
		if flags.EnabledForBeta {
			return Decision{Allowed: true, Reason: "beta tier"}
		}
	case model.RoleFreeUser:
		// An active trial gets the paid tier's access; after it lapses only
		// roles opened to the free tier remain.
		if p.TrialActive(g.now()) {
			if flags.EnabledForPaid {
				return Decision{Allowed: true, Reason: "trial behaves as paid"}
			}
			return Decision{
				Reason:  "role not in paid plan",
				Message: fmt.Sprintf("Sorry, %s is not available on your plan.", feature),
			}
		}
		if flags.EnabledForFreeTrial {
			return Decision{Allowed: true, Reason: "free tier"}
		}
		return Decision{
			Reason:  "free tier",
			Message: fmt.Sprintf("%s is part of Pat's paid plan. Upgrade to keep using it.", capitalize(feature)),
		}
	}
	return Decision{
		Reason:  fmt.Sprintf("tier %s not permitted", p.Role),
		Message: fmt.Sprintf("Sorry, %s is not available on your plan.", feature),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
