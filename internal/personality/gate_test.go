package personality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipat/pat/internal/model"
)

func testAgents() []model.AgentConfig {
	return []model.AgentConfig{
		{ID: "a1", RoleSlug: "tmwya", Phase: model.PhaseCore, Enabled: true, EnabledForPaid: true, EnabledForBeta: true},
		{ID: "a2", RoleSlug: "tmwya", Phase: model.PhasePost, Enabled: false, EnabledForFreeTrial: true},
		{ID: "b1", RoleSlug: "mmb", Phase: model.PhaseCore, Enabled: true, EnabledForPaid: true},
		{ID: "c1", RoleSlug: "workout", Phase: model.PhaseCore, Enabled: false, EnabledForPaid: true},
		{ID: "d1", RoleSlug: "macro-question", Phase: model.PhaseCore, Enabled: true, EnabledForBeta: true},
	}
}

func fixedGate(agents []model.AgentConfig, now time.Time) *Gate {
	g := NewGate(agents)
	g.now = func() time.Time { return now }
	return g
}

func TestRoleFlagsORAggregation(t *testing.T) {
	g := NewGate(testAgents())

	// Flags aggregate independently: the disabled a2 still contributes its
	// free-trial flag to the role.
	f := g.RoleFlags("tmwya")
	assert.True(t, f.Enabled)
	assert.True(t, f.EnabledForPaid)
	assert.True(t, f.EnabledForFreeTrial)
	assert.True(t, f.EnabledForBeta)

	f = g.RoleFlags("mmb")
	assert.True(t, f.Enabled)
	assert.True(t, f.EnabledForPaid)
	assert.False(t, f.EnabledForFreeTrial)
	assert.False(t, f.EnabledForBeta)
}

func TestRoleFlagsNoAgentsDeniesEveryone(t *testing.T) {
	now := time.Now()
	g := fixedGate(testAgents(), now)

	require.Equal(t, model.RoleAccessFlags{}, g.RoleFlags("nonexistent"))
	for _, role := range []model.UserRole{model.RoleAdmin, model.RoleBeta, model.RolePaidUser, model.RoleFreeUser} {
		d := g.Check(model.Profile{UserID: "u1", Role: role}, "nonexistent")
		assert.False(t, d.Allowed, "role %s should be denied", role)
		assert.NotEmpty(t, d.Message)
	}
}

func TestCheckDisabledRoleBlocksAdmin(t *testing.T) {
	g := fixedGate(testAgents(), time.Now())

	d := g.Check(model.Profile{UserID: "u1", Role: model.RoleAdmin}, "workout")
	assert.False(t, d.Allowed)
	assert.Equal(t, "role disabled", d.Reason)
	assert.Contains(t, d.Message, "unavailable")
}

func TestCheckDecisionTable(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	activeTrial := now.Add(24 * time.Hour)
	expiredTrial := now.Add(-24 * time.Hour)
	g := fixedGate(testAgents(), now)

	cases := []struct {
		name    string
		profile model.Profile
		role    string
		allowed bool
	}{
		{"admin on enabled role", model.Profile{Role: model.RoleAdmin}, "tmwya", true},
		{"paid on paid-enabled role", model.Profile{Role: model.RolePaidUser}, "mmb", true},
		{"beta on beta-enabled role", model.Profile{Role: model.RoleBeta}, "tmwya", true},
		{"beta on paid-only role", model.Profile{Role: model.RoleBeta}, "mmb", false},
		{"free with active trial behaves as paid", model.Profile{Role: model.RoleFreeUser, TrialEndsAt: &activeTrial}, "mmb", true},
		{"free with active trial on paid-disabled role", model.Profile{Role: model.RoleFreeUser, TrialEndsAt: &activeTrial}, "macro-question", false},
		{"free with expired trial on free-tier role", model.Profile{Role: model.RoleFreeUser, TrialEndsAt: &expiredTrial}, "tmwya", true},
		{"free without trial on free-tier role", model.Profile{Role: model.RoleFreeUser}, "tmwya", true},
		{"free without trial on paid-only role", model.Profile{Role: model.RoleFreeUser}, "mmb", false},
		{"unknown tier", model.Profile{Role: "superuser"}, "tmwya", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := g.Check(tc.profile, tc.role)
			assert.Equal(t, tc.allowed, d.Allowed, "reason: %s", d.Reason)
			if !tc.allowed {
				assert.NotEmpty(t, d.Message)
			} else {
				assert.Empty(t, d.Message)
			}
		})
	}
}

func TestCheckFreeTierDenialMentionsUpgrade(t *testing.T) {
	g := fixedGate(testAgents(), time.Now())

	d := g.Check(model.Profile{UserID: "u1", Role: model.RoleFreeUser}, "mmb")
	require.False(t, d.Allowed)
	assert.Contains(t, d.Message, "paid plan")
	assert.Contains(t, d.Message, "feedback collection")
}
