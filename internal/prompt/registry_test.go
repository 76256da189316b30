package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipat/pat/internal/model"
)

func agent(id, role string, order int, enabled bool, instructions string) model.AgentConfig {
	return model.AgentConfig{
		ID: id, Name: id, RoleSlug: role, Phase: model.PhaseCore,
		Enabled: enabled, Order: order, Instructions: instructions,
		Tone: model.ToneNeutral,
	}
}

func TestBuildRolesJoinsByOrder(t *testing.T) {
	roles, notes := BuildRoles([]model.AgentConfig{
		agent("b", "tmwya", 2, true, "second"),
		agent("a", "tmwya", 1, true, "first"),
	})
	require.Contains(t, roles, "tmwya")
	assert.Equal(t, "first\n\nsecond", roles["tmwya"].Directives)
	assert.Empty(t, notes)
}

func TestBuildRolesExplicitMembershipOnly(t *testing.T) {
	// An agent whose ID merely contains the role slug does not join the role.
	a := agent("tmwya-lookalike", "", 1, true, "stray")
	roles, notes := BuildRoles([]model.AgentConfig{a})
	assert.Empty(t, roles)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "no role membership")
}

func TestBuildRolesDisabledAgentsLeaveBreadcrumbs(t *testing.T) {
	roles, notes := BuildRoles([]model.AgentConfig{
		agent("x", "workout", 1, false, "off"),
	})
	assert.Empty(t, roles)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "disabled")
}

func TestBuildRolesInvalidAgentSkipped(t *testing.T) {
	bad := agent("bad", "mmb", 1, true, "rules")
	bad.Phase = "sideways"
	good := agent("good", "mmb", 2, true, "rules")

	roles, notes := BuildRoles([]model.AgentConfig{bad, good})
	require.Contains(t, roles, "mmb")
	assert.Equal(t, "rules", roles["mmb"].Directives)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "skipped")
}

func TestBuildRolesCoreAgentSuppliesBinding(t *testing.T) {
	pre := agent("pre", "tmwya", 1, true, "pre rules")
	pre.Phase = model.PhasePre
	core := agent("core", "tmwya", 2, true, "core rules")
	core.API = model.APIBinding{Provider: "openai", Model: "gpt-4o-mini", ResponseFormat: "text"}
	core.Tone = model.ToneSupportive

	roles, _ := BuildRoles([]model.AgentConfig{pre, core})
	require.Contains(t, roles, "tmwya")
	assert.Equal(t, "gpt-4o-mini", roles["tmwya"].API.Model)
	assert.Equal(t, model.ToneSupportive, roles["tmwya"].Tone)
}
