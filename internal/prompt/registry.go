package prompt

import (
	"fmt"
	"sort"

	"github.com/hipat/pat/internal/model"
)

// MasterRoleSlug identifies the base-personality role whose directives form
// the master prompt prepended to every other handler.
const MasterRoleSlug = "pat"

// RoleProfile is the assembled prompt material for one role: directive text
// joined from its enabled agents plus the API binding and tone of the
// lowest-ordered core agent.
type RoleProfile struct {
	Slug       string
	Directives string
	Tone       model.TonePreset
	API        model.APIBinding
}

// BuildRoles assembles per-role profiles from agent definitions. Agents join
// a role only through their declared RoleSlug. The returned notes are
// diagnostic breadcrumbs for entries that could not be loaded (disabled,
// invalid, or roles left with no usable agents); they never abort the load.
func BuildRoles(agents []model.AgentConfig) (map[string]RoleProfile, []string) {
	var notes []string
	byRole := make(map[string][]model.AgentConfig)

	for _, a := range agents {
		if err := a.Validate(); err != nil {
			notes = append(notes, fmt.Sprintf("agent %s skipped: %v", a.ID, err))
			continue
		}
		if a.RoleSlug == "" {
			notes = append(notes, fmt.Sprintf("agent %s skipped: no role membership declared", a.ID))
			continue
		}
		if !a.Enabled {
			notes = append(notes, fmt.Sprintf("agent %s disabled, excluded from role %s", a.ID, a.RoleSlug))
			continue
		}
		byRole[a.RoleSlug] = append(byRole[a.RoleSlug], a)
	}

	roles := make(map[string]RoleProfile, len(byRole))
	for slug, members := range byRole {
		// Order is unique among enabled agents at evaluation time; stable sort
		// keeps insertion order for ties anyway.
		sort.SliceStable(members, func(i, j int) bool { return members[i].Order < members[j].Order })

		var directives string
		for _, m := range members {
			if m.Instructions == "" {
				continue
			}
			if directives != "" {
				directives += "\n\n"
			}
			directives += m.Instructions
		}
		if directives == "" {
			notes = append(notes, fmt.Sprintf("role %s has no usable directives, excluded", slug))
			continue
		}

		profile := RoleProfile{Slug: slug, Directives: directives, Tone: members[0].Tone, API: members[0].API}
		for _, m := range members {
			if m.Phase == model.PhaseCore {
				profile.Tone = m.Tone
				profile.API = m.API
				break
			}
		}
		roles[slug] = profile
	}
	return roles, notes
}
