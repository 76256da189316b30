package server

import (
	"net/http"

	"github.com/hipat/pat/internal/model"
)

// HandleListAgents returns the effective agent set: defaults merged with
// persisted overrides.
func (h *Handlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	state, migrated, err := h.agents.Load(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "load agents failed")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"version":  state.Version,
		"agents":   state.Agents,
		"migrated": migrated,
	})
}

// HandleUpdateAgent upserts one agent override. The path ID wins over any ID
// in the body.
func (h *Handlers) HandleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "agent_id is required")
		return
	}

	var agent model.AgentConfig
	if err := decodeJSON(r, &agent); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	agent.ID = id

	if err := agent.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, err.Error())
		return
	}

	if err := h.agents.Save(r.Context(), agent); err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "save agent failed")
		return
	}

	h.logger.Info("agent override saved",
		"agent_id", agent.ID,
		"enabled", agent.Enabled,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeJSON(w, r, http.StatusOK, agent)
}
