package personality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hipat/pat/internal/model"
)

// ErrNoOverrides is returned by an OverrideRepo when nothing is persisted.
var ErrNoOverrides = errors.New("personality: no overrides stored")

// State is the effective agent set plus the schema version it was stored
// under.
type State struct {
	Version int
	Agents  []model.AgentConfig
}

// OverrideRepo persists admin edits to the agent set. Implementations return
// ErrNoOverrides when the store is empty.
type OverrideRepo interface {
	LoadOverrides(ctx context.Context) (State, error)
	SaveOverride(ctx context.Context, version int, agent model.AgentConfig) error
	ClearOverrides(ctx context.Context) error
}

// Store resolves the effective agent set: built-in defaults merged with
// persisted overrides. A nil repo means defaults only.
type Store struct {
	repo   OverrideRepo
	logger *slog.Logger
}

func NewStore(repo OverrideRepo, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, logger: logger}
}

// Load returns the effective agent set. Overrides stored under a different
// schema version are discarded wholesale and the defaults win; migrated
// reports that this happened so callers can surface it.
func (s *Store) Load(ctx context.Context) (State, bool, error) {
	defaults := State{Version: CurrentVersion, Agents: Defaults()}
	if s.repo == nil {
		return defaults, false, nil
	}

	persisted, err := s.repo.LoadOverrides(ctx)
	if errors.Is(err, ErrNoOverrides) {
		return defaults, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load personality overrides: %w", err)
	}

	if persisted.Version != CurrentVersion {
		s.logger.Warn("discarding personality overrides: stale schema version",
			"stored_version", persisted.Version,
			"current_version", CurrentVersion)
		if err := s.repo.ClearOverrides(ctx); err != nil {
			return State{}, false, fmt.Errorf("clear stale personality overrides: %w", err)
		}
		return defaults, true, nil
	}

	return State{Version: CurrentVersion, Agents: merge(defaults.Agents, persisted.Agents)}, false, nil
}

// Save validates and persists one agent override under the current version.
func (s *Store) Save(ctx context.Context, agent model.AgentConfig) error {
	if s.repo == nil {
		return errors.New("personality: store is read-only (no repository configured)")
	}
	if err := agent.Validate(); err != nil {
		return err
	}
	if err := s.repo.SaveOverride(ctx, CurrentVersion, agent); err != nil {
		return fmt.Errorf("save personality override %s: %w", agent.ID, err)
	}
	return nil
}

// merge overlays overrides onto the defaults by agent ID, preserving default
// ordering. Overrides for unknown IDs are appended: admins may define new
// agents that have no built-in counterpart.
func merge(defaults, overrides []model.AgentConfig) []model.AgentConfig {
	byID := make(map[string]model.AgentConfig, len(overrides))
	for _, o := range overrides {
		byID[o.ID] = o
	}
	out := make([]model.AgentConfig, 0, len(defaults)+len(overrides))
	for _, d := range defaults {
		if o, ok := byID[d.ID]; ok {
			out = append(out, o)
			delete(byID, d.ID)
			continue
		}
		out = append(out, d)
	}
	for _, o := range overrides {
		if _, pending := byID[o.ID]; pending {
			out = append(out, o)
			delete(byID, o.ID)
		}
	}
	return out
}
