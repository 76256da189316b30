package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/personality"
)

// LoadOverrides returns every persisted agent override and the schema version
// they were saved under. Mixed versions in the table would indicate a bug; the
// highest version wins and the personality store discards the lot on mismatch.
func (db *DB) LoadOverrides(ctx context.Context) (personality.State, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT version, config FROM personality_overrides ORDER BY agent_id`)
	if err != nil {
		return personality.State{}, fmt.Errorf("storage: load overrides: %w", err)
	}
	defer rows.Close()

	var state personality.State
	for rows.Next() {
		var (
			version int
			raw     []byte
		)
		if err := rows.Scan(&version, &raw); err != nil {
			return personality.State{}, fmt.Errorf("storage: scan override: %w", err)
		}
		var agent model.AgentConfig
		if err := json.Unmarshal(raw, &agent); err != nil {
			return personality.State{}, fmt.Errorf("storage: decode override: %w", err)
		}
		if version > state.Version {
			state.Version = version
		}
		state.Agents = append(state.Agents, agent)
	}
	if err := rows.Err(); err != nil {
		return personality.State{}, fmt.Errorf("storage: load overrides: %w", err)
	}
	if len(state.Agents) == 0 {
		return personality.State{}, personality.ErrNoOverrides
	}
	return state, nil
}

// SaveOverride upserts one agent override under the given schema version.
func (db *DB) SaveOverride(ctx context.Context, version int, agent model.AgentConfig) error {
	raw, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("storage: encode override: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO personality_overrides (agent_id, version, config, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (agent_id) DO UPDATE
		 SET version = EXCLUDED.version, config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`,
		agent.ID, version, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: save override: %w", err)
	}
	return nil
}

// ClearOverrides deletes every persisted override.
func (db *DB) ClearOverrides(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM personality_overrides`); err != nil {
		return fmt.Errorf("storage: clear overrides: %w", err)
	}
	return nil
}
