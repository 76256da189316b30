// Package prompt composes the instruction payloads sent to the language
// model: the master personality merged with handler-specific directives, and
// the per-role directive profiles assembled from agent definitions.
package prompt

import (
	"log/slog"
	"strings"
)

// sectionDivider separates the master personality from handler directives.
// The master always comes first so every specialized handler inherits the
// base voice before its own constraints.
const sectionDivider = "\n\n---\n\n# Swarm-Specific Directives\n\n"

// WithMaster merges the master personality prompt with handler-specific
// directive text. A blank side passes the other through unchanged; the
// degenerate case is logged as a diagnostic, not surfaced to the caller.
// A nil logger falls back to slog.Default.
func WithMaster(master, directives string, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	master = strings.TrimSpace(master)
	directives = strings.TrimSpace(directives)

	if master == "" {
		logger.Debug("master personality is empty, using handler directives only")
		return directives
	}
	if directives == "" {
		logger.Debug("handler directives are empty, using master personality only")
		return master
	}
	return master + sectionDivider + directives
}
