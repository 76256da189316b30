package prompt

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithMasterEmptyMaster(t *testing.T) {
	assert.Equal(t, "X", WithMaster("", "X", nil))
	assert.Equal(t, "X", WithMaster("   \n", "X", nil))
}

func TestWithMasterEmptyDirectives(t *testing.T) {
	assert.Equal(t, "M", WithMaster("M", "", nil))
	assert.Equal(t, "M", WithMaster("M", "  ", nil))
}

func TestWithMasterOrdering(t *testing.T) {
	out := WithMaster("M", "X", nil)
	mi := strings.Index(out, "M")
	xi := strings.Index(out, "X")
	assert.GreaterOrEqual(t, mi, 0)
	assert.GreaterOrEqual(t, xi, 0)
	assert.Less(t, mi, xi, "master content must precede handler content")
	assert.Contains(t, out, "Swarm-Specific Directives")
}

func TestWithMasterBothEmpty(t *testing.T) {
	assert.Equal(t, "", WithMaster("", "", nil))
}

func TestWithMasterLogsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	WithMaster("", "X", logger)
	assert.Contains(t, buf.String(), "master personality is empty")

	buf.Reset()
	WithMaster("M", "", logger)
	assert.Contains(t, buf.String(), "handler directives are empty")
}
