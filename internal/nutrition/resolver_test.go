package nutrition

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestResolver(t *testing.T, handler http.HandlerFunc, cache Cache) *HTTPResolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r := NewHTTPResolver(srv.URL, cache, discardLogger())
	r.baseDelay = time.Millisecond
	return r
}

func macroHandler(calls *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		var in resolveRequest
		_ = json.NewDecoder(req.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"kcal": 165.0, "protein_g": 31.0, "carbs_g": 0.0, "fat_g": 3.6,
			"confidence": 0.92, "source": "usda", "basis": "cooked",
		})
	}
}

func TestResolveSuccess(t *testing.T) {
	var calls atomic.Int64
	r := newTestResolver(t, macroHandler(&calls), nil)

	est, err := r.Resolve(context.Background(), "chicken breast", false)
	require.NoError(t, err)
	assert.InDelta(t, 165, est.Macros.Kcal, 1e-9)
	assert.InDelta(t, 31, est.Macros.ProteinG, 1e-9)
	assert.Equal(t, "usda", est.Source)
	assert.Equal(t, "cooked", est.Basis)
}

func TestResolveInvalidInput(t *testing.T) {
	r := newTestResolver(t, macroHandler(nil), nil)
	_, err := r.Resolve(context.Background(), "   ", false)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolveMissingFieldIsBadShape(t *testing.T) {
	var calls atomic.Int64
	r := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"kcal": 100.0, "protein_g": 10.0})
	}, nil)

	_, err := r.Resolve(context.Background(), "mystery paste", false)
	require.ErrorIs(t, err, ErrBadShape)
	assert.Contains(t, err.Error(), "carbs_g")
	// Malformed contracts are not retried.
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolveNonNumericFieldIsBadShape(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"kcal":"lots","protein_g":1,"carbs_g":2,"fat_g":3}`))
	}, nil)

	_, err := r.Resolve(context.Background(), "soup", false)
	assert.ErrorIs(t, err, ErrBadShape)
}

func TestResolveUpstreamFailureRetriedThenSurfaced(t *testing.T) {
	var calls atomic.Int64
	r := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := r.Resolve(context.Background(), "tofu", false)
	require.ErrorIs(t, err, ErrUpstream)
	assert.EqualValues(t, 3, calls.Load(), "5xx must be retried to exhaustion")
}

func TestResolveClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	r := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, nil)

	_, err := r.Resolve(context.Background(), "tofu", false)
	require.ErrorIs(t, err, ErrUpstream)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolveCacheHitBypassesUpstream(t *testing.T) {
	var calls atomic.Int64
	cache := NewMemoryCache(time.Hour)
	r := newTestResolver(t, macroHandler(&calls), cache)

	_, err := r.Resolve(context.Background(), "Chicken  Breast", true)
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())

	// Same food, different spacing and case: normalized key hits the cache.
	_, err = r.Resolve(context.Background(), "chicken breast", true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load(), "cache hit must bypass the upstream call")
}

func TestResolveCacheDisabledAlwaysCallsUpstream(t *testing.T) {
	var calls atomic.Int64
	cache := NewMemoryCache(time.Hour)
	r := newTestResolver(t, macroHandler(&calls), cache)

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(context.Background(), "rice", false)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, calls.Load())
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "chicken breast", NormalizeKey("  Chicken   BREAST "))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	base := time.Now()
	c.now = func() time.Time { return base }

	require.NoError(t, c.Set(context.Background(), "k", Estimate{Confidence: 1}))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should have expired")

	c.Evict()
	assert.Empty(t, c.entries)
}
