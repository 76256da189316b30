// Package nutrition normalizes free-text food descriptions into structured
// macro-nutrient records by delegating to an external estimation service.
// The service is a black box returning JSON; this package owns validation,
// caching, and the error taxonomy callers branch on.
package nutrition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/retry"
)

// Error taxonomy. Callers must be able to distinguish a caller mistake from a
// broken upstream from a well-delivered-but-malformed payload.
var (
	// ErrInvalidInput: empty or unusable food name. Never retried.
	ErrInvalidInput = errors.New("nutrition: invalid input")
	// ErrUpstream: the estimation service failed or timed out. Retried with
	// backoff before surfacing.
	ErrUpstream = errors.New("nutrition: upstream failure")
	// ErrBadShape: a response arrived but required numeric fields are missing.
	// Not retried; retrying an already-malformed contract is unlikely to help.
	ErrBadShape = errors.New("nutrition: bad response shape")
)

// Estimate is a resolved macro-nutrient record for one food description.
type Estimate struct {
	Macros     model.Macros `json:"macros"`
	Confidence float64      `json:"confidence,omitempty"`
	Source     string       `json:"source,omitempty"`
	Basis      string       `json:"basis,omitempty"` // cooked | raw | as-served
}

// Resolver turns a food name into an Estimate.
type Resolver interface {
	Resolve(ctx context.Context, foodName string, useCache bool) (Estimate, error)
}

// Cache stores estimates keyed by normalized food name. Policy (TTL,
// eviction) belongs to the implementation, not to the resolver.
type Cache interface {
	Get(ctx context.Context, key string) (Estimate, bool, error)
	Set(ctx context.Context, key string, est Estimate) error
}

// HTTPResolver calls an external macro estimation endpoint.
type HTTPResolver struct {
	url        string
	httpClient *http.Client
	cache      Cache
	group      singleflight.Group
	tries      int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewHTTPResolver creates a resolver for the given endpoint URL. cache may be
// nil, in which case useCache is a no-op.
func NewHTTPResolver(url string, cache Cache, logger *slog.Logger) *HTTPResolver {
	return &HTTPResolver{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cache,
		tries:      retry.DefaultTries,
		baseDelay:  retry.DefaultBase,
		logger:     logger,
	}
}

type resolveRequest struct {
	FoodName string `json:"foodName"`
}

// resolveResponse uses pointers so a missing field is distinguishable from a
// legitimate zero.
type resolveResponse struct {
	Kcal       *float64 `json:"kcal"`
	ProteinG   *float64 `json:"protein_g"`
	CarbsG     *float64 `json:"carbs_g"`
	FatG       *float64 `json:"fat_g"`
	FiberG     *float64 `json:"fiber_g"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source"`
	Basis      string   `json:"basis"`
}

// NormalizeKey canonicalizes a food name for cache keying: lower-cased with
// whitespace collapsed.
func NormalizeKey(foodName string) string {
	return strings.Join(strings.Fields(strings.ToLower(foodName)), " ")
}

// Resolve fetches macros for foodName. With useCache, a cache hit bypasses
// the upstream entirely and concurrent misses for the same key share one
// upstream call.
func (r *HTTPResolver) Resolve(ctx context.Context, foodName string, useCache bool) (Estimate, error) {
	key := NormalizeKey(foodName)
	if key == "" {
		return Estimate{}, fmt.Errorf("%w: empty food name", ErrInvalidInput)
	}

	if useCache && r.cache != nil {
		est, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("nutrition: cache read failed, falling through", "key", key, "error", err)
		} else if ok {
			return est, nil
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		est, err := r.fetch(ctx, foodName)
		if err != nil {
			return Estimate{}, err
		}
		if useCache && r.cache != nil {
			if err := r.cache.Set(ctx, key, est); err != nil {
				r.logger.Warn("nutrition: cache write failed", "key", key, "error", err)
			}
		}
		return est, nil
	})
	if err != nil {
		return Estimate{}, err
	}
	return v.(Estimate), nil
}

// fetch performs the upstream call with retry on transient failures.
func (r *HTTPResolver) fetch(ctx context.Context, foodName string) (Estimate, error) {
	var est Estimate
	err := retry.Do(ctx, r.tries, r.baseDelay, func(ctx context.Context) error {
		var attemptErr error
		est, attemptErr = r.fetchOnce(ctx, foodName)
		return attemptErr
	})
	return est, err
}

func (r *HTTPResolver) fetchOnce(ctx context.Context, foodName string) (Estimate, error) {
	body, err := json.Marshal(resolveRequest{FoodName: foodName})
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: marshal request: %v", ErrInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: create request: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Estimate{}, retry.Transient(fmt.Errorf("%w: %v", ErrUpstream, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(snippet))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return Estimate{}, retry.Transient(err)
		}
		return Estimate{}, err
	}

	var decoded resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Estimate{}, fmt.Errorf("%w: decode: %v", ErrBadShape, err)
	}
	return validate(decoded)
}

// validate enforces the response contract: all four macro fields present and
// numeric. Estimates are never fabricated on failure; the caller must see an
// explicit error.
func validate(resp resolveResponse) (Estimate, error) {
	missing := make([]string, 0, 4)
	if resp.Kcal == nil {
		missing = append(missing, "kcal")
	}
	if resp.ProteinG == nil {
		missing = append(missing, "protein_g")
	}
	if resp.CarbsG == nil {
		missing = append(missing, "carbs_g")
	}
	if resp.FatG == nil {
		missing = append(missing, "fat_g")
	}
	if len(missing) > 0 {
		return Estimate{}, fmt.Errorf("%w: missing fields %s", ErrBadShape, strings.Join(missing, ", "))
	}

	est := Estimate{
		Macros: model.Macros{
			Kcal:     *resp.Kcal,
			ProteinG: *resp.ProteinG,
			CarbsG:   *resp.CarbsG,
			FatG:     *resp.FatG,
		},
		Confidence: resp.Confidence,
		Source:     resp.Source,
		Basis:      resp.Basis,
	}
	if resp.FiberG != nil {
		est.Macros.FiberG = *resp.FiberG
	}
	return est, nil
}
