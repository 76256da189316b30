package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/hipat/pat/internal/nutrition"
)

// FoodCache is the persistent, cross-user nutrition cache backed by the
// food_cache table. It implements nutrition.Cache; the embedding column is
// optional and only used by SimilarFoods.
type FoodCache struct {
	db  *DB
	ttl time.Duration
}

// NewFoodCache wraps db as a nutrition cache with the given entry TTL.
func NewFoodCache(db *DB, ttl time.Duration) *FoodCache {
	return &FoodCache{db: db, ttl: ttl}
}

// Get returns the cached estimate for key, if present and unexpired.
func (c *FoodCache) Get(ctx context.Context, key string) (nutrition.Estimate, bool, error) {
	var est nutrition.Estimate
	err := c.db.pool.QueryRow(ctx,
		`SELECT kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, source, basis
		 FROM food_cache WHERE key = $1 AND expires_at > now()`, key,
	).Scan(
		&est.Macros.Kcal, &est.Macros.ProteinG, &est.Macros.CarbsG, &est.Macros.FatG, &est.Macros.FiberG,
		&est.Confidence, &est.Source, &est.Basis,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nutrition.Estimate{}, false, nil
		}
		return nutrition.Estimate{}, false, fmt.Errorf("storage: food cache get: %w", err)
	}
	return est, true, nil
}

// Set upserts the estimate for key, resetting the expiry window.
func (c *FoodCache) Set(ctx context.Context, key string, est nutrition.Estimate) error {
	now := time.Now().UTC()
	_, err := c.db.pool.Exec(ctx,
		`INSERT INTO food_cache (key, kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, source, basis, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (key) DO UPDATE SET
		   kcal = EXCLUDED.kcal, protein_g = EXCLUDED.protein_g, carbs_g = EXCLUDED.carbs_g,
		   fat_g = EXCLUDED.fat_g, fiber_g = EXCLUDED.fiber_g, confidence = EXCLUDED.confidence,
		   source = EXCLUDED.source, basis = EXCLUDED.basis, expires_at = EXCLUDED.expires_at`,
		key, est.Macros.Kcal, est.Macros.ProteinG, est.Macros.CarbsG, est.Macros.FatG, est.Macros.FiberG,
		est.Confidence, est.Source, est.Basis, now, now.Add(c.ttl),
	)
	if err != nil {
		return fmt.Errorf("storage: food cache set: %w", err)
	}
	return nil
}

// AttachEmbedding stores the embedding vector for an existing cache entry.
// A missing entry is not an error: the entry may have expired and been
// reaped between resolution and embedding.
func (c *FoodCache) AttachEmbedding(ctx context.Context, key string, vec pgvector.Vector) error {
	if _, err := c.db.pool.Exec(ctx,
		`UPDATE food_cache SET embedding = $1 WHERE key = $2`, vec, key,
	); err != nil {
		return fmt.Errorf("storage: attach embedding: %w", err)
	}
	return nil
}

// SimilarFood is one nearest-neighbor hit from the food cache.
type SimilarFood struct {
	Key      string
	Estimate nutrition.Estimate
	Distance float64 // cosine distance, lower is closer
}

// SimilarFoods returns up to limit unexpired cache entries nearest to vec by
// cosine distance. Entries without an embedding are skipped.
func (c *FoodCache) SimilarFoods(ctx context.Context, vec pgvector.Vector, limit int) ([]SimilarFood, error) {
	rows, err := c.db.pool.Query(ctx,
		`SELECT key, kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, source, basis,
		        embedding <=> $1 AS distance
		 FROM food_cache
		 WHERE embedding IS NOT NULL AND expires_at > now()
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: similar foods: %w", err)
	}
	defer rows.Close()

	var out []SimilarFood
	for rows.Next() {
		var s SimilarFood
		if err := rows.Scan(
			&s.Key, &s.Estimate.Macros.Kcal, &s.Estimate.Macros.ProteinG, &s.Estimate.Macros.CarbsG,
			&s.Estimate.Macros.FatG, &s.Estimate.Macros.FiberG, &s.Estimate.Confidence,
			&s.Estimate.Source, &s.Estimate.Basis, &s.Distance,
		); err != nil {
			return nil, fmt.Errorf("storage: scan similar food: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MissingEmbeddings returns up to limit unexpired cache keys that have no
// embedding yet, oldest first.
func (c *FoodCache) MissingEmbeddings(ctx context.Context, limit int) ([]string, error) {
	rows, err := c.db.pool.Query(ctx,
		`SELECT key FROM food_cache
		 WHERE embedding IS NULL AND expires_at > now()
		 ORDER BY expires_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: missing embeddings: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Reap deletes expired food cache rows and returns how many were removed.
func (c *FoodCache) Reap(ctx context.Context) (int64, error) {
	tag, err := c.db.pool.Exec(ctx, `DELETE FROM food_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("storage: reap food cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
