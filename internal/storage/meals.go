package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hipat/pat/internal/model"
)

// InsertMealLog persists one meal entry and returns it with ID and CreatedAt set.
func (db *DB) InsertMealLog(ctx context.Context, log model.MealLog) (model.MealLog, error) {
	log.ID = uuid.New()
	log.CreatedAt = time.Now().UTC()

	err := WithRetry(ctx, 2, 50*time.Millisecond, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO meal_logs (id, user_id, description, slot, eaten_at, kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, source, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			log.ID, log.UserID, log.Description, string(log.Slot), log.EatenAt,
			log.Macros.Kcal, log.Macros.ProteinG, log.Macros.CarbsG, log.Macros.FatG, log.Macros.FiberG,
			log.Confidence, log.Source, log.CreatedAt,
		)
		return err
	})
	if err != nil {
		return model.MealLog{}, fmt.Errorf("storage: insert meal log: %w", err)
	}
	return log, nil
}

// ListMealLogs returns a user's meals with eaten_at in [from, to), newest first.
func (db *DB) ListMealLogs(ctx context.Context, userID string, from, to time.Time) ([]model.MealLog, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, description, slot, eaten_at, kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, source, created_at
		 FROM meal_logs
		 WHERE user_id = $1 AND eaten_at >= $2 AND eaten_at < $3
		 ORDER BY eaten_at DESC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list meal logs: %w", err)
	}
	defer rows.Close()

	var logs []model.MealLog
	for rows.Next() {
		log, err := scanMealLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// DeleteLastMealLog removes the user's most recently created meal entry and
// returns it, so the caller can tell the user what was undone.
func (db *DB) DeleteLastMealLog(ctx context.Context, userID string) (model.MealLog, error) {
	var log model.MealLog
	err := WithRetry(ctx, 2, 50*time.Millisecond, func() error {
		row := db.pool.QueryRow(ctx,
			`DELETE FROM meal_logs
			 WHERE id = (SELECT id FROM meal_logs WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1)
			 RETURNING id, user_id, description, slot, eaten_at, kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, source, created_at`,
			userID,
		)
		var scanErr error
		log, scanErr = scanMealLog(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MealLog{}, ErrNotFound
		}
		return model.MealLog{}, err
	}
	return log, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMealLog(row rowScanner) (model.MealLog, error) {
	var (
		log  model.MealLog
		slot string
	)
	err := row.Scan(
		&log.ID, &log.UserID, &log.Description, &slot, &log.EatenAt,
		&log.Macros.Kcal, &log.Macros.ProteinG, &log.Macros.CarbsG, &log.Macros.FatG, &log.Macros.FiberG,
		&log.Confidence, &log.Source, &log.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MealLog{}, err
		}
		return model.MealLog{}, fmt.Errorf("storage: scan meal log: %w", err)
	}
	log.Slot = model.MealSlot(slot)
	return log, nil
}
