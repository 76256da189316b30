package storage_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/personality"
	"github.com/hipat/pat/internal/storage"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	if os.Getenv("PAT_INTEGRATION") == "" {
		fmt.Fprintln(os.Stderr, "skipping storage integration tests: set PAT_INTEGRATION=1 to run")
		os.Exit(0)
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pat",
			"POSTGRES_PASSWORD": "pat",
			"POSTGRES_DB":       "pat",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://pat:pat@%s:%s/pat?sslmode=disable", host, port.Port())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	testDB, err = storage.New(ctx, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.RunMigrations(ctx, os.DirFS("../../migrations")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestPersonalityOverridesRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.ClearOverrides(ctx))

	_, err := testDB.LoadOverrides(ctx)
	require.ErrorIs(t, err, personality.ErrNoOverrides)

	agent := model.AgentConfig{
		ID: "tmwya-parser", Name: "Meal Logger (edited)", RoleSlug: "tmwya",
		Phase: model.PhaseCore, Enabled: false, Order: 1,
		Instructions:   "edited",
		EnabledForPaid: true,
	}
	require.NoError(t, testDB.SaveOverride(ctx, personality.CurrentVersion, agent))

	state, err := testDB.LoadOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, personality.CurrentVersion, state.Version)
	require.Len(t, state.Agents, 1)
	assert.Equal(t, agent, state.Agents[0])

	// Saving the same agent again replaces, not duplicates.
	agent.Enabled = true
	require.NoError(t, testDB.SaveOverride(ctx, personality.CurrentVersion, agent))
	state, err = testDB.LoadOverrides(ctx)
	require.NoError(t, err)
	require.Len(t, state.Agents, 1)
	assert.True(t, state.Agents[0].Enabled)

	require.NoError(t, testDB.ClearOverrides(ctx))
	_, err = testDB.LoadOverrides(ctx)
	assert.ErrorIs(t, err, personality.ErrNoOverrides)
}

func TestMealLogLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := "meal-user-1"

	eaten := time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC)
	logged, err := testDB.InsertMealLog(ctx, model.MealLog{
		UserID:      userID,
		Description: "chicken breast and rice",
		Slot:        model.SlotLunch,
		EatenAt:     eaten,
		Macros:      model.Macros{Kcal: 520, ProteinG: 45, CarbsG: 55, FatG: 10},
		Confidence:  0.9,
		Source:      "resolver",
	})
	require.NoError(t, err)
	assert.NotZero(t, logged.ID)
	assert.False(t, logged.CreatedAt.IsZero())

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	logs, err := testDB.ListMealLogs(ctx, userID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "chicken breast and rice", logs[0].Description)
	assert.Equal(t, model.SlotLunch, logs[0].Slot)
	assert.InDelta(t, 520, logs[0].Macros.Kcal, 0.001)

	// Another user's window is empty.
	logs, err = testDB.ListMealLogs(ctx, "someone-else", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestDeleteLastMealLog(t *testing.T) {
	ctx := context.Background()
	userID := "undo-user-1"

	_, err := testDB.DeleteLastMealLog(ctx, userID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	first, err := testDB.InsertMealLog(ctx, model.MealLog{
		UserID: userID, Description: "oatmeal", Slot: model.SlotBreakfast,
		EatenAt: time.Now().UTC().Add(-3 * time.Hour),
		Macros:  model.Macros{Kcal: 300, ProteinG: 10, CarbsG: 50, FatG: 6},
	})
	require.NoError(t, err)

	second, err := testDB.InsertMealLog(ctx, model.MealLog{
		UserID: userID, Description: "protein shake", Slot: model.SlotSnack,
		EatenAt: time.Now().UTC(),
		Macros:  model.Macros{Kcal: 180, ProteinG: 30, CarbsG: 8, FatG: 3},
	})
	require.NoError(t, err)

	undone, err := testDB.DeleteLastMealLog(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, undone.ID, "the most recently created entry is undone first")
	assert.Equal(t, "protein shake", undone.Description)

	undone, err = testDB.DeleteLastMealLog(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, undone.ID)

	_, err = testDB.DeleteLastMealLog(ctx, userID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFoodCache(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewFoodCache(testDB, time.Hour)

	_, ok, err := cache.Get(ctx, "banana")
	require.NoError(t, err)
	assert.False(t, ok)

	est := nutrition.Estimate{
		Macros:     model.Macros{Kcal: 105, ProteinG: 1.3, CarbsG: 27, FatG: 0.4, FiberG: 3.1},
		Confidence: 0.95,
		Source:     "resolver",
		Basis:      "as-served",
	}
	require.NoError(t, cache.Set(ctx, "banana", est))

	got, ok, err := cache.Get(ctx, "banana")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, est, got)

	// Expired entries behave as misses and Reap removes them.
	expired := storage.NewFoodCache(testDB, -time.Minute)
	require.NoError(t, expired.Set(ctx, "stale toast", est))
	_, ok, err = expired.Get(ctx, "stale toast")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := cache.Reap(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}

func TestFoodCacheSimilarity(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewFoodCache(testDB, time.Hour)

	// Three entries with toy embeddings along distinct axes. The migration
	// declares vector(1024); pad accordingly.
	vec := func(axis int) pgvector.Vector {
		v := make([]float32, 1024)
		v[axis] = 1
		return pgvector.NewVector(v)
	}

	foods := map[string]int{"grilled chicken": 0, "chicken thigh": 1, "apple pie": 500}
	for name, axis := range foods {
		require.NoError(t, cache.Set(ctx, name, nutrition.Estimate{
			Macros: model.Macros{Kcal: 200, ProteinG: 20, CarbsG: 5, FatG: 8},
		}))
		require.NoError(t, cache.AttachEmbedding(ctx, name, vec(axis)))
	}

	// Query near the "grilled chicken" axis.
	q := make([]float32, 1024)
	q[0], q[1] = 0.9, 0.1
	hits, err := cache.SimilarFoods(ctx, pgvector.NewVector(q), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "grilled chicken", hits[0].Key)
	assert.Equal(t, "chicken thigh", hits[1].Key)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
}
