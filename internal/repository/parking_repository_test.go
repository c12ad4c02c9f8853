//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parking-service/internal/config"
	"parking-service/internal/db"
	"parking-service/internal/domain/parking"
)

func setupTestDB(t *testing.T) (*ParkingRepository, *gorm.DB) {
	t.Helper()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	gdb, err := db.Connect(config.DatabaseConfig{
		DSN:          dsn,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		AutoMigrate:  true,
	}, zerolog.Nop())
	require.NoError(t, err)

	truncate := func() {
		gdb.Exec("TRUNCATE active_sessions, transaction_history, special_plates, gate_events, parking_config")
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return NewParkingRepository(gdb), gdb
}

func TestParkingRepository_ConfigSeedAndSave(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	cfg, err := repo.EnsureConfig(ctx, parking.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.CarCapacity)

	cfg.BikeRate = 12.5
	require.NoError(t, repo.SaveConfig(ctx, cfg))

	again, err := repo.EnsureConfig(ctx, parking.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 12.5, again.BikeRate)
}

func TestParkingRepository_SessionLifecycle(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()
	entry := time.Now().UTC().Truncate(time.Second)

	session := parking.ActiveSession{Plate: "MH12AB1234", VehicleClass: parking.ClassCar, EntryTime: entry, EvidenceRef: "snap.jpg"}
	require.NoError(t, repo.CreateActiveSession(ctx, session))
	assert.ErrorIs(t, repo.CreateActiveSession(ctx, session), parking.ErrAlreadyActive)

	n, err := repo.CountActiveSessions(ctx, parking.ClassCar)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := parking.HistoryRecord{
		ID:              uuid.NewString(),
		Plate:           "MH12AB1234",
		VehicleClass:    parking.ClassCar,
		EntryTime:       entry,
		ExitTime:        entry.Add(45 * time.Minute),
		DurationMinutes: 45,
		Fee:             20,
		EvidenceRef:     "snap.jpg",
	}
	require.NoError(t, repo.CloseSession(ctx, "MH12AB1234", rec))

	rec.ID = uuid.NewString()
	assert.ErrorIs(t, repo.CloseSession(ctx, "MH12AB1234", rec), parking.ErrSessionNotFound)

	history, err := repo.ListHistory(ctx, parking.ListFilter{PlateQuery: "ab12"})
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = repo.ListHistory(ctx, parking.ListFilter{PlateQuery: "ab1234"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "snap.jpg", history[0].EvidenceRef)

	total, err := repo.TotalRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, total)
}

func TestParkingRepository_SpecialPlatesAndEvents(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.UpsertSpecialPlate(ctx, parking.SpecialPlate{Plate: "BAD1", Category: parking.CategoryVIP, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.UpsertSpecialPlate(ctx, parking.SpecialPlate{Plate: "BAD1", Category: parking.CategoryBlacklist, Note: "stolen", CreatedAt: now, UpdatedAt: now}))

	got, err := repo.GetSpecialPlate(ctx, "BAD1")
	require.NoError(t, err)
	assert.Equal(t, parking.CategoryBlacklist, got.Category)
	assert.Equal(t, "stolen", got.Note)

	require.NoError(t, repo.DeleteSpecialPlate(ctx, "BAD1"))
	assert.ErrorIs(t, repo.DeleteSpecialPlate(ctx, "BAD1"), parking.ErrPlateNotFound)

	fee := 40.0
	event := &parking.GateEvent{
		RunID:      uuid.NewString(),
		Role:       parking.RoleAuto,
		Action:     "release",
		Result:     "exited",
		Plate:      "MH12AB1234",
		Fee:        &fee,
		RawPayload: map[string]interface{}{"frame": 1200},
		EventTime:  now,
	}
	require.NoError(t, repo.CreateGateEvent(ctx, event))
	assert.NotEmpty(t, event.ID)
}

func TestParkingRepository_Reset(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateActiveSession(ctx, parking.ActiveSession{Plate: "A1", VehicleClass: parking.ClassBike, EntryTime: time.Now()}))

	cfg := parking.DefaultConfig()
	cfg.TotalFloors = 3
	require.NoError(t, repo.Reset(ctx, cfg))

	n, err := repo.CountActiveSessions(ctx, parking.ClassBike)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.EnsureConfig(ctx, parking.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalFloors)
}
