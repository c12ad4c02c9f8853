package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
	"parking-service/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    *repository.MemoryStore
	config   *ConfigService
	registry *SpecialPlateRegistry
	capacity *CapacityAccountant
	ledger   *SessionLedger
	clock    *fakeClock
}

func quietLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newFixture(t *testing.T, cfg parking.Config) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	return newFixtureWithStore(t, cfg, store, store)
}

func newFixtureWithStore(t *testing.T, cfg parking.Config, store *repository.MemoryStore, sessions SessionRepository) *fixture {
	t.Helper()
	log := quietLogger()
	clock := newFakeClock()

	config := NewConfigService(store, cfg, log)
	registry := NewSpecialPlateRegistry(store, log)
	capacity := NewCapacityAccountant(sessions, config)
	ledger := NewSessionLedger(sessions, config, registry, capacity, log).WithClock(clock.Now)

	return &fixture{
		store:    store,
		config:   config,
		registry: registry,
		capacity: capacity,
		ledger:   ledger,
		clock:    clock,
	}
}

func smallLot(cars, bikes int) parking.Config {
	cfg := parking.DefaultConfig()
	cfg.CarCapacity = cars
	cfg.BikeCapacity = bikes
	return cfg
}

func (f *fixture) historyLen(t *testing.T) int {
	t.Helper()
	records, err := f.store.AllHistory(context.Background())
	if err != nil {
		t.Fatalf("AllHistory: %v", err)
	}
	return len(records)
}

func (f *fixture) activeLen(t *testing.T) int {
	t.Helper()
	sessions, err := f.store.ListActiveSessions(context.Background(), parking.ListFilter{})
	if err != nil {
		t.Fatalf("ListActiveSessions: %v", err)
	}
	return len(sessions)
}
