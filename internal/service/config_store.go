package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
)

// ConfigService owns the singleton parking config and serves reads from a
// snapshot that is refreshed on every write.
type ConfigService struct {
	repo     ConfigRepository
	defaults parking.Config
	log      zerolog.Logger

	mu       sync.RWMutex
	snapshot *parking.Config
}

func NewConfigService(repo ConfigRepository, defaults parking.Config, log zerolog.Logger) *ConfigService {
	return &ConfigService{
		repo:     repo,
		defaults: defaults,
		log:      log,
	}
}

func (s *ConfigService) Get(ctx context.Context) (parking.Config, error) {
	s.mu.RLock()
	if s.snapshot != nil {
		cfg := *s.snapshot
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *ConfigService) loadLocked(ctx context.Context) (parking.Config, error) {
	if s.snapshot != nil {
		return *s.snapshot, nil
	}
	cfg, err := s.repo.EnsureConfig(ctx, s.defaults)
	if err != nil {
		return parking.Config{}, fmt.Errorf("failed to load parking config: %w", err)
	}
	s.snapshot = &cfg
	return cfg, nil
}

func (s *ConfigService) Update(ctx context.Context, upd parking.ConfigUpdate) (parking.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked(ctx)
	if err != nil {
		return parking.Config{}, err
	}

	next := upd.Apply(current)
	if err := next.Validate(); err != nil {
		return parking.Config{}, err
	}
	next.UpdatedAt = time.Now()

	if err := s.repo.SaveConfig(ctx, next); err != nil {
		return parking.Config{}, fmt.Errorf("failed to save parking config: %w", err)
	}
	s.snapshot = &next

	s.log.Info().
		Int("total_floors", next.TotalFloors).
		Int("car_capacity", next.CarCapacity).
		Int("bike_capacity", next.BikeCapacity).
		Float64("car_rate", next.CarRate).
		Float64("bike_rate", next.BikeRate).
		Int("grace_minutes", next.GraceMinutes).
		Msg("parking config updated")

	return next, nil
}

func (s *ConfigService) Defaults() parking.Config {
	return s.defaults
}

// replace swaps the snapshot after the store was rewritten elsewhere (factory reset).
func (s *ConfigService) replace(cfg parking.Config) {
	s.mu.Lock()
	s.snapshot = &cfg
	s.mu.Unlock()
}
