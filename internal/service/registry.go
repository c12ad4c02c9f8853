package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
	"parking-service/internal/utils"
)

// SpecialPlateRegistry holds VIP and blacklist entries. Lookups are served
// from an in-memory copy loaded on first use and updated on every write.
type SpecialPlateRegistry struct {
	repo SpecialPlateRepository
	log  zerolog.Logger

	mu     sync.RWMutex
	cache  map[string]parking.SpecialPlate
	loaded bool
}

func NewSpecialPlateRegistry(repo SpecialPlateRepository, log zerolog.Logger) *SpecialPlateRegistry {
	return &SpecialPlateRegistry{
		repo:  repo,
		log:   log,
		cache: make(map[string]parking.SpecialPlate),
	}
}

// Lookup returns the category registered for plate, or "" when none is.
func (r *SpecialPlateRegistry) Lookup(ctx context.Context, plate string) (parking.SpecialCategory, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.cache[utils.NormalizePlate(plate)]; ok {
		return p.Category, nil
	}
	return "", nil
}

func (r *SpecialPlateRegistry) Upsert(ctx context.Context, plate string, category parking.SpecialCategory, note string) (parking.SpecialPlate, error) {
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return parking.SpecialPlate{}, fmt.Errorf("%w: plate cannot be empty after normalization", parking.ErrInvalidInput)
	}
	category, err := parking.ParseSpecialCategory(string(category))
	if err != nil {
		return parking.SpecialPlate{}, err
	}
	if err := r.ensureLoaded(ctx); err != nil {
		return parking.SpecialPlate{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry := parking.SpecialPlate{
		Plate:     normalized,
		Category:  category,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := r.cache[normalized]; ok {
		entry.CreatedAt = existing.CreatedAt
	}

	if err := r.repo.UpsertSpecialPlate(ctx, entry); err != nil {
		return parking.SpecialPlate{}, fmt.Errorf("failed to save special plate: %w", err)
	}
	r.cache[normalized] = entry

	r.log.Info().
		Str("plate", normalized).
		Str("category", string(category)).
		Msg("special plate registered")

	return entry, nil
}

func (r *SpecialPlateRegistry) Remove(ctx context.Context, plate string) error {
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return fmt.Errorf("%w: plate cannot be empty after normalization", parking.ErrInvalidInput)
	}
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.DeleteSpecialPlate(ctx, normalized); err != nil {
		if errors.Is(err, parking.ErrPlateNotFound) {
			delete(r.cache, normalized)
			return err
		}
		return fmt.Errorf("failed to delete special plate: %w", err)
	}
	delete(r.cache, normalized)

	r.log.Info().Str("plate", normalized).Msg("special plate removed")
	return nil
}

func (r *SpecialPlateRegistry) List(ctx context.Context) ([]parking.SpecialPlate, error) {
	plates, err := r.repo.ListSpecialPlates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list special plates: %w", err)
	}
	return plates, nil
}

func (r *SpecialPlateRegistry) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	plates, err := r.repo.ListSpecialPlates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load special plates: %w", err)
	}
	for _, p := range plates {
		r.cache[p.Plate] = p
	}
	r.loaded = true
	return nil
}
