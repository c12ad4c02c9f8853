package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parking-service/internal/billing"
	"parking-service/internal/domain/parking"
	"parking-service/internal/metrics"
	"parking-service/internal/utils"
)

// SessionLedger owns active sessions and the closed transaction history.
//
// Per plate there are two states, absent and active. Admit moves a plate to
// active, Release moves it back and appends exactly one history record. All
// transitions run under one mutex so two detections of the same plate cannot
// both be admitted.
type SessionLedger struct {
	sessions SessionRepository
	config   *ConfigService
	registry *SpecialPlateRegistry
	capacity *CapacityAccountant
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewSessionLedger(
	sessions SessionRepository,
	config *ConfigService,
	registry *SpecialPlateRegistry,
	capacity *CapacityAccountant,
	log zerolog.Logger,
) *SessionLedger {
	return &SessionLedger{
		sessions: sessions,
		config:   config,
		registry: registry,
		capacity: capacity,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for entry and exit timestamps.
func (l *SessionLedger) WithClock(now func() time.Time) *SessionLedger {
	l.now = now
	return l
}

// Admit opens a session for plate. Checks run in order: blacklist, capacity,
// existing session.
func (l *SessionLedger) Admit(ctx context.Context, plate string, class parking.VehicleClass, evidenceRef string) (parking.SessionOutcome, error) {
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return parking.SessionOutcome{}, fmt.Errorf("%w: plate cannot be empty after normalization", parking.ErrInvalidInput)
	}
	if !class.Valid() {
		return parking.SessionOutcome{}, fmt.Errorf("%w: unknown vehicle class %q", parking.ErrInvalidInput, class)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	category, err := l.registry.Lookup(ctx, normalized)
	if err != nil {
		return parking.SessionOutcome{}, err
	}
	if category == parking.CategoryBlacklist {
		metrics.RejectionsTotal.WithLabelValues("blacklisted").Inc()
		l.log.Warn().
			Str("plate", normalized).
			Str("vehicle_class", string(class)).
			Msg("blacklisted plate refused admission")
		return parking.SessionOutcome{}, &parking.AdmitError{Reason: parking.ErrBlacklisted, Plate: normalized, VehicleClass: class}
	}

	occupied, capacity, err := l.capacity.FreeSpots(ctx, class)
	if err != nil {
		return parking.SessionOutcome{}, err
	}
	if occupied >= capacity {
		metrics.RejectionsTotal.WithLabelValues("capacity_exceeded").Inc()
		l.log.Info().
			Str("plate", normalized).
			Str("vehicle_class", string(class)).
			Int("occupied", occupied).
			Int("capacity", capacity).
			Msg("no free spots")
		return parking.SessionOutcome{}, &parking.AdmitError{
			Reason:       parking.ErrCapacityExceeded,
			Plate:        normalized,
			VehicleClass: class,
			Occupied:     occupied,
			Capacity:     capacity,
		}
	}

	_, err = l.sessions.GetActiveSession(ctx, normalized)
	switch {
	case err == nil:
		return parking.SessionOutcome{}, l.alreadyActive(normalized, class)
	case !errors.Is(err, parking.ErrSessionNotFound):
		return parking.SessionOutcome{}, fmt.Errorf("failed to get active session: %w", err)
	}

	session := parking.ActiveSession{
		Plate:        normalized,
		VehicleClass: class,
		EntryTime:    l.now(),
		EvidenceRef:  evidenceRef,
	}
	if err := l.sessions.CreateActiveSession(ctx, session); err != nil {
		if errors.Is(err, parking.ErrAlreadyActive) {
			return parking.SessionOutcome{}, l.alreadyActive(normalized, class)
		}
		l.log.Error().Err(err).Str("plate", normalized).Msg("failed to create active session")
		return parking.SessionOutcome{}, fmt.Errorf("failed to create active session: %w", err)
	}

	metrics.AdmissionsTotal.WithLabelValues(string(class)).Inc()
	metrics.OccupiedSpots.WithLabelValues(string(class)).Set(float64(occupied + 1))

	isVIP := category == parking.CategoryVIP
	l.log.Info().
		Str("plate", normalized).
		Str("vehicle_class", string(class)).
		Bool("vip", isVIP).
		Time("entry_time", session.EntryTime).
		Msg("vehicle entered")

	return parking.Entered(session, isVIP), nil
}

func (l *SessionLedger) alreadyActive(plate string, class parking.VehicleClass) error {
	metrics.RejectionsTotal.WithLabelValues("already_active").Inc()
	l.log.Warn().
		Str("plate", plate).
		Msg("admit for plate with open session, upstream deduplication missed it")
	return &parking.AdmitError{Reason: parking.ErrAlreadyActive, Plate: plate, VehicleClass: class}
}

// Release closes the session for plate, bills it and appends it to history.
// Blacklist status is not consulted here; it only gates Admit. VIP plates are
// billed at zero with the real duration kept.
func (l *SessionLedger) Release(ctx context.Context, plate string) (parking.SessionOutcome, error) {
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return parking.SessionOutcome{}, fmt.Errorf("%w: plate cannot be empty after normalization", parking.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	session, err := l.sessions.GetActiveSession(ctx, normalized)
	if errors.Is(err, parking.ErrSessionNotFound) {
		metrics.RejectionsTotal.WithLabelValues("not_found").Inc()
		return parking.SessionOutcome{}, &parking.ReleaseError{Reason: parking.ErrSessionNotFound, Plate: normalized}
	}
	if err != nil {
		return parking.SessionOutcome{}, fmt.Errorf("failed to get active session: %w", err)
	}

	cfg, err := l.config.Get(ctx)
	if err != nil {
		return parking.SessionOutcome{}, err
	}
	category, err := l.registry.Lookup(ctx, normalized)
	if err != nil {
		return parking.SessionOutcome{}, err
	}

	charge := billing.Compute(session.EntryTime, l.now(), session.VehicleClass, cfg)
	isVIP := category == parking.CategoryVIP
	if isVIP {
		charge.Fee = 0
	}

	record := parking.HistoryRecord{
		ID:              uuid.NewString(),
		Plate:           normalized,
		VehicleClass:    session.VehicleClass,
		EntryTime:       session.EntryTime,
		ExitTime:        charge.ExitTime,
		DurationMinutes: charge.DurationMinutes,
		Fee:             charge.Fee,
		IsVIP:           isVIP,
		EvidenceRef:     session.EvidenceRef,
	}
	if err := l.sessions.CloseSession(ctx, normalized, record); err != nil {
		if errors.Is(err, parking.ErrSessionNotFound) {
			return parking.SessionOutcome{}, &parking.ReleaseError{Reason: parking.ErrSessionNotFound, Plate: normalized}
		}
		l.log.Error().Err(err).Str("plate", normalized).Msg("failed to close session")
		return parking.SessionOutcome{}, fmt.Errorf("failed to close session: %w", err)
	}

	metrics.ReleasesTotal.WithLabelValues(string(record.VehicleClass), strconv.FormatBool(isVIP)).Inc()
	metrics.RevenueTotal.Add(record.Fee)
	metrics.StayDuration.Observe(record.DurationMinutes)
	if occupied, err := l.sessions.CountActiveSessions(ctx, record.VehicleClass); err == nil {
		metrics.OccupiedSpots.WithLabelValues(string(record.VehicleClass)).Set(float64(occupied))
	}

	event := l.log.Info()
	if category == parking.CategoryBlacklist {
		event = l.log.Warn()
	}
	event.
		Str("plate", normalized).
		Str("vehicle_class", string(record.VehicleClass)).
		Bool("vip", isVIP).
		Str("category", string(category)).
		Float64("duration_minutes", record.DurationMinutes).
		Int("billable_hours", charge.BillableHours).
		Float64("fee", record.Fee).
		Msg("vehicle exited")

	return parking.Exited(record), nil
}

// ActiveSession reports the open session for plate, if any.
func (l *SessionLedger) ActiveSession(ctx context.Context, plate string) (*parking.ActiveSession, error) {
	return l.sessions.GetActiveSession(ctx, utils.NormalizePlate(plate))
}

func (l *SessionLedger) ListActive(ctx context.Context, filter parking.ListFilter) ([]parking.ActiveSession, error) {
	filter = normalizeFilter(filter)
	sessions, err := l.sessions.ListActiveSessions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

func (l *SessionLedger) ListHistory(ctx context.Context, filter parking.ListFilter) ([]parking.HistoryRecord, error) {
	filter = normalizeFilter(filter)
	records, err := l.sessions.ListHistory(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

func (l *SessionLedger) AllHistory(ctx context.Context) ([]parking.HistoryRecord, error) {
	records, err := l.sessions.AllHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return records, nil
}

func (l *SessionLedger) TotalRevenue(ctx context.Context) (float64, error) {
	total, err := l.sessions.TotalRevenue(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total, nil
}

// Reset is the operator factory reset: all sessions and history are dropped
// and the config goes back to its defaults. Special plates are kept.
func (l *SessionLedger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	defaults := l.config.Defaults()
	defaults.UpdatedAt = l.now()
	if err := l.sessions.Reset(ctx, defaults); err != nil {
		return fmt.Errorf("failed to reset parking data: %w", err)
	}
	l.config.replace(defaults)

	for _, class := range parking.VehicleClasses {
		metrics.OccupiedSpots.WithLabelValues(string(class)).Set(0)
	}
	l.log.Warn().Msg("parking data reset to factory defaults")
	return nil
}

func normalizeFilter(filter parking.ListFilter) parking.ListFilter {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}
