package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"parking-service/internal/domain/parking"
)

// MemoryStore keeps everything in process memory. Used by tests and when no
// database DSN is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	config  *parking.Config
	active  map[string]parking.ActiveSession
	history []parking.HistoryRecord
	special map[string]parking.SpecialPlate
	events  []parking.GateEvent
	pingErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active:  make(map[string]parking.ActiveSession),
		special: make(map[string]parking.SpecialPlate),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingErr
}

func (m *MemoryStore) EnsureConfig(ctx context.Context, defaults parking.Config) (parking.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		cfg := defaults
		m.config = &cfg
	}
	return *m.config, nil
}

func (m *MemoryStore) SaveConfig(ctx context.Context, cfg parking.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = &cfg
	return nil
}

func (m *MemoryStore) GetActiveSession(ctx context.Context, plate string) (*parking.ActiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.active[plate]
	if !ok {
		return nil, parking.ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) CountActiveSessions(ctx context.Context, class parking.VehicleClass) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.active {
		if s.VehicleClass == class {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateActiveSession(ctx context.Context, s parking.ActiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[s.Plate]; ok {
		return parking.ErrAlreadyActive
	}
	m.active[s.Plate] = s
	return nil
}

func (m *MemoryStore) CloseSession(ctx context.Context, plate string, rec parking.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[plate]; !ok {
		return parking.ErrSessionNotFound
	}
	delete(m.active, plate)
	m.history = append(m.history, rec)
	return nil
}

func (m *MemoryStore) ListActiveSessions(ctx context.Context, filter parking.ListFilter) ([]parking.ActiveSession, error) {
	m.mu.RLock()
	var result []parking.ActiveSession
	for _, s := range m.active {
		if matchesPlate(s.Plate, filter.PlateQuery) {
			result = append(result, s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryTime.Equal(result[j].EntryTime) {
			return result[i].Plate < result[j].Plate
		}
		return result[i].EntryTime.After(result[j].EntryTime)
	})
	return page(result, filter), nil
}

func (m *MemoryStore) ListHistory(ctx context.Context, filter parking.ListFilter) ([]parking.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []parking.HistoryRecord
	// history is append-only, so walking backwards yields newest first.
	for i := len(m.history) - 1; i >= 0; i-- {
		if matchesPlate(m.history[i].Plate, filter.PlateQuery) {
			result = append(result, m.history[i])
		}
	}
	return page(result, filter), nil
}

func (m *MemoryStore) AllHistory(ctx context.Context) ([]parking.HistoryRecord, error) {
	return m.ListHistory(ctx, parking.ListFilter{})
}

func (m *MemoryStore) TotalRevenue(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, r := range m.history {
		total += r.Fee
	}
	return total, nil
}

func (m *MemoryStore) Reset(ctx context.Context, cfg parking.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = make(map[string]parking.ActiveSession)
	m.history = nil
	m.config = &cfg
	return nil
}

func (m *MemoryStore) GetSpecialPlate(ctx context.Context, plate string) (*parking.SpecialPlate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.special[plate]
	if !ok {
		return nil, parking.ErrPlateNotFound
	}
	return &p, nil
}

func (m *MemoryStore) UpsertSpecialPlate(ctx context.Context, p parking.SpecialPlate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.special[p.Plate]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	m.special[p.Plate] = p
	return nil
}

func (m *MemoryStore) DeleteSpecialPlate(ctx context.Context, plate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.special[plate]; !ok {
		return parking.ErrPlateNotFound
	}
	delete(m.special, plate)
	return nil
}

func (m *MemoryStore) ListSpecialPlates(ctx context.Context) ([]parking.SpecialPlate, error) {
	m.mu.RLock()
	result := make([]parking.SpecialPlate, 0, len(m.special))
	for _, p := range m.special {
		result = append(result, p)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Plate < result[j].Plate })
	return result, nil
}

func (m *MemoryStore) CreateGateEvent(ctx context.Context, event *parking.GateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event.ID = uuid.NewString()
	m.events = append(m.events, *event)
	return nil
}

func (m *MemoryStore) ListGateEvents(ctx context.Context, filter parking.GateEventFilter) ([]parking.GateEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []parking.GateEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if !matchesPlate(ev.Plate, filter.PlateQuery) {
			continue
		}
		if filter.From != nil && ev.EventTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && ev.EventTime.After(*filter.To) {
			continue
		}
		result = append(result, ev)
	}
	return page(result, parking.ListFilter{Limit: filter.Limit, Offset: filter.Offset}), nil
}

func (m *MemoryStore) DeleteGateEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var deleted int64
	for _, ev := range m.events {
		if ev.EventTime.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return deleted, nil
}

// GateEvents returns a copy of the audited gate events in insertion order.
func (m *MemoryStore) GateEvents() []parking.GateEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]parking.GateEvent, len(m.events))
	copy(out, m.events)
	return out
}

// SetPingError makes Ping fail, for health check tests.
func (m *MemoryStore) SetPingError(err error) {
	m.mu.Lock()
	m.pingErr = err
	m.mu.Unlock()
}

func matchesPlate(plate, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToUpper(plate), strings.ToUpper(query))
}

func page[T any](items []T, filter parking.ListFilter) []T {
	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return []T{}
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > maxListLimit {
			limit = maxListLimit
		}
		if limit < len(items) {
			items = items[:limit]
		}
	}
	if items == nil {
		return []T{}
	}
	return items
}
