package service

import (
	"context"
	"time"

	"parking-service/internal/domain/parking"
)

type ConfigRepository interface {
	EnsureConfig(ctx context.Context, defaults parking.Config) (parking.Config, error)
	SaveConfig(ctx context.Context, cfg parking.Config) error
}

// SpecialPlateRepository backs the registry, which loads the full list once
// and serves lookups from memory.
type SpecialPlateRepository interface {
	UpsertSpecialPlate(ctx context.Context, p parking.SpecialPlate) error
	DeleteSpecialPlate(ctx context.Context, plate string) error
	ListSpecialPlates(ctx context.Context) ([]parking.SpecialPlate, error)
}

// SessionCounter is the read side the capacity accountant needs.
type SessionCounter interface {
	CountActiveSessions(ctx context.Context, class parking.VehicleClass) (int, error)
}

// SessionRepository persists active sessions and the append-only history.
// CloseSession must delete the session and append the record atomically.
type SessionRepository interface {
	SessionCounter
	GetActiveSession(ctx context.Context, plate string) (*parking.ActiveSession, error)
	CreateActiveSession(ctx context.Context, s parking.ActiveSession) error
	CloseSession(ctx context.Context, plate string, rec parking.HistoryRecord) error
	ListActiveSessions(ctx context.Context, filter parking.ListFilter) ([]parking.ActiveSession, error)
	ListHistory(ctx context.Context, filter parking.ListFilter) ([]parking.HistoryRecord, error)
	AllHistory(ctx context.Context) ([]parking.HistoryRecord, error)
	TotalRevenue(ctx context.Context) (float64, error)
	Reset(ctx context.Context, cfg parking.Config) error
}

type GateEventRecorder interface {
	CreateGateEvent(ctx context.Context, event *parking.GateEvent) error
}

// GateEventStore is the read and retention side of the audit log.
type GateEventStore interface {
	ListGateEvents(ctx context.Context, filter parking.GateEventFilter) ([]parking.GateEvent, error)
	DeleteGateEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventPublisher pushes live events to dashboards.
type EventPublisher interface {
	Publish(eventType string, data interface{})
}
