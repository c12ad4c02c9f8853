package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const configRowID = 1

type ConfigRow struct {
	ID           int `gorm:"primaryKey"`
	TotalFloors  int `gorm:"not null"`
	CarCapacity  int `gorm:"not null"`
	BikeCapacity int `gorm:"not null"`
	CarRate      float64
	BikeRate     float64
	GraceMinutes int
	UpdatedAt    time.Time
}

func (ConfigRow) TableName() string { return "parking_config" }

type ActiveSessionRow struct {
	ID           int64     `gorm:"primaryKey"`
	Plate        string    `gorm:"not null;uniqueIndex"`
	VehicleClass string    `gorm:"not null"`
	EntryTime    time.Time `gorm:"not null"`
	EvidenceRef  *string
	CreatedAt    time.Time
}

func (ActiveSessionRow) TableName() string { return "active_sessions" }

type HistoryRow struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Plate           string    `gorm:"not null"`
	VehicleClass    string    `gorm:"not null"`
	EntryTime       time.Time `gorm:"not null"`
	ExitTime        time.Time `gorm:"not null"`
	DurationMinutes float64
	Fee             float64
	IsVIP           bool `gorm:"column:is_vip"`
	EvidenceRef     *string
	CreatedAt       time.Time
}

func (HistoryRow) TableName() string { return "transaction_history" }

type SpecialPlateRow struct {
	Plate     string `gorm:"primaryKey"`
	Category  string `gorm:"not null"`
	Note      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SpecialPlateRow) TableName() string { return "special_plates" }

type GateEventRow struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID        *string
	CameraID     *string
	Role         string `gorm:"not null"`
	Action       string `gorm:"not null"`
	Result       string `gorm:"not null"`
	Plate        string `gorm:"not null"`
	VehicleClass *string
	TrackingID   int64
	Confidence   *float64
	Fee          *float64
	SnapshotURL  *string
	RawPayload   datatypes.JSONMap `gorm:"type:jsonb"`
	EventTime    time.Time         `gorm:"not null"`
	CreatedAt    time.Time
}

func (GateEventRow) TableName() string { return "gate_events" }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
