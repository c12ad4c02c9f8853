package parking

import (
	"fmt"
	"strings"
	"time"
)

type VehicleClass string

const (
	ClassCar  VehicleClass = "car"
	ClassBike VehicleClass = "bike"
)

// VehicleClasses lists every supported class in display order.
var VehicleClasses = []VehicleClass{ClassCar, ClassBike}

func (c VehicleClass) Valid() bool {
	return c == ClassCar || c == ClassBike
}

func ParseVehicleClass(s string) (VehicleClass, error) {
	c := VehicleClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown vehicle class %q", ErrInvalidInput, s)
	}
	return c, nil
}

// Config is the singleton capacity and billing configuration.
type Config struct {
	TotalFloors  int       `json:"total_floors"`
	CarCapacity  int       `json:"car_capacity"`
	BikeCapacity int       `json:"bike_capacity"`
	CarRate      float64   `json:"car_rate"`
	BikeRate     float64   `json:"bike_rate"`
	GraceMinutes int       `json:"grace_minutes"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func DefaultConfig() Config {
	return Config{
		TotalFloors:  2,
		CarCapacity:  16,
		BikeCapacity: 10,
		CarRate:      20.0,
		BikeRate:     10.0,
		GraceMinutes: 5,
	}
}

func (c Config) Validate() error {
	if c.TotalFloors < 1 {
		return fmt.Errorf("%w: total_floors must be at least 1", ErrInvalidInput)
	}
	if c.CarCapacity < 1 {
		return fmt.Errorf("%w: car_capacity must be at least 1", ErrInvalidInput)
	}
	if c.BikeCapacity < 1 {
		return fmt.Errorf("%w: bike_capacity must be at least 1", ErrInvalidInput)
	}
	if c.CarRate < 0 || c.BikeRate < 0 {
		return fmt.Errorf("%w: rates cannot be negative", ErrInvalidInput)
	}
	if c.GraceMinutes < 0 {
		return fmt.Errorf("%w: grace_minutes cannot be negative", ErrInvalidInput)
	}
	return nil
}

func (c Config) Capacity(class VehicleClass) int {
	if class == ClassBike {
		return c.BikeCapacity
	}
	return c.CarCapacity
}

func (c Config) Rate(class VehicleClass) float64 {
	if class == ClassBike {
		return c.BikeRate
	}
	return c.CarRate
}

// ConfigUpdate carries the fields an operator wants to change; nil fields keep their value.
type ConfigUpdate struct {
	TotalFloors  *int     `json:"total_floors,omitempty"`
	CarCapacity  *int     `json:"car_capacity,omitempty"`
	BikeCapacity *int     `json:"bike_capacity,omitempty"`
	CarRate      *float64 `json:"car_rate,omitempty"`
	BikeRate     *float64 `json:"bike_rate,omitempty"`
	GraceMinutes *int     `json:"grace_minutes,omitempty"`
}

func (u ConfigUpdate) Apply(c Config) Config {
	if u.TotalFloors != nil {
		c.TotalFloors = *u.TotalFloors
	}
	if u.CarCapacity != nil {
		c.CarCapacity = *u.CarCapacity
	}
	if u.BikeCapacity != nil {
		c.BikeCapacity = *u.BikeCapacity
	}
	if u.CarRate != nil {
		c.CarRate = *u.CarRate
	}
	if u.BikeRate != nil {
		c.BikeRate = *u.BikeRate
	}
	if u.GraceMinutes != nil {
		c.GraceMinutes = *u.GraceMinutes
	}
	return c
}

type ActiveSession struct {
	Plate        string       `json:"plate"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	EntryTime    time.Time    `json:"entry_time"`
	EvidenceRef  string       `json:"evidence_ref,omitempty"`
}

type HistoryRecord struct {
	ID              string       `json:"id"`
	Plate           string       `json:"plate"`
	VehicleClass    VehicleClass `json:"vehicle_class"`
	EntryTime       time.Time    `json:"entry_time"`
	ExitTime        time.Time    `json:"exit_time"`
	DurationMinutes float64      `json:"duration_minutes"`
	Fee             float64      `json:"fee"`
	IsVIP           bool         `json:"is_vip"`
	EvidenceRef     string       `json:"evidence_ref,omitempty"`
}

type SpecialCategory string

const (
	CategoryVIP       SpecialCategory = "VIP"
	CategoryBlacklist SpecialCategory = "BLACKLIST"
)

func ParseSpecialCategory(s string) (SpecialCategory, error) {
	c := SpecialCategory(strings.ToUpper(strings.TrimSpace(s)))
	if c != CategoryVIP && c != CategoryBlacklist {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
	}
	return c, nil
}

type SpecialPlate struct {
	Plate     string          `json:"plate"`
	Category  SpecialCategory `json:"category"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DetectionEvent is what the upstream detector emits for one recognised vehicle.
type DetectionEvent struct {
	CameraID     string                 `json:"camera_id,omitempty"`
	PlateText    string                 `json:"plate_text"`
	VehicleClass VehicleClass           `json:"vehicle_class"`
	// TrackingID is the tracker's id for the vehicle, positive and stable
	// while the vehicle stays in view.
	TrackingID   int64                  `json:"tracking_id"`
	Confidence   float64                `json:"confidence"`
	SnapshotURL  string                 `json:"snapshot_url,omitempty"`
	RawPayload   map[string]interface{} `json:"raw_payload,omitempty"`
}

type GateRole string

const (
	RoleEntryOnly GateRole = "entry"
	RoleExitOnly  GateRole = "exit"
	RoleAuto      GateRole = "auto"
)

func ParseGateRole(s string) (GateRole, error) {
	r := GateRole(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleEntryOnly, RoleExitOnly, RoleAuto:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown gate role %q", ErrInvalidInput, s)
}

type OutcomeKind string

const (
	OutcomeEntered OutcomeKind = "entered"
	OutcomeExited  OutcomeKind = "exited"
)

// SessionOutcome is the result of a successful Admit (Entered) or Release (Exited).
// Fee, DurationMinutes and ExitTime are only set for Exited.
type SessionOutcome struct {
	Kind            OutcomeKind  `json:"kind"`
	Plate           string       `json:"plate"`
	VehicleClass    VehicleClass `json:"vehicle_class"`
	IsVIP           bool         `json:"is_vip"`
	EntryTime       time.Time    `json:"entry_time"`
	ExitTime        *time.Time   `json:"exit_time,omitempty"`
	Fee             float64      `json:"fee"`
	DurationMinutes float64      `json:"duration_minutes"`
}

func Entered(s ActiveSession, isVIP bool) SessionOutcome {
	return SessionOutcome{
		Kind:         OutcomeEntered,
		Plate:        s.Plate,
		VehicleClass: s.VehicleClass,
		IsVIP:        isVIP,
		EntryTime:    s.EntryTime,
	}
}

func Exited(r HistoryRecord) SessionOutcome {
	exit := r.ExitTime
	return SessionOutcome{
		Kind:            OutcomeExited,
		Plate:           r.Plate,
		VehicleClass:    r.VehicleClass,
		IsVIP:           r.IsVIP,
		EntryTime:       r.EntryTime,
		ExitTime:        &exit,
		Fee:             r.Fee,
		DurationMinutes: r.DurationMinutes,
	}
}

type Availability struct {
	VehicleClass VehicleClass `json:"vehicle_class"`
	Occupied     int          `json:"occupied"`
	Capacity     int          `json:"capacity"`
	Free         int          `json:"free"`
}

// FloorAvailability is a display approximation: floors are assumed to fill in order.
type FloorAvailability struct {
	Floor    int `json:"floor"`
	Capacity int `json:"capacity"`
	Occupied int `json:"occupied"`
	Free     int `json:"free"`
}

type ListFilter struct {
	PlateQuery string
	Limit      int
	Offset     int
}

// GateEvent is one audited detection with the action the gate took.
type GateEvent struct {
	ID           string                 `json:"id"`
	RunID        string                 `json:"run_id,omitempty"`
	CameraID     string                 `json:"camera_id,omitempty"`
	Role         GateRole               `json:"role"`
	Action       string                 `json:"action"`
	Result       string                 `json:"result"`
	Plate        string                 `json:"plate"`
	VehicleClass VehicleClass           `json:"vehicle_class,omitempty"`
	TrackingID   int64                  `json:"tracking_id"`
	Confidence   float64                `json:"confidence,omitempty"`
	Fee          *float64               `json:"fee,omitempty"`
	SnapshotURL  string                 `json:"snapshot_url,omitempty"`
	RawPayload   map[string]interface{} `json:"raw_payload,omitempty"`
	EventTime    time.Time              `json:"event_time"`
}

// GateEventFilter narrows audit log queries. From and To bound EventTime inclusively.
type GateEventFilter struct {
	PlateQuery string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
