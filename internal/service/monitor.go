package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
	"parking-service/internal/metrics"
	"parking-service/internal/utils"
)

var ErrMonitorStopped = errors.New("monitoring is not running")

// Live feed event types.
const (
	EventVehicleEntered = "vehicle_entered"
	EventVehicleExited  = "vehicle_exited"
	EventSecurityAlert  = "security_alert"
	EventGateRejected   = "gate_rejected"
	EventRunStarted     = "monitoring_started"
	EventRunStopped     = "monitoring_stopped"
)

type DetectionStatus string

const (
	DetectionProcessed     DetectionStatus = "processed"
	DetectionDuplicate     DetectionStatus = "duplicate"
	DetectionLowConfidence DetectionStatus = "low_confidence"
	DetectionDebounced     DetectionStatus = "debounced"
)

type DetectionResult struct {
	Status   DetectionStatus `json:"status"`
	RunID    string          `json:"run_id"`
	Plate    string          `json:"plate"`
	Decision *GateDecision   `json:"decision,omitempty"`
}

type MonitorOptions struct {
	CameraID      string
	MinConfidence float64
	// Debounce drops any detection arriving sooner than this after the last
	// processed one, whatever its tracking id. Zero disables it.
	Debounce time.Duration
}

// Run is one continuous monitoring session over a video source. Its dedup
// cache lives and dies with it.
type Run struct {
	ID        string
	Source    string
	Role      parking.GateRole
	StartedAt time.Time

	cache *DedupCache

	mu            sync.Mutex
	lastProcessed time.Time
	processed     atomic.Int64
}

type RunInfo struct {
	ID         string           `json:"id"`
	Source     string           `json:"source"`
	Role       parking.GateRole `json:"role"`
	StartedAt  time.Time        `json:"started_at"`
	TrackedIDs int              `json:"tracked_ids"`
	Processed  int64            `json:"processed"`
}

func newRun(source string, role parking.GateRole, now time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Source:    source,
		Role:      role,
		StartedAt: now,
		cache:     NewDedupCache(),
	}
}

func (r *Run) Info() RunInfo {
	return RunInfo{
		ID:         r.ID,
		Source:     r.Source,
		Role:       r.Role,
		StartedAt:  r.StartedAt,
		TrackedIDs: r.cache.Len(),
		Processed:  r.processed.Load(),
	}
}

// gate decides whether a detection with trackingID may reach the dispatcher,
// claiming the id when it may.
func (r *Run) gate(trackingID int64, now time.Time, debounce time.Duration) DetectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cache.ShouldProcess(trackingID) {
		return DetectionDuplicate
	}
	if debounce > 0 && !r.lastProcessed.IsZero() && now.Sub(r.lastProcessed) < debounce {
		return DetectionDebounced
	}
	if !r.cache.Claim(trackingID) {
		return DetectionDuplicate
	}
	r.lastProcessed = now
	r.processed.Add(1)
	return DetectionProcessed
}

// Monitor feeds detector events through deduplication into the gate.
type Monitor struct {
	dispatcher *GateDispatcher
	opts       MonitorOptions
	recorder   GateEventRecorder
	publisher  EventPublisher
	log        zerolog.Logger
	now        func() time.Time

	mu  sync.RWMutex
	run *Run
}

func NewMonitor(dispatcher *GateDispatcher, opts MonitorOptions, log zerolog.Logger) *Monitor {
	return &Monitor{
		dispatcher: dispatcher,
		opts:       opts,
		log:        log,
		now:        time.Now,
	}
}

func (m *Monitor) WithRecorder(r GateEventRecorder) *Monitor {
	m.recorder = r
	return m
}

func (m *Monitor) WithPublisher(p EventPublisher) *Monitor {
	m.publisher = p
	return m
}

func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Start begins a new run, replacing any current one and its dedup state.
func (m *Monitor) Start(source string, role parking.GateRole) (RunInfo, error) {
	if _, err := parking.ParseGateRole(string(role)); err != nil {
		return RunInfo{}, err
	}
	if source == "" {
		source = m.opts.CameraID
	}

	run := newRun(source, role, m.now())

	m.mu.Lock()
	previous := m.run
	m.run = run
	m.mu.Unlock()

	if previous != nil {
		m.log.Info().Str("run_id", previous.ID).Int64("processed", previous.processed.Load()).Msg("monitoring run replaced")
	}
	m.log.Info().
		Str("run_id", run.ID).
		Str("source", run.Source).
		Str("role", string(run.Role)).
		Msg("monitoring run started")

	info := run.Info()
	m.publish(EventRunStarted, info)
	return info, nil
}

func (m *Monitor) Stop() (RunInfo, bool) {
	m.mu.Lock()
	run := m.run
	m.run = nil
	m.mu.Unlock()

	if run == nil {
		return RunInfo{}, false
	}

	info := run.Info()
	m.log.Info().
		Str("run_id", info.ID).
		Int64("processed", info.Processed).
		Int("tracked_ids", info.TrackedIDs).
		Msg("monitoring run stopped")
	m.publish(EventRunStopped, info)
	return info, true
}

func (m *Monitor) Current() (RunInfo, bool) {
	m.mu.RLock()
	run := m.run
	m.mu.RUnlock()
	if run == nil {
		return RunInfo{}, false
	}
	return run.Info(), true
}

// Handle processes one detection. Domain refusals (blacklist, capacity, ...)
// come back as errors alongside a populated result.
func (m *Monitor) Handle(ctx context.Context, ev parking.DetectionEvent) (DetectionResult, error) {
	plate := utils.NormalizePlate(ev.PlateText)
	if plate == "" {
		metrics.DetectionsTotal.WithLabelValues("invalid").Inc()
		return DetectionResult{}, fmt.Errorf("%w: plate_text cannot be empty after normalization", parking.ErrInvalidInput)
	}
	if !ev.VehicleClass.Valid() {
		metrics.DetectionsTotal.WithLabelValues("invalid").Inc()
		return DetectionResult{}, fmt.Errorf("%w: unknown vehicle class %q", parking.ErrInvalidInput, ev.VehicleClass)
	}
	if ev.TrackingID <= 0 {
		metrics.DetectionsTotal.WithLabelValues("invalid").Inc()
		return DetectionResult{}, fmt.Errorf("%w: tracking_id must be positive", parking.ErrInvalidInput)
	}
	ev.PlateText = plate
	if ev.CameraID == "" {
		ev.CameraID = m.opts.CameraID
	}

	m.mu.RLock()
	run := m.run
	m.mu.RUnlock()
	if run == nil {
		return DetectionResult{}, ErrMonitorStopped
	}

	result := DetectionResult{RunID: run.ID, Plate: plate}

	if ev.Confidence < m.opts.MinConfidence {
		result.Status = DetectionLowConfidence
		metrics.DetectionsTotal.WithLabelValues(string(result.Status)).Inc()
		m.log.Debug().
			Str("plate", plate).
			Float64("confidence", ev.Confidence).
			Msg("detection below confidence threshold")
		return result, nil
	}

	result.Status = run.gate(ev.TrackingID, m.now(), m.opts.Debounce)
	metrics.DetectionsTotal.WithLabelValues(string(result.Status)).Inc()
	if result.Status != DetectionProcessed {
		return result, nil
	}

	decision, err := m.dispatcher.Dispatch(ctx, run.Role, ev)
	result.Decision = &decision

	m.record(ctx, run, ev, decision, err)
	m.announce(ev, decision, err)

	return result, err
}

func (m *Monitor) record(ctx context.Context, run *Run, ev parking.DetectionEvent, decision GateDecision, dispatchErr error) {
	if m.recorder == nil {
		return
	}

	event := &parking.GateEvent{
		RunID:        run.ID,
		CameraID:     ev.CameraID,
		Role:         run.Role,
		Action:       string(decision.Action),
		Result:       resultLabel(decision, dispatchErr),
		Plate:        ev.PlateText,
		VehicleClass: ev.VehicleClass,
		TrackingID:   ev.TrackingID,
		Confidence:   ev.Confidence,
		SnapshotURL:  ev.SnapshotURL,
		RawPayload:   ev.RawPayload,
		EventTime:    m.now(),
	}
	if decision.Outcome != nil && decision.Outcome.Kind == parking.OutcomeExited {
		fee := decision.Outcome.Fee
		event.Fee = &fee
	}

	if err := m.recorder.CreateGateEvent(ctx, event); err != nil {
		m.log.Error().
			Err(err).
			Str("plate", ev.PlateText).
			Str("run_id", run.ID).
			Msg("failed to record gate event")
	}
}

func (m *Monitor) announce(ev parking.DetectionEvent, decision GateDecision, dispatchErr error) {
	switch {
	case decision.SecurityAlert:
		m.publish(EventSecurityAlert, map[string]interface{}{
			"plate":       ev.PlateText,
			"camera_id":   ev.CameraID,
			"tracking_id": ev.TrackingID,
			"snapshot":    ev.SnapshotURL,
		})
	case dispatchErr != nil:
		m.publish(EventGateRejected, map[string]interface{}{
			"plate":  ev.PlateText,
			"action": decision.Action,
			"reason": resultLabel(decision, dispatchErr),
		})
	case decision.Outcome != nil && decision.Outcome.Kind == parking.OutcomeEntered:
		m.publish(EventVehicleEntered, decision.Outcome)
	case decision.Outcome != nil:
		m.publish(EventVehicleExited, decision.Outcome)
	}
}

func (m *Monitor) publish(eventType string, data interface{}) {
	if m.publisher != nil {
		m.publisher.Publish(eventType, data)
	}
}

func resultLabel(decision GateDecision, err error) string {
	switch {
	case err == nil && decision.Outcome != nil:
		return string(decision.Outcome.Kind)
	case errors.Is(err, parking.ErrBlacklisted):
		return "blacklisted"
	case errors.Is(err, parking.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, parking.ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, parking.ErrSessionNotFound):
		return "not_found"
	default:
		return "error"
	}
}
