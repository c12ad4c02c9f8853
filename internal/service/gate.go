package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
	"parking-service/internal/metrics"
)

// SessionTransitions is the ledger surface the gate drives.
type SessionTransitions interface {
	Admit(ctx context.Context, plate string, class parking.VehicleClass, evidenceRef string) (parking.SessionOutcome, error)
	Release(ctx context.Context, plate string) (parking.SessionOutcome, error)
}

type GateAction string

const (
	ActionAdmit   GateAction = "admit"
	ActionRelease GateAction = "release"
)

// GateDecision describes what the gate did with one detection.
type GateDecision struct {
	Role          parking.GateRole        `json:"role"`
	Action        GateAction              `json:"action"`
	Outcome       *parking.SessionOutcome `json:"outcome,omitempty"`
	SecurityAlert bool                    `json:"security_alert"`
}

type GateDispatcher struct {
	ledger SessionTransitions
	log    zerolog.Logger
}

func NewGateDispatcher(ledger SessionTransitions, log zerolog.Logger) *GateDispatcher {
	return &GateDispatcher{
		ledger: ledger,
		log:    log,
	}
}

// Dispatch turns a detection into Admit or Release according to role. In auto
// mode Release is tried first and a missing session falls back to Admit, so a
// vehicle on its way out is never admitted a second time.
func (d *GateDispatcher) Dispatch(ctx context.Context, role parking.GateRole, ev parking.DetectionEvent) (GateDecision, error) {
	decision := GateDecision{Role: role}

	switch role {
	case parking.RoleEntryOnly:
		return d.admit(ctx, decision, ev)
	case parking.RoleExitOnly:
		return d.release(ctx, decision, ev)
	case parking.RoleAuto:
		released, err := d.release(ctx, decision, ev)
		if errors.Is(err, parking.ErrSessionNotFound) {
			d.log.Debug().Str("plate", ev.PlateText).Msg("no open session, treating as arrival")
			return d.admit(ctx, decision, ev)
		}
		return released, err
	default:
		return decision, fmt.Errorf("%w: unknown gate role %q", parking.ErrInvalidInput, role)
	}
}

func (d *GateDispatcher) admit(ctx context.Context, decision GateDecision, ev parking.DetectionEvent) (GateDecision, error) {
	decision.Action = ActionAdmit
	outcome, err := d.ledger.Admit(ctx, ev.PlateText, ev.VehicleClass, ev.SnapshotURL)
	if err != nil {
		if parking.IsSecurityEvent(err) {
			decision.SecurityAlert = true
			metrics.SecurityAlertsTotal.Inc()
			d.log.Warn().
				Str("plate", ev.PlateText).
				Str("camera_id", ev.CameraID).
				Int64("tracking_id", ev.TrackingID).
				Msg("security alert: blacklisted vehicle at gate")
		}
		return decision, err
	}
	decision.Outcome = &outcome
	return decision, nil
}

func (d *GateDispatcher) release(ctx context.Context, decision GateDecision, ev parking.DetectionEvent) (GateDecision, error) {
	decision.Action = ActionRelease
	outcome, err := d.ledger.Release(ctx, ev.PlateText)
	if err != nil {
		return decision, err
	}
	decision.Outcome = &outcome
	return decision, nil
}
