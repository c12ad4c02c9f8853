package parking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrBlacklisted      = errors.New("plate is blacklisted")
	ErrCapacityExceeded = errors.New("no free spots")
	ErrAlreadyActive    = errors.New("plate already has an active session")
	ErrSessionNotFound  = errors.New("no active session for plate")
	ErrPlateNotFound    = errors.New("special plate not found")
)

// AdmitError is returned by Admit when policy refuses the vehicle.
type AdmitError struct {
	Reason       error
	Plate        string
	VehicleClass VehicleClass
	Occupied     int
	Capacity     int
}

func (e *AdmitError) Error() string {
	if errors.Is(e.Reason, ErrCapacityExceeded) {
		return fmt.Sprintf("admit %s: no %s spots available (%d/%d)", e.Plate, e.VehicleClass, e.Occupied, e.Capacity)
	}
	return fmt.Sprintf("admit %s: %v", e.Plate, e.Reason)
}

func (e *AdmitError) Unwrap() error { return e.Reason }

// ReleaseError is returned by Release when the plate has no open session.
type ReleaseError struct {
	Reason error
	Plate  string
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("release %s: %v", e.Plate, e.Reason)
}

func (e *ReleaseError) Unwrap() error { return e.Reason }

// IsSecurityEvent reports whether err must be surfaced as a security alert
// rather than a capacity or billing problem.
func IsSecurityEvent(err error) bool {
	return errors.Is(err, ErrBlacklisted)
}
