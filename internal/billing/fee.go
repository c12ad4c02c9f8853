// Package billing turns a parking stay into a fee.
//
// Stays of up to an hour always bill one hour. Longer stays have the grace
// minutes deducted and are then rounded up to whole hours. The two rules meet
// at 60 minutes without being continuous: with a large grace window a 61 minute
// stay can bill fewer hours than a 60 minute one. That curve is kept as is.
package billing

import (
	"math"
	"time"

	"parking-service/internal/domain/parking"
)

// MinimumChargeMinutes is the stay length covered by the flat one-hour charge.
const MinimumChargeMinutes = 60

type Charge struct {
	Fee             float64   `json:"fee"`
	DurationMinutes float64   `json:"duration_minutes"`
	BillableHours   int       `json:"billable_hours"`
	ExitTime        time.Time `json:"exit_time"`
}

// Compute bills a stay from entry to now for the given class under cfg.
func Compute(entry, now time.Time, class parking.VehicleClass, cfg parking.Config) Charge {
	duration := DurationMinutes(entry, now)
	hours := BillableHours(duration, cfg.GraceMinutes)
	return Charge{
		Fee:             float64(hours) * cfg.Rate(class),
		DurationMinutes: duration,
		BillableHours:   hours,
		ExitTime:        now,
	}
}

// DurationMinutes is the elapsed time in minutes rounded to two decimals.
func DurationMinutes(entry, now time.Time) float64 {
	return math.Round(now.Sub(entry).Seconds()/60*100) / 100
}

func BillableHours(durationMinutes float64, graceMinutes int) int {
	if durationMinutes <= MinimumChargeMinutes {
		return 1
	}
	adjusted := durationMinutes - float64(graceMinutes)
	if adjusted <= 0 {
		return 0
	}
	return int(math.Ceil(adjusted / 60))
}
