package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"parking-service/internal/domain/parking"
)

func cfgWith(grace int, carRate, bikeRate float64) parking.Config {
	cfg := parking.DefaultConfig()
	cfg.GraceMinutes = grace
	cfg.CarRate = carRate
	cfg.BikeRate = bikeRate
	return cfg
}

func TestCompute(t *testing.T) {
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		stay      time.Duration
		class     parking.VehicleClass
		cfg       parking.Config
		wantFee   float64
		wantHours int
		wantMins  float64
	}{
		{"short stay bills minimum hour", 45 * time.Minute, parking.ClassCar, cfgWith(5, 20, 10), 20, 1, 45},
		{"zero length stay bills minimum hour", 0, parking.ClassCar, cfgWith(5, 20, 10), 20, 1, 0},
		{"exactly sixty minutes", 60 * time.Minute, parking.ClassCar, cfgWith(5, 20, 10), 20, 1, 60},
		{"grace applied before rounding up", 125 * time.Minute, parking.ClassCar, cfgWith(5, 20, 10), 40, 2, 125},
		{"partial hour after grace rounds up", 63 * time.Minute, parking.ClassBike, cfgWith(10, 20, 10), 10, 1, 63},
		{"just past grace rounds to next hour", 126 * time.Minute, parking.ClassCar, cfgWith(5, 20, 10), 60, 3, 126},
		{"grace swallows whole stay", 61 * time.Minute, parking.ClassCar, cfgWith(90, 20, 10), 0, 0, 61},
		{"bike rate", 3 * time.Hour, parking.ClassBike, cfgWith(0, 20, 7.5), 22.5, 3, 180},
		{"fractional minutes", 90*time.Minute + 20*time.Second, parking.ClassCar, cfgWith(0, 20, 10), 40, 2, 90.33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(entry, entry.Add(tt.stay), tt.class, tt.cfg)
			assert.Equal(t, tt.wantHours, got.BillableHours)
			assert.InDelta(t, tt.wantFee, got.Fee, 1e-9)
			assert.InDelta(t, tt.wantMins, got.DurationMinutes, 1e-9)
			assert.Equal(t, entry.Add(tt.stay), got.ExitTime)
		})
	}
}

func TestBillableHours_BoundaryIsNotMonotonic(t *testing.T) {
	// 60 minutes is under the minimum-charge rule, 61 minutes is not.
	assert.Equal(t, 1, BillableHours(60, 30))
	assert.Equal(t, 1, BillableHours(61, 30))
	assert.Equal(t, 0, BillableHours(61, 61))
	assert.Equal(t, 1, BillableHours(60, 61))
}

func TestDurationMinutes_RoundsToTwoDecimals(t *testing.T) {
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 0.02, DurationMinutes(entry, entry.Add(1*time.Second)))
	assert.Equal(t, 1.5, DurationMinutes(entry, entry.Add(90*time.Second)))
}
