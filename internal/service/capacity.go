package service

import (
	"context"
	"fmt"

	"parking-service/internal/domain/parking"
)

// CapacityAccountant derives occupancy from the open sessions and the config.
type CapacityAccountant struct {
	sessions SessionCounter
	config   *ConfigService
}

func NewCapacityAccountant(sessions SessionCounter, config *ConfigService) *CapacityAccountant {
	return &CapacityAccountant{
		sessions: sessions,
		config:   config,
	}
}

// FreeSpots returns the occupied count and the configured capacity for class.
func (a *CapacityAccountant) FreeSpots(ctx context.Context, class parking.VehicleClass) (occupied, capacity int, err error) {
	cfg, err := a.config.Get(ctx)
	if err != nil {
		return 0, 0, err
	}
	occupied, err = a.sessions.CountActiveSessions(ctx, class)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return occupied, cfg.Capacity(class), nil
}

func (a *CapacityAccountant) Availability(ctx context.Context, class parking.VehicleClass) (parking.Availability, error) {
	occupied, capacity, err := a.FreeSpots(ctx, class)
	if err != nil {
		return parking.Availability{}, err
	}
	return parking.Availability{
		VehicleClass: class,
		Occupied:     occupied,
		Capacity:     capacity,
		Free:         capacity - occupied,
	}, nil
}

func (a *CapacityAccountant) PerFloorBreakdown(ctx context.Context, class parking.VehicleClass) ([]parking.FloorAvailability, error) {
	cfg, err := a.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	occupied, err := a.sessions.CountActiveSessions(ctx, class)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return FloorBreakdown(occupied, cfg.Capacity(class), cfg.TotalFloors), nil
}

// FloorBreakdown splits capacity evenly across floors (integer division) and
// assumes floor 1 fills before floor 2 and so on. Nothing tracks which floor a
// vehicle actually parked on; this is for display only.
func FloorBreakdown(occupied, capacity, floors int) []parking.FloorAvailability {
	if floors < 1 {
		floors = 1
	}
	perFloor := capacity / floors

	result := make([]parking.FloorAvailability, 0, floors)
	for f := 1; f <= floors; f++ {
		remaining := occupied - (f-1)*perFloor
		onFloor := max(0, min(remaining, perFloor))
		result = append(result, parking.FloorAvailability{
			Floor:    f,
			Capacity: perFloor,
			Occupied: onFloor,
			Free:     perFloor - onFloor,
		})
	}
	return result
}
