package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-service/internal/domain/parking"
)

const maxListLimit = 100

// ParkingRepository is the Postgres-backed store for config, sessions, history,
// special plates and the gate event audit log.
type ParkingRepository struct {
	db *gorm.DB
}

func NewParkingRepository(db *gorm.DB) *ParkingRepository {
	return &ParkingRepository{db: db}
}

func (r *ParkingRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// EnsureConfig returns the stored config row, seeding it with defaults when absent.
func (r *ParkingRepository) EnsureConfig(ctx context.Context, defaults parking.Config) (parking.Config, error) {
	seed := configToRow(defaults)
	seed.UpdatedAt = time.Now()

	var row ConfigRow
	err := r.db.WithContext(ctx).
		Where(ConfigRow{ID: configRowID}).
		Attrs(seed).
		FirstOrCreate(&row).Error
	if err != nil {
		return parking.Config{}, err
	}
	return rowToConfig(row), nil
}

func (r *ParkingRepository) SaveConfig(ctx context.Context, cfg parking.Config) error {
	row := configToRow(cfg)
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *ParkingRepository) GetActiveSession(ctx context.Context, plate string) (*parking.ActiveSession, error) {
	var row ActiveSessionRow
	err := r.db.WithContext(ctx).Where("plate = ?", plate).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, parking.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s := rowToSession(row)
	return &s, nil
}

func (r *ParkingRepository) CountActiveSessions(ctx context.Context, class parking.VehicleClass) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&ActiveSessionRow{}).
		Where("vehicle_class = ?", string(class)).
		Count(&n).Error
	return int(n), err
}

func (r *ParkingRepository) CreateActiveSession(ctx context.Context, s parking.ActiveSession) error {
	row := ActiveSessionRow{
		Plate:        s.Plate,
		VehicleClass: string(s.VehicleClass),
		EntryTime:    s.EntryTime,
		EvidenceRef:  optional(s.EvidenceRef),
		CreatedAt:    time.Now(),
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return parking.ErrAlreadyActive
	}
	return err
}

// CloseSession removes the active session for plate and appends rec to the
// history in one transaction.
func (r *ParkingRepository) CloseSession(ctx context.Context, plate string, rec parking.HistoryRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("plate = ?", plate).Delete(&ActiveSessionRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return parking.ErrSessionNotFound
		}

		row := HistoryRow{
			ID:              id,
			Plate:           rec.Plate,
			VehicleClass:    string(rec.VehicleClass),
			EntryTime:       rec.EntryTime,
			ExitTime:        rec.ExitTime,
			DurationMinutes: rec.DurationMinutes,
			Fee:             rec.Fee,
			IsVIP:           rec.IsVIP,
			EvidenceRef:     optional(rec.EvidenceRef),
			CreatedAt:       time.Now(),
		}
		return tx.Create(&row).Error
	})
}

func (r *ParkingRepository) ListActiveSessions(ctx context.Context, filter parking.ListFilter) ([]parking.ActiveSession, error) {
	query := r.db.WithContext(ctx).Model(&ActiveSessionRow{})
	if q := strings.TrimSpace(filter.PlateQuery); q != "" {
		query = query.Where("plate ILIKE ?", "%"+q+"%")
	}
	query = paginate(query.Order("entry_time DESC"), filter)

	var rows []ActiveSessionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]parking.ActiveSession, 0, len(rows))
	for _, row := range rows {
		result = append(result, rowToSession(row))
	}
	return result, nil
}

func (r *ParkingRepository) ListHistory(ctx context.Context, filter parking.ListFilter) ([]parking.HistoryRecord, error) {
	query := r.db.WithContext(ctx).Model(&HistoryRow{})
	if q := strings.TrimSpace(filter.PlateQuery); q != "" {
		query = query.Where("plate ILIKE ?", "%"+q+"%")
	}
	query = paginate(query.Order("exit_time DESC"), filter)

	var rows []HistoryRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]parking.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, rowToHistory(row))
	}
	return result, nil
}

// AllHistory returns the full history, newest first, for exports.
func (r *ParkingRepository) AllHistory(ctx context.Context) ([]parking.HistoryRecord, error) {
	var rows []HistoryRow
	if err := r.db.WithContext(ctx).Order("exit_time DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]parking.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, rowToHistory(row))
	}
	return result, nil
}

func (r *ParkingRepository) TotalRevenue(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&HistoryRow{}).
		Select("COALESCE(SUM(fee), 0)").
		Scan(&total).Error
	return total, err
}

// Reset drops every session and history row and rewrites the config row.
func (r *ParkingRepository) Reset(ctx context.Context, cfg parking.Config) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ActiveSessionRow{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&HistoryRow{}).Error; err != nil {
			return err
		}
		row := configToRow(cfg)
		return tx.Save(&row).Error
	})
}

func (r *ParkingRepository) GetSpecialPlate(ctx context.Context, plate string) (*parking.SpecialPlate, error) {
	var row SpecialPlateRow
	err := r.db.WithContext(ctx).Where("plate = ?", plate).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, parking.ErrPlateNotFound
	}
	if err != nil {
		return nil, err
	}
	p := rowToSpecialPlate(row)
	return &p, nil
}

func (r *ParkingRepository) UpsertSpecialPlate(ctx context.Context, p parking.SpecialPlate) error {
	row := SpecialPlateRow{
		Plate:     p.Plate,
		Category:  string(p.Category),
		Note:      optional(p.Note),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plate"}},
		DoUpdates: clause.AssignmentColumns([]string{"category", "note", "updated_at"}),
	}).Create(&row).Error
}

func (r *ParkingRepository) DeleteSpecialPlate(ctx context.Context, plate string) error {
	res := r.db.WithContext(ctx).Where("plate = ?", plate).Delete(&SpecialPlateRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return parking.ErrPlateNotFound
	}
	return nil
}

func (r *ParkingRepository) ListSpecialPlates(ctx context.Context) ([]parking.SpecialPlate, error) {
	var rows []SpecialPlateRow
	if err := r.db.WithContext(ctx).Order("plate").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]parking.SpecialPlate, 0, len(rows))
	for _, row := range rows {
		result = append(result, rowToSpecialPlate(row))
	}
	return result, nil
}

func (r *ParkingRepository) CreateGateEvent(ctx context.Context, event *parking.GateEvent) error {
	row := GateEventRow{
		ID:           uuid.New(),
		RunID:        optional(event.RunID),
		CameraID:     optional(event.CameraID),
		Role:         string(event.Role),
		Action:       event.Action,
		Result:       event.Result,
		Plate:        event.Plate,
		VehicleClass: optional(string(event.VehicleClass)),
		TrackingID:   event.TrackingID,
		Fee:          event.Fee,
		SnapshotURL:  optional(event.SnapshotURL),
		EventTime:    event.EventTime,
		CreatedAt:    time.Now(),
	}
	if event.Confidence != 0 {
		row.Confidence = &event.Confidence
	}
	if len(event.RawPayload) > 0 {
		row.RawPayload = datatypes.JSONMap(event.RawPayload)
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	event.ID = row.ID.String()
	return nil
}

// ListGateEvents returns audit rows, newest first.
func (r *ParkingRepository) ListGateEvents(ctx context.Context, filter parking.GateEventFilter) ([]parking.GateEvent, error) {
	query := r.db.WithContext(ctx).Model(&GateEventRow{})
	if q := strings.TrimSpace(filter.PlateQuery); q != "" {
		query = query.Where("plate ILIKE ?", "%"+q+"%")
	}
	if filter.From != nil {
		query = query.Where("event_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("event_time <= ?", *filter.To)
	}
	query = paginate(query.Order("event_time DESC"), parking.ListFilter{Limit: filter.Limit, Offset: filter.Offset})

	var rows []GateEventRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]parking.GateEvent, 0, len(rows))
	for _, row := range rows {
		result = append(result, rowToGateEvent(row))
	}
	return result, nil
}

// DeleteGateEventsBefore drops audit rows older than cutoff and reports how many went.
func (r *ParkingRepository) DeleteGateEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("event_time < ?", cutoff).Delete(&GateEventRow{})
	return res.RowsAffected, res.Error
}

func paginate(query *gorm.DB, filter parking.ListFilter) *gorm.DB {
	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > maxListLimit {
			limit = maxListLimit
		}
		query = query.Limit(limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	return query
}

func configToRow(cfg parking.Config) ConfigRow {
	return ConfigRow{
		ID:           configRowID,
		TotalFloors:  cfg.TotalFloors,
		CarCapacity:  cfg.CarCapacity,
		BikeCapacity: cfg.BikeCapacity,
		CarRate:      cfg.CarRate,
		BikeRate:     cfg.BikeRate,
		GraceMinutes: cfg.GraceMinutes,
		UpdatedAt:    cfg.UpdatedAt,
	}
}

func rowToConfig(row ConfigRow) parking.Config {
	return parking.Config{
		TotalFloors:  row.TotalFloors,
		CarCapacity:  row.CarCapacity,
		BikeCapacity: row.BikeCapacity,
		CarRate:      row.CarRate,
		BikeRate:     row.BikeRate,
		GraceMinutes: row.GraceMinutes,
		UpdatedAt:    row.UpdatedAt,
	}
}

func rowToSession(row ActiveSessionRow) parking.ActiveSession {
	return parking.ActiveSession{
		Plate:        row.Plate,
		VehicleClass: parking.VehicleClass(row.VehicleClass),
		EntryTime:    row.EntryTime,
		EvidenceRef:  deref(row.EvidenceRef),
	}
}

func rowToHistory(row HistoryRow) parking.HistoryRecord {
	return parking.HistoryRecord{
		ID:              row.ID.String(),
		Plate:           row.Plate,
		VehicleClass:    parking.VehicleClass(row.VehicleClass),
		EntryTime:       row.EntryTime,
		ExitTime:        row.ExitTime,
		DurationMinutes: row.DurationMinutes,
		Fee:             row.Fee,
		IsVIP:           row.IsVIP,
		EvidenceRef:     deref(row.EvidenceRef),
	}
}

func rowToSpecialPlate(row SpecialPlateRow) parking.SpecialPlate {
	return parking.SpecialPlate{
		Plate:     row.Plate,
		Category:  parking.SpecialCategory(row.Category),
		Note:      deref(row.Note),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func rowToGateEvent(row GateEventRow) parking.GateEvent {
	ev := parking.GateEvent{
		ID:           row.ID.String(),
		RunID:        deref(row.RunID),
		CameraID:     deref(row.CameraID),
		Role:         parking.GateRole(row.Role),
		Action:       row.Action,
		Result:       row.Result,
		Plate:        row.Plate,
		VehicleClass: parking.VehicleClass(deref(row.VehicleClass)),
		TrackingID:   row.TrackingID,
		Fee:          row.Fee,
		SnapshotURL:  deref(row.SnapshotURL),
		EventTime:    row.EventTime,
	}
	if row.Confidence != nil {
		ev.Confidence = *row.Confidence
	}
	if len(row.RawPayload) > 0 {
		ev.RawPayload = map[string]interface{}(row.RawPayload)
	}
	return ev
}
