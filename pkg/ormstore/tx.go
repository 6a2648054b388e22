package ormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

const involvesPublisher = "? IN (publicador1_id, publicador2_id, publicador3_id, publicador4_id, capitan_id)"

// Tx implements db.Tx on a gorm transaction
type Tx struct {
	db   *gorm.DB
	lock bool
}

var _ db.Tx = (*Tx)(nil)

func (t *Tx) q(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *Tx) LoadShiftForUpdate(ctx context.Context, shiftID int64) (*db.Shift, *db.PreachingPoint, error) {
	q := t.q(ctx)
	if t.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var m Shift
	err := q.Where("id = ?", shiftID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("shift %d: %w", shiftID, db.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load shift %d: %w", shiftID, err)
	}

	var p Point
	err = t.q(ctx).Preload("Windows").Where("id = ?", m.PointID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("point %d: %w", m.PointID, db.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load point %d: %w", m.PointID, err)
	}

	return m.toDomain(), p.toDomain(), nil
}

func (t *Tx) WriteSlot(ctx context.Context, shift *db.Shift, publisherID int64, maxSlots int) (bool, error) {
	idx, ok := shift.PlaceInFirstFreeSlot(publisherID, maxSlots)
	if !ok {
		return false, nil
	}

	col := db.SlotColumn(idx)
	res := t.q(ctx).Model(&Shift{}).
		Where("id = ?", shift.ID).
		Where(col + " IS NULL").
		Update(col, publisherID)
	if res.Error != nil {
		shift.Slots[idx] = nil
		return false, fmt.Errorf("failed to write %s: %w", col, res.Error)
	}
	if res.RowsAffected == 0 {
		shift.Slots[idx] = nil
		return false, fmt.Errorf("shift %d %s: %w", shift.ID, col, db.ErrSlotTaken)
	}
	return true, nil
}

func (t *Tx) SetShiftStatus(ctx context.Context, shiftID int64, status db.ShiftStatus) error {
	res := t.q(ctx).Model(&Shift{}).Where("id = ?", shiftID).Update("estado", string(status))
	if res.Error != nil {
		return fmt.Errorf("failed to update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("shift %d: %w", shiftID, db.ErrNotFound)
	}
	return nil
}

func (t *Tx) findRequests(q *gorm.DB) ([]db.ShiftRequest, error) {
	var ms []Request
	if err := q.Order("prioridad DESC, id ASC").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to query shift requests: %w", err)
	}
	return requestsToDomain(ms), nil
}

func (t *Tx) ApprovedRequests(ctx context.Context, pointID int64) ([]db.ShiftRequest, error) {
	return t.findRequests(t.q(ctx).
		Where("punto_id = ? AND estado = ?", pointID, string(db.RequestApproved)).
		Where("usuario_id IS NOT NULL"))
}

func (t *Tx) PendingRequests(ctx context.Context, pointID int64) ([]db.ShiftRequest, error) {
	return t.findRequests(t.q(ctx).
		Where("punto_id = ? AND estado = ?", pointID, string(db.RequestPending)))
}

func (t *Tx) ApproveRequest(ctx context.Context, requestID int64) error {
	res := t.q(ctx).Model(&Request{}).Where("id = ?", requestID).Updates(map[string]any{
		"estado":       string(db.RequestApproved),
		"processed_at": t.db.NowFunc(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to approve request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("request %d: %w", requestID, db.ErrNotFound)
	}
	return nil
}

func (t *Tx) RequestsForPublisher(ctx context.Context, publisherID int64) ([]db.ShiftRequest, error) {
	return t.findRequests(t.q(ctx).Where("usuario_id = ?", publisherID))
}

// CoveringRequests narrows by weekday in SQL; window and validity are checked in Go
// so TIME and DATE comparisons behave the same on every dialect
func (t *Tx) CoveringRequests(ctx context.Context, date time.Time, start, end timeutil.Clock) ([]db.ShiftRequest, error) {
	requests, err := t.findRequests(t.q(ctx).
		Where("usuario_id IS NOT NULL AND dia_semana = ?", int(date.Weekday())))
	if err != nil {
		return nil, err
	}

	covering := requests[:0]
	for _, r := range requests {
		if r.CoversSlot(date, start, end) {
			covering = append(covering, r)
		}
	}
	return covering, nil
}

func (t *Tx) count(q *gorm.DB) (int64, error) {
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func (t *Tx) HasAbsence(ctx context.Context, publisherID int64, date time.Time) (bool, error) {
	day := timeutil.DateOnly(date)
	n, err := t.count(t.q(ctx).Model(&Absence{}).
		Where("usuario_id = ? AND fecha_inicio <= ? AND fecha_fin >= ?", publisherID, day, day))
	if err != nil {
		return false, fmt.Errorf("failed to query absences: %w", err)
	}
	return n > 0, nil
}

func (t *Tx) SameDayAssignments(ctx context.Context, publisherID int64, date time.Time, excludeShiftID int64) ([]db.Shift, error) {
	var ms []Shift
	err := t.q(ctx).
		Where("fecha = ? AND id <> ?", timeutil.DateOnly(date), excludeShiftID).
		Where(involvesPublisher, publisherID).
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query same-day shifts: %w", err)
	}

	shifts := make([]db.Shift, 0, len(ms))
	for i := range ms {
		shifts = append(shifts, *ms[i].toDomain())
	}
	return shifts, nil
}

func (t *Tx) RecentAssignmentCount(ctx context.Context, publisherID int64, since time.Time) (int, error) {
	n, err := t.count(t.q(ctx).Model(&Shift{}).
		Where("fecha >= ?", timeutil.DateOnly(since)).
		Where(involvesPublisher, publisherID))
	if err != nil {
		return 0, fmt.Errorf("failed to count recent assignments: %w", err)
	}
	return int(n), nil
}

func (t *Tx) PreviouslyRequestedPoint(ctx context.Context, publisherID, pointID int64) (bool, error) {
	n, err := t.count(t.q(ctx).Model(&Request{}).
		Where("usuario_id = ? AND punto_id = ?", publisherID, pointID))
	if err != nil {
		return false, fmt.Errorf("failed to query previous requests: %w", err)
	}
	return n > 0, nil
}

// PointPreference treats a missing preferences table or row as unknown
func (t *Tx) PointPreference(ctx context.Context, publisherID, pointID int64) (db.PreferenceLevel, error) {
	if !t.q(ctx).Migrator().HasTable(&Preference{}) {
		return db.PreferenceUnknown, nil
	}

	var ms []Preference
	err := t.q(ctx).
		Where("usuario_id = ? AND punto_id = ?", publisherID, pointID).
		Limit(1).
		Find(&ms).Error
	if err != nil {
		return db.PreferenceUnknown, fmt.Errorf("failed to query point preference: %w", err)
	}
	if len(ms) == 0 {
		return db.PreferenceUnknown, nil
	}
	return db.PreferenceLevel(ms[0].Level), nil
}

func (t *Tx) LanguageCompatible(ctx context.Context, publisherID, pointID int64) (bool, error) {
	var pubs []Publisher
	if err := t.q(ctx).Where("id = ?", publisherID).Limit(1).Find(&pubs).Error; err != nil {
		return false, fmt.Errorf("failed to load publisher %d: %w", publisherID, err)
	}
	var points []Point
	if err := t.q(ctx).Where("id = ?", pointID).Limit(1).Find(&points).Error; err != nil {
		return false, fmt.Errorf("failed to load point %d: %w", pointID, err)
	}
	if len(pubs) == 0 || len(points) == 0 {
		return true, nil
	}

	publisherLang, pointLang := pubs[0].LanguageID, points[0].LanguageID
	if publisherLang == nil || pointLang == nil {
		return true, nil
	}
	return *publisherLang == *pointLang, nil
}

func (t *Tx) AllPublisherIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := t.q(ctx).Model(&Publisher{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list publishers: %w", err)
	}
	return ids, nil
}

// RecentNotificationExists runs in a nested transaction like CreateNotification, so a failed
// lookup on Postgres rolls back to the savepoint instead of aborting the assignment
func (t *Tx) RecentNotificationExists(ctx context.Context, shiftID, publisherID int64, kind string, since time.Time) (bool, error) {
	var n int64
	err := t.q(ctx).Transaction(func(sp *gorm.DB) error {
		var err error
		n, err = t.count(sp.Model(&Notification{}).
			Where("turno_id = ? AND usuario_id = ? AND tipo = ? AND created_at >= ?", shiftID, publisherID, kind, since.UTC()))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to query notifications: %w", err)
	}
	return n > 0, nil
}

// CreateNotification inserts in a nested transaction, which gorm runs as a savepoint
func (t *Tx) CreateNotification(ctx context.Context, n *db.Notification) error {
	m := Notification{
		ShiftID:     n.ShiftID,
		PublisherID: n.PublisherID,
		Kind:        n.Kind,
		Message:     n.Message,
		Payload:     string(n.Payload),
		Channel:     n.Channel,
		State:       n.State,
		CreatedAt:   n.CreatedAt.UTC(),
	}
	err := t.q(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(&m).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	n.ID = m.ID
	return nil
}
