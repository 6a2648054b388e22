package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ppamtools/shift-assigner/pkg/db"
)

// LoadShiftForUpdate locks the shift row until the transaction ends and loads its point
func (t *Tx) LoadShiftForUpdate(ctx context.Context, shiftID int64) (*db.Shift, *db.PreachingPoint, error) {
	query, args, err := lockShiftQuery(shiftID).ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build shift lock: %w", err)
	}

	shift, err := scanShift(t.tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("shift %d: %w", shiftID, db.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	point, err := t.loadPoint(ctx, shift.PointID)
	if err != nil {
		return nil, nil, err
	}
	return shift, point, nil
}

func (t *Tx) loadPoint(ctx context.Context, pointID int64) (*db.PreachingPoint, error) {
	query, args, err := psql.Select("id", "nombre", "fecha_inicio", "fecha_fin", "min_publicadores", "max_publicadores", "idioma_id").
		From("puntos_predicacion").
		Where(sq.Eq{"id": pointID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build point query: %w", err)
	}

	var p db.PreachingPoint
	err = t.tx.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.Name, &p.ValidFrom, &p.ValidTo, &p.MinPublishers, &p.MaxPublishers, &p.LanguageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("point %d: %w", pointID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load point %d: %w", pointID, err)
	}

	query, args, err = psql.Select("dia_semana", "hora_inicio", "hora_fin").
		From("punto_horarios").
		Where(sq.Eq{"punto_id": pointID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build point windows query: %w", err)
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query windows of point %d: %w", pointID, err)
	}
	defer rows.Close()

	p.Windows = make(map[time.Weekday]db.Window)
	for rows.Next() {
		var weekday int16
		var start, end pgtype.Time
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan point window: %w", err)
		}
		p.Windows[time.Weekday(weekday)] = db.Window{Start: clockFromPG(start), End: clockFromPG(end)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating point windows: %w", err)
	}

	return &p, nil
}

// WriteSlot persists the publisher in the first free slot. The update only succeeds
// while the column is still empty.
func (t *Tx) WriteSlot(ctx context.Context, shift *db.Shift, publisherID int64, maxSlots int) (bool, error) {
	idx, ok := shift.PlaceInFirstFreeSlot(publisherID, maxSlots)
	if !ok {
		return false, nil
	}

	query, args, err := writeSlotQuery(shift.ID, idx, publisherID).ToSql()
	if err != nil {
		shift.Slots[idx] = nil
		return false, fmt.Errorf("failed to build slot update: %w", err)
	}

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		shift.Slots[idx] = nil
		return false, fmt.Errorf("failed to write %s: %w", db.SlotColumn(idx), err)
	}
	if tag.RowsAffected() == 0 {
		shift.Slots[idx] = nil
		return false, fmt.Errorf("shift %d %s: %w", shift.ID, db.SlotColumn(idx), db.ErrSlotTaken)
	}
	return true, nil
}

func (t *Tx) SetShiftStatus(ctx context.Context, shiftID int64, status db.ShiftStatus) error {
	query, args, err := psql.Update("turnos").
		Set("estado", string(status)).
		Where(sq.Eq{"id": shiftID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build status update: %w", err)
	}

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shift %d: %w", shiftID, db.ErrNotFound)
	}
	return nil
}
