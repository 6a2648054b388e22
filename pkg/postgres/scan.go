package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

const microsPerMinute = int64(time.Minute / time.Microsecond)

func clockFromPG(t pgtype.Time) timeutil.Clock {
	if !t.Valid {
		return 0
	}
	return timeutil.Clock(t.Microseconds / microsPerMinute)
}

func clockToPG(c timeutil.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * microsPerMinute, Valid: true}
}

var shiftColumns = []string{
	"id", "punto_id", "fecha", "hora_inicio", "hora_fin",
	"publicador1_id", "publicador2_id", "publicador3_id", "publicador4_id",
	"capitan_id", "es_publico", "estado",
}

func scanShift(row pgx.Row) (*db.Shift, error) {
	var s db.Shift
	var start, end pgtype.Time
	var status string
	err := row.Scan(&s.ID, &s.PointID, &s.Date, &start, &end,
		&s.Slots[0], &s.Slots[1], &s.Slots[2], &s.Slots[3],
		&s.CaptainID, &s.IsPublic, &status)
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift: %w", err)
	}
	s.Start = clockFromPG(start)
	s.End = clockFromPG(end)
	s.Status = db.ShiftStatus(status)
	return &s, nil
}

var requestColumns = []string{
	"id", "punto_id", "usuario_id", "dia_semana", "hora_inicio", "hora_fin",
	"prioridad", "estado", "fecha_inicio", "fecha_fin", "created_at",
}

func scanRequest(row pgx.Row) (*db.ShiftRequest, error) {
	var r db.ShiftRequest
	var weekday int16
	var start, end pgtype.Time
	var status string
	err := row.Scan(&r.ID, &r.PointID, &r.PublisherID, &weekday, &start, &end,
		&r.Priority, &status, &r.ValidFrom, &r.ValidTo, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift request: %w", err)
	}
	if weekday < 0 || weekday > 6 {
		return nil, fmt.Errorf("shift request %d has invalid weekday %d", r.ID, weekday)
	}
	r.Weekday = time.Weekday(weekday)
	r.Start = clockFromPG(start)
	r.End = clockFromPG(end)
	r.Status = db.RequestStatus(status)
	return &r, nil
}
