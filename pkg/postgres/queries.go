package postgres

import (
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

// involves matches shifts where the publisher holds any slot or the captaincy
func involves(publisherID int64) sq.Sqlizer {
	return sq.Expr("? IN (publicador1_id, publicador2_id, publicador3_id, publicador4_id, capitan_id)", publisherID)
}

func listShiftsQuery(from, to time.Time, limit int) sq.SelectBuilder {
	q := psql.Select("id").
		From("turnos").
		Where(sq.GtOrEq{"fecha": timeutil.DateOnly(from)}).
		Where(sq.LtOrEq{"fecha": timeutil.DateOnly(to)}).
		OrderBy("fecha", "hora_inicio", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func lockShiftQuery(shiftID int64) sq.SelectBuilder {
	return psql.Select(shiftColumns...).
		From("turnos").
		Where(sq.Eq{"id": shiftID}).
		Suffix("FOR UPDATE")
}

func writeSlotQuery(shiftID int64, slot int, publisherID int64) sq.UpdateBuilder {
	col := db.SlotColumn(slot)
	return psql.Update("turnos").
		Set(col, publisherID).
		Where(sq.Eq{"id": shiftID}).
		Where(sq.Eq{col: nil})
}

func requestsQuery() sq.SelectBuilder {
	return psql.Select(requestColumns...).
		From("solicitudes_turno").
		OrderBy("prioridad DESC", "id ASC")
}

func requestsAtPointQuery(pointID int64, status db.RequestStatus) sq.SelectBuilder {
	return requestsQuery().Where(sq.Eq{"punto_id": pointID, "estado": string(status)})
}

func coveringRequestsQuery(date time.Time, start, end timeutil.Clock) sq.SelectBuilder {
	day := timeutil.DateOnly(date)
	return requestsQuery().Where(sq.And{
		sq.NotEq{"usuario_id": nil},
		sq.Eq{"dia_semana": int(date.Weekday())},
		sq.LtOrEq{"hora_inicio": clockToPG(start)},
		sq.GtOrEq{"hora_fin": clockToPG(end)},
		sq.Or{sq.Eq{"fecha_inicio": nil}, sq.LtOrEq{"fecha_inicio": day}},
		sq.Or{sq.Eq{"fecha_fin": nil}, sq.GtOrEq{"fecha_fin": day}},
	})
}

func sameDayAssignmentsQuery(publisherID int64, date time.Time, excludeShiftID int64) sq.SelectBuilder {
	return psql.Select(shiftColumns...).
		From("turnos").
		Where(sq.Eq{"fecha": timeutil.DateOnly(date)}).
		Where(sq.NotEq{"id": excludeShiftID}).
		Where(involves(publisherID))
}

func recentAssignmentsQuery(publisherID int64, since time.Time) sq.SelectBuilder {
	return psql.Select("COUNT(*)").
		From("turnos").
		Where(sq.GtOrEq{"fecha": timeutil.DateOnly(since)}).
		Where(involves(publisherID))
}
