package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

// Codes for schema objects that deployments may not have created
const (
	undefinedTable  = "42P01"
	undefinedColumn = "42703"
)

func isMissingSchema(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == undefinedTable || pgErr.Code == undefinedColumn)
}

// optional runs fn inside a savepoint so a missing table degrades to neutral
func (t *Tx) optional(ctx context.Context, fn func(tx pgx.Tx) error) (missing bool, err error) {
	if err := t.savepoint(ctx, fn); err != nil {
		if isMissingSchema(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (t *Tx) HasAbsence(ctx context.Context, publisherID int64, date time.Time) (bool, error) {
	day := timeutil.DateOnly(date)
	query, args, err := psql.Select("1").
		From("ausencias").
		Where(sq.Eq{"usuario_id": publisherID}).
		Where(sq.LtOrEq{"fecha_inicio": day}).
		Where(sq.GtOrEq{"fecha_fin": day}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build absence query: %w", err)
	}

	absent, err := t.exists(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("failed to query absences: %w", err)
	}
	return absent, nil
}

func (t *Tx) SameDayAssignments(ctx context.Context, publisherID int64, date time.Time, excludeShiftID int64) ([]db.Shift, error) {
	query, args, err := sameDayAssignmentsQuery(publisherID, date, excludeShiftID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build same-day query: %w", err)
	}
	return t.queryShifts(ctx, query, args)
}

func (t *Tx) RecentAssignmentCount(ctx context.Context, publisherID int64, since time.Time) (int, error) {
	query, args, err := recentAssignmentsQuery(publisherID, since).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build recent assignments query: %w", err)
	}

	var count int
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent assignments: %w", err)
	}
	return count, nil
}

func (t *Tx) PreviouslyRequestedPoint(ctx context.Context, publisherID, pointID int64) (bool, error) {
	query, args, err := psql.Select("1").
		From("solicitudes_turno").
		Where(sq.Eq{"usuario_id": publisherID, "punto_id": pointID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build previous requests query: %w", err)
	}

	ok, err := t.exists(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("failed to query previous requests: %w", err)
	}
	return ok, nil
}

// PointPreference reads the optional preferences table. A missing table or row is unknown.
func (t *Tx) PointPreference(ctx context.Context, publisherID, pointID int64) (db.PreferenceLevel, error) {
	query, args, err := psql.Select("nivel").
		From("publicador_punto_preferencias").
		Where(sq.Eq{"usuario_id": publisherID, "punto_id": pointID}).
		ToSql()
	if err != nil {
		return db.PreferenceUnknown, fmt.Errorf("failed to build preference query: %w", err)
	}

	var level string
	_, err = t.optional(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, args...).Scan(&level)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return db.PreferenceUnknown, fmt.Errorf("failed to query point preference: %w", err)
	}
	return db.PreferenceLevel(level), nil
}

// LanguageCompatible is true unless both the publisher and the point declare different languages
func (t *Tx) LanguageCompatible(ctx context.Context, publisherID, pointID int64) (bool, error) {
	query, args, err := psql.Select("p.idioma_id", "pp.idioma_id").
		From("publicadores p").
		Join("puntos_predicacion pp ON pp.id = ?", pointID).
		Where(sq.Eq{"p.id": publisherID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build language query: %w", err)
	}

	var publisherLang, pointLang *int64
	_, err = t.optional(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, args...).Scan(&publisherLang, &pointLang)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to query languages: %w", err)
	}
	if publisherLang == nil || pointLang == nil {
		return true, nil
	}
	return *publisherLang == *pointLang, nil
}

func (t *Tx) AllPublisherIDs(ctx context.Context) ([]int64, error) {
	query, args, err := psql.Select("id").From("publicadores").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build publishers query: %w", err)
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query publishers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan publisher ids: %w", err)
	}
	return ids, nil
}
