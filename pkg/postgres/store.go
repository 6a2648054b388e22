package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ppamtools/shift-assigner/pkg/db"
)

// ListShiftIDs returns up to limit shift ids dated within [from, to], ordered by date then start time
func (d *DB) ListShiftIDs(ctx context.Context, from, to time.Time, limit int) ([]int64, error) {
	query, args, err := listShiftsQuery(from, to, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build shift listing: %w", err)
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift ids: %w", err)
	}
	return ids, nil
}

// WithinTx runs fn in a transaction, committing when it returns nil.
// Row locks taken by fn are released on commit or rollback.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx implements db.Tx over a pgx transaction
type Tx struct {
	tx pgx.Tx
}

var _ db.Tx = (*Tx)(nil)

func (t *Tx) queryShifts(ctx context.Context, query string, args []any) ([]db.Shift, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []db.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shifts: %w", err)
	}
	return shifts, nil
}

func (t *Tx) queryRequests(ctx context.Context, query string, args []any) ([]db.ShiftRequest, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift requests: %w", err)
	}
	defer rows.Close()

	var requests []db.ShiftRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shift requests: %w", err)
	}
	return requests, nil
}

func (t *Tx) exists(ctx context.Context, query string, args []any) (bool, error) {
	return existsOn(ctx, t.tx, query, args)
}

func existsOn(ctx context.Context, tx pgx.Tx, query string, args []any) (bool, error) {
	var ok bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS ("+query+")", args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// savepoint runs fn inside a savepoint. A failing statement rolls back to the savepoint
// and leaves the assignment transaction usable.
func (t *Tx) savepoint(ctx context.Context, fn func(tx pgx.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}
	defer sp.Rollback(ctx)

	if err := fn(sp); err != nil {
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
