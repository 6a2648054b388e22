package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ppamtools/shift-assigner/pkg/db"
)

// RecentNotificationExists runs in a savepoint. Notifications never abort an assignment, so a
// failed lookup must not leave the transaction in the aborted state.
func (t *Tx) RecentNotificationExists(ctx context.Context, shiftID, publisherID int64, kind string, since time.Time) (bool, error) {
	query, args, err := psql.Select("1").
		From("notificaciones").
		Where(sq.Eq{"turno_id": shiftID, "usuario_id": publisherID, "tipo": kind}).
		Where(sq.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build notification lookup: %w", err)
	}

	var ok bool
	err = t.savepoint(ctx, func(sp pgx.Tx) error {
		var err error
		ok, err = existsOn(ctx, sp, query, args)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to query notifications: %w", err)
	}
	return ok, nil
}

// CreateNotification inserts inside a savepoint so a failed insert leaves the
// assignment transaction usable
func (t *Tx) CreateNotification(ctx context.Context, n *db.Notification) error {
	query, args, err := psql.Insert("notificaciones").
		Columns("turno_id", "usuario_id", "tipo", "mensaje", "payload", "canal", "estado", "created_at").
		Values(n.ShiftID, n.PublisherID, n.Kind, n.Message, string(n.Payload), n.Channel, n.State, n.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build notification insert: %w", err)
	}

	err = t.savepoint(ctx, func(sp pgx.Tx) error {
		return sp.QueryRow(ctx, query, args...).Scan(&n.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}
