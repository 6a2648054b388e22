package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

func (t *Tx) ApprovedRequests(ctx context.Context, pointID int64) ([]db.ShiftRequest, error) {
	query, args, err := requestsAtPointQuery(pointID, db.RequestApproved).
		Where(sq.NotEq{"usuario_id": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build approved requests query: %w", err)
	}
	return t.queryRequests(ctx, query, args)
}

func (t *Tx) PendingRequests(ctx context.Context, pointID int64) ([]db.ShiftRequest, error) {
	query, args, err := requestsAtPointQuery(pointID, db.RequestPending).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pending requests query: %w", err)
	}
	return t.queryRequests(ctx, query, args)
}

// ApproveRequest flips a pending request to approved and stamps processed_at
func (t *Tx) ApproveRequest(ctx context.Context, requestID int64) error {
	query, args, err := psql.Update("solicitudes_turno").
		Set("estado", string(db.RequestApproved)).
		Set("processed_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": requestID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build request approval: %w", err)
	}

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to approve request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d: %w", requestID, db.ErrNotFound)
	}
	return nil
}

func (t *Tx) RequestsForPublisher(ctx context.Context, publisherID int64) ([]db.ShiftRequest, error) {
	query, args, err := requestsQuery().Where(sq.Eq{"usuario_id": publisherID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build publisher requests query: %w", err)
	}
	return t.queryRequests(ctx, query, args)
}

// CoveringRequests returns requests at any point whose window contains the shift
func (t *Tx) CoveringRequests(ctx context.Context, date time.Time, start, end timeutil.Clock) ([]db.ShiftRequest, error) {
	query, args, err := coveringRequestsQuery(date, start, end).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build covering requests query: %w", err)
	}
	requests, err := t.queryRequests(ctx, query, args)
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
