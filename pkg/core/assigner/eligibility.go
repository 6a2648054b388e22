package assigner

import (
	"context"
	"fmt"
	"time"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

// Checker answers hard-constraint and fairness questions against the current transaction
type Checker struct {
	tx db.Tx
}

// NewChecker binds a checker to a transaction
func NewChecker(tx db.Tx) *Checker {
	return &Checker{tx: tx}
}

// HasAbsence reports whether an absence covers the date
func (c *Checker) HasAbsence(ctx context.Context, publisherID int64, date time.Time) (bool, error) {
	absent, err := c.tx.HasAbsence(ctx, publisherID, timeutil.DateOnly(date))
	if err != nil {
		return false, fmt.Errorf("failed to check absence for publisher %d: %w", publisherID, err)
	}
	return absent, nil
}

// HasOverlappingAssignment reports whether the publisher already holds a slot or the
// captaincy of another shift that day whose window overlaps the given shift
func (c *Checker) HasOverlappingAssignment(ctx context.Context, publisherID int64, shift *db.Shift) (bool, error) {
	others, err := c.tx.SameDayAssignments(ctx, publisherID, timeutil.DateOnly(shift.Date), shift.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load same-day assignments for publisher %d: %w", publisherID, err)
	}
	for i := range others {
		other := &others[i]
		if other.ID == shift.ID || !other.Involves(publisherID) {
			continue
		}
		if timeutil.Overlaps(&other.Start, &other.End, &shift.Start, &shift.End) {
			return true, nil
		}
	}
	return false, nil
}

// HasStandingRequestCovering reports whether the publisher declared availability for the
// shift's point, weekday and window. Publishers with no requests at all are unconstrained.
func (c *Checker) HasStandingRequestCovering(ctx context.Context, publisherID int64, shift *db.Shift) (bool, error) {
	requests, err := c.tx.RequestsForPublisher(ctx, publisherID)
	if err != nil {
		return false, fmt.Errorf("failed to load requests for publisher %d: %w", publisherID, err)
	}
	if len(requests) == 0 {
		return true, nil
	}
	for i := range requests {
		if requests[i].Covers(shift.PointID, shift.Date, shift.Start, shift.End) {
			return true, nil
		}
	}
	return false, nil
}

// PreviouslyRequestedThisPoint reports whether any request links the publisher to the point
func (c *Checker) PreviouslyRequestedThisPoint(ctx context.Context, publisherID, pointID int64) (bool, error) {
	ok, err := c.tx.PreviouslyRequestedPoint(ctx, publisherID, pointID)
	if err != nil {
		return false, fmt.Errorf("failed to check previous requests for publisher %d: %w", publisherID, err)
	}
	return ok, nil
}

// RecentAssignmentCount counts shifts dated on or after today minus the window
func (c *Checker) RecentAssignmentCount(ctx context.Context, publisherID int64, windowWeeks int, today time.Time) (int, error) {
	since := timeutil.DateOnly(today).AddDate(0, 0, -7*windowWeeks)
	count, err := c.tx.RecentAssignmentCount(ctx, publisherID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent assignments for publisher %d: %w", publisherID, err)
	}
	return count, nil
}

// Conflict returns the hard-conflict reason for the publisher on this shift, or "" if none
func (c *Checker) Conflict(ctx context.Context, publisherID int64, shift *db.Shift) (string, error) {
	absent, err := c.HasAbsence(ctx, publisherID, shift.Date)
	if err != nil {
		return "", err
	}
	if absent {
		return ReasonAbsent, nil
	}

	overlapping, err := c.HasOverlappingAssignment(ctx, publisherID, shift)
	if err != nil {
		return "", err
	}
	if overlapping {
		return ReasonConflict, nil
	}
	return "", nil
}
