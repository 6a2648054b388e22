package db

import (
	"context"
	"errors"
	"time"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
)

var (
	// ErrNotFound is returned when a referenced row does not exist
	ErrNotFound = errors.New("not found")
	// ErrSlotTaken is returned when a slot written by another session is no longer empty
	ErrSlotTaken = errors.New("slot already taken")
)

// ShiftRepository loads, locks and writes shifts inside a transaction
type ShiftRepository interface {
	// LoadShiftForUpdate fetches the shift and its point, holding a row lock until the
	// enclosing transaction ends. Returns ErrNotFound if the shift does not exist.
	LoadShiftForUpdate(ctx context.Context, shiftID int64) (*Shift, *PreachingPoint, error)
	// WriteSlot places the publisher in the first free slot and persists it.
	// Returns false without writing if the publisher is present or the shift is full.
	WriteSlot(ctx context.Context, shift *Shift, publisherID int64, maxSlots int) (bool, error)
	SetShiftStatus(ctx context.Context, shiftID int64, status ShiftStatus) error
}

// RequestRepository reads and approves standing shift requests
type RequestRepository interface {
	ApprovedRequests(ctx context.Context, pointID int64) ([]ShiftRequest, error)
	PendingRequests(ctx context.Context, pointID int64) ([]ShiftRequest, error)
	ApproveRequest(ctx context.Context, requestID int64) error
	RequestsForPublisher(ctx context.Context, publisherID int64) ([]ShiftRequest, error)
	// CoveringRequests returns publisher requests at any point whose day and window contain the slot
	CoveringRequests(ctx context.Context, date time.Time, start, end timeutil.Clock) ([]ShiftRequest, error)
}

// ConflictRepository answers eligibility questions about a publisher
type ConflictRepository interface {
	HasAbsence(ctx context.Context, publisherID int64, date time.Time) (bool, error)
	SameDayAssignments(ctx context.Context, publisherID int64, date time.Time, excludeShiftID int64) ([]Shift, error)
	RecentAssignmentCount(ctx context.Context, publisherID int64, since time.Time) (int, error)
	PreviouslyRequestedPoint(ctx context.Context, publisherID, pointID int64) (bool, error)
	PointPreference(ctx context.Context, publisherID, pointID int64) (PreferenceLevel, error)
	LanguageCompatible(ctx context.Context, publisherID, pointID int64) (bool, error)
	AllPublisherIDs(ctx context.Context) ([]int64, error)
}

// NotificationStore records notification requests for the delivery worker
type NotificationStore interface {
	RecentNotificationExists(ctx context.Context, shiftID, publisherID int64, kind string, since time.Time) (bool, error)
	// CreateNotification must not poison the enclosing transaction when it fails
	CreateNotification(ctx context.Context, n *Notification) error
}

// Tx is the unit of work the engine runs one shift inside
type Tx interface {
	ShiftRepository
	RequestRepository
	ConflictRepository
	NotificationStore
}

// Store is implemented by every storage backend.
// Both postgres.DB and ormstore.Store implement this interface.
type Store interface {
	// ListShiftIDs returns up to limit shift ids dated within [from, to], ordered by date then start time
	ListShiftIDs(ctx context.Context, from, to time.Time, limit int) ([]int64, error)
	// WithinTx commits when fn returns nil and rolls back otherwise, including on panic
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
