// Package dbtest provides an in-memory db.Store for exercising the engine without a database.
package dbtest

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

// Store keeps every table in memory. WithinTx works on a copy that replaces the
// committed state only when the callback succeeds.
type Store struct {
	mu sync.Mutex

	Points        map[int64]*db.PreachingPoint
	Shifts        map[int64]*db.Shift
	Publishers    []db.Publisher
	Requests      []db.ShiftRequest
	Absences      []db.Absence
	Preferences   map[[2]int64]db.PreferenceLevel // {publisherID, pointID}
	Notifications []db.Notification

	// FailRequestsAt makes approved and pending request reads for the point fail with the given error
	FailRequestsAt map[int64]error
	// FailNotifications makes every notification insert fail
	FailNotifications error
	// ListErr makes ListShiftIDs fail
	ListErr error
	// BeforeLoad runs at the start of every LoadShiftForUpdate
	BeforeLoad func(shiftID int64)

	// Writes counts committed write operations
	Writes int
	// Commits and Rollbacks count finished transactions
	Commits   int
	Rollbacks int
}

// New returns an empty store
func New() *Store {
	return &Store{
		Points:         make(map[int64]*db.PreachingPoint),
		Shifts:         make(map[int64]*db.Shift),
		Preferences:    make(map[[2]int64]db.PreferenceLevel),
		FailRequestsAt: make(map[int64]error),
	}
}

// AddPoint registers a point
func (s *Store) AddPoint(p db.PreachingPoint) *Store {
	s.Points[p.ID] = &p
	return s
}

// AddShift registers a shift
func (s *Store) AddShift(sh db.Shift) *Store {
	s.Shifts[sh.ID] = &sh
	return s
}

// AddPublishers registers publishers by id with no language
func (s *Store) AddPublishers(ids ...int64) *Store {
	for _, id := range ids {
		s.Publishers = append(s.Publishers, db.Publisher{ID: id})
	}
	return s
}

// Shift returns a copy of the committed shift
func (s *Store) Shift(id int64) db.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.Shifts[id]
}

func (s *Store) ListShiftIDs(ctx context.Context, from, to time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}

	from, to = timeutil.DateOnly(from), timeutil.DateOnly(to)
	var shifts []*db.Shift
	for _, sh := range s.Shifts {
		day := timeutil.DateOnly(sh.Date)
		if day.Before(from) || day.After(to) {
			continue
		}
		shifts = append(shifts, sh)
	}
	slices.SortFunc(shifts, func(a, b *db.Shift) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	ids := make([]int64, 0, len(shifts))
	for _, sh := range shifts {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, sh.ID)
	}
	return ids, nil
}

// WithinTx serialises transactions, mirroring the row lock of the real stores
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin()
	committed := false
	defer func() {
		if !committed {
			s.Rollbacks++
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.Shifts = tx.shifts
	s.Requests = tx.requests
	s.Notifications = tx.notifications
	s.Writes += tx.writes
	s.Commits++
	committed = true
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) begin() *Tx {
	shifts := make(map[int64]*db.Shift, len(s.Shifts))
	for id, sh := range s.Shifts {
		c := *sh
		shifts[id] = &c
	}
	return &Tx{
		store:         s,
		shifts:        shifts,
		requests:      slices.Clone(s.Requests),
		notifications: slices.Clone(s.Notifications),
	}
}

// Tx is the transactional view handed to WithinTx callbacks
type Tx struct {
	store         *Store
	shifts        map[int64]*db.Shift
	requests      []db.ShiftRequest
	notifications []db.Notification
	writes        int
}

func (t *Tx) LoadShiftForUpdate(ctx context.Context, shiftID int64) (*db.Shift, *db.PreachingPoint, error) {
	if t.store.BeforeLoad != nil {
		t.store.BeforeLoad(shiftID)
	}
	sh, ok := t.shifts[shiftID]
	if !ok {
		return nil, nil, fmt.Errorf("shift %d: %w", shiftID, db.ErrNotFound)
	}
	p, ok := t.store.Points[sh.PointID]
	if !ok {
		return nil, nil, fmt.Errorf("point %d: %w", sh.PointID, db.ErrNotFound)
	}
	shift := *sh
	point := *p
	point.Windows = maps.Clone(p.Windows)
	return &shift, &point, nil
}

func (t *Tx) WriteSlot(ctx context.Context, shift *db.Shift, publisherID int64, maxSlots int) (bool, error) {
	idx, ok := shift.PlaceInFirstFreeSlot(publisherID, maxSlots)
	if !ok {
		return false, nil
	}
	stored, found := t.shifts[shift.ID]
	if !found {
		return false, fmt.Errorf("shift %d: %w", shift.ID, db.ErrNotFound)
	}
	if stored.Slots[idx] != nil {
		shift.Slots[idx] = nil
		return false, db.ErrSlotTaken
	}
	id := publisherID
	stored.Slots[idx] = &id
	t.writes++
	return true, nil
}

func (t *Tx) SetShiftStatus(ctx context.Context, shiftID int64, status db.ShiftStatus) error {
	sh, ok := t.shifts[shiftID]
	if !ok {
		return fmt.Errorf("shift %d: %w", shiftID, db.ErrNotFound)
	}
	sh.Status = status
	t.writes++
	return nil
}

func sortRequests(reqs []db.ShiftRequest) {
	slices.SortStableFunc(reqs, func(a, b db.ShiftRequest) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (t *Tx) requestsAt(pointID int64, status db.RequestStatus) ([]db.ShiftRequest, error) {
	if err := t.store.FailRequestsAt[pointID]; err != nil {
		return nil, err
	}
	var out []db.ShiftRequest
	for _, r := range t.requests {
		if r.PointID != nil && *r.PointID == pointID && r.Status == status {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func (t *Tx) ApprovedRequests(ctx context.Context, pointID int64) ([]db.ShiftRequest, error) {
	reqs, err := t.requestsAt(pointID, db.RequestApproved)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(reqs, func(r db.ShiftRequest) bool { return r.PublisherID == nil }), nil
}

func (t *Tx) PendingRequests(ctx context.Context, pointID int64) ([]db.ShiftRequest, error) {
	return t.requestsAt(pointID, db.RequestPending)
}

func (t *Tx) ApproveRequest(ctx context.Context, requestID int64) error {
	for i := range t.requests {
		if t.requests[i].ID == requestID {
			t.requests[i].Status = db.RequestApproved
			t.writes++
			return nil
		}
	}
	return fmt.Errorf("request %d: %w", requestID, db.ErrNotFound)
}

func (t *Tx) RequestsForPublisher(ctx context.Context, publisherID int64) ([]db.ShiftRequest, error) {
	var out []db.ShiftRequest
	for _, r := range t.requests {
		if r.PublisherID != nil && *r.PublisherID == publisherID {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func (t *Tx) CoveringRequests(ctx context.Context, date time.Time, start, end timeutil.Clock) ([]db.ShiftRequest, error) {
	var out []db.ShiftRequest
	for _, r := range t.requests {
		if r.PublisherID != nil && r.CoversSlot(date, start, end) {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func (t *Tx) HasAbsence(ctx context.Context, publisherID int64, date time.Time) (bool, error) {
	for i := range t.store.Absences {
		a := &t.store.Absences[i]
		if a.PublisherID == publisherID && a.Covers(date) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) SameDayAssignments(ctx context.Context, publisherID int64, date time.Time, excludeShiftID int64) ([]db.Shift, error) {
	day := timeutil.DateOnly(date)
	var out []db.Shift
	for id, sh := range t.shifts {
		if id == excludeShiftID || !timeutil.DateOnly(sh.Date).Equal(day) || !sh.Involves(publisherID) {
			continue
		}
		out = append(out, *sh)
	}
	return out, nil
}

func (t *Tx) RecentAssignmentCount(ctx context.Context, publisherID int64, since time.Time) (int, error) {
	since = timeutil.DateOnly(since)
	count := 0
	for _, sh := range t.shifts {
		if !timeutil.DateOnly(sh.Date).Before(since) && sh.Involves(publisherID) {
			count++
		}
	}
	return count, nil
}

func (t *Tx) PreviouslyRequestedPoint(ctx context.Context, publisherID, pointID int64) (bool, error) {
	for _, r := range t.requests {
		if r.PublisherID != nil && *r.PublisherID == publisherID && r.PointID != nil && *r.PointID == pointID {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) PointPreference(ctx context.Context, publisherID, pointID int64) (db.PreferenceLevel, error) {
	return t.store.Preferences[[2]int64{publisherID, pointID}], nil
}

func (t *Tx) LanguageCompatible(ctx context.Context, publisherID, pointID int64) (bool, error) {
	point, ok := t.store.Points[pointID]
	if !ok || point.LanguageID == nil {
		return true, nil
	}
	for _, p := range t.store.Publishers {
		if p.ID == publisherID {
			return p.LanguageID == nil || *p.LanguageID == *point.LanguageID, nil
		}
	}
	return true, nil
}

func (t *Tx) AllPublisherIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(t.store.Publishers))
	for _, p := range t.store.Publishers {
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *Tx) RecentNotificationExists(ctx context.Context, shiftID, publisherID int64, kind string, since time.Time) (bool, error) {
	for _, n := range t.notifications {
		if n.ShiftID == shiftID && n.PublisherID == publisherID && n.Kind == kind && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) CreateNotification(ctx context.Context, n *db.Notification) error {
	if t.store.FailNotifications != nil {
		return t.store.FailNotifications
	}
	n.ID = int64(len(t.notifications) + 1)
	t.notifications = append(t.notifications, *n)
	t.writes++
	return nil
}

var (
	_ db.Store = (*Store)(nil)
	_ db.Tx    = (*Tx)(nil)
)
