package db

import (
	"slices"
	"time"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
)

// MaxSlots is the number of publisher seats physically present on a shift
const MaxSlots = 4

// ShiftStatus is the derived status written after every assignment run
type ShiftStatus string

const (
	StatusAssigned ShiftStatus = "asignado"
	StatusPending  ShiftStatus = "pendiente"
)

// RequestStatus is the approval state of a shift request
type RequestStatus string

const (
	RequestApproved RequestStatus = "aprobada"
	RequestPending  RequestStatus = "pendiente"
)

// PreferenceLevel is how much a publisher wants to serve at a given point
type PreferenceLevel string

const (
	PreferenceUnknown     PreferenceLevel = ""
	PreferencePreferred   PreferenceLevel = "preferido"
	PreferencePossible    PreferenceLevel = "posible"
	PreferenceNotPossible PreferenceLevel = "no_posible"
)

// Shift is a bookable time window at one preaching point
type Shift struct {
	ID        int64
	PointID   int64
	Date      time.Time
	Start     timeutil.Clock
	End       timeutil.Clock
	Slots     [MaxSlots]*int64
	CaptainID *int64
	IsPublic  bool
	Status    ShiftStatus
}

// Occupants returns the non-empty slot values in slot order
func (s Shift) Occupants() []int64 {
	ids := make([]int64, 0, MaxSlots)
	for _, slot := range s.Slots {
		if slot != nil {
			ids = append(ids, *slot)
		}
	}
	return ids
}

// HasOccupant reports whether the publisher already sits in one of the slots
func (s Shift) HasOccupant(publisherID int64) bool {
	return slices.Contains(s.Occupants(), publisherID)
}

// Involves reports whether the publisher is an occupant or the captain
func (s Shift) Involves(publisherID int64) bool {
	if s.CaptainID != nil && *s.CaptainID == publisherID {
		return true
	}
	return s.HasOccupant(publisherID)
}

// PlaceInFirstFreeSlot writes the publisher into the first empty slot below maxSlots.
// Returns the zero-based slot index, or false if the publisher is already present
// or no slot is free. Every store persists slot writes through this rule.
func (s *Shift) PlaceInFirstFreeSlot(publisherID int64, maxSlots int) (int, bool) {
	if s.HasOccupant(publisherID) {
		return -1, false
	}
	limit := min(maxSlots, MaxSlots)
	for i := 0; i < limit; i++ {
		if s.Slots[i] == nil {
			id := publisherID
			s.Slots[i] = &id
			return i, true
		}
	}
	return -1, false
}

// SlotColumn returns the column that backs slot index i
func SlotColumn(i int) string {
	return [MaxSlots]string{"publicador1_id", "publicador2_id", "publicador3_id", "publicador4_id"}[i]
}

// Window is an opening window within one day
type Window struct {
	Start timeutil.Clock
	End   timeutil.Clock
}

// PreachingPoint is a location with weekly opening hours and seat bounds
type PreachingPoint struct {
	ID            int64
	Name          string
	ValidFrom     *time.Time
	ValidTo       *time.Time
	Windows       map[time.Weekday]Window
	MinPublishers *int
	MaxPublishers *int
	LanguageID    *int64
}

// EffectiveMax is the seat limit for the point's shifts, defaulting to MaxSlots
func (p *PreachingPoint) EffectiveMax() int {
	if p == nil || p.MaxPublishers == nil || *p.MaxPublishers <= 0 {
		return MaxSlots
	}
	return min(*p.MaxPublishers, MaxSlots)
}

// EffectiveMin is the occupancy needed for a shift to count as assigned, defaulting to 1
func (p *PreachingPoint) EffectiveMin() int {
	if p == nil || p.MinPublishers == nil || *p.MinPublishers <= 0 {
		return 1
	}
	return *p.MinPublishers
}

// Publisher is a congregation member eligible to be scheduled
type Publisher struct {
	ID         int64
	FirstName  string
	LastName   string
	LanguageID *int64
}

// ShiftRequest is a standing availability declaration by a publisher.
// A nil PointID declares general availability for any point.
type ShiftRequest struct {
	ID          int64
	PointID     *int64
	PublisherID *int64
	Weekday     time.Weekday
	Start       timeutil.Clock
	End         timeutil.Clock
	Priority    int
	Status      RequestStatus
	ValidFrom   *time.Time
	ValidTo     *time.Time
	CreatedAt   time.Time
}

// Covers reports whether the request declares availability for the given point, date and window
func (r *ShiftRequest) Covers(pointID int64, date time.Time, start, end timeutil.Clock) bool {
	if r.PointID != nil && *r.PointID != pointID {
		return false
	}
	return r.CoversSlot(date, start, end)
}

// CoversSlot reports whether the request's weekday, window and validity contain the slot, wherever it is
func (r *ShiftRequest) CoversSlot(date time.Time, start, end timeutil.Clock) bool {
	if r.Weekday != date.Weekday() {
		return false
	}
	if !timeutil.Contains(r.Start, r.End, start, end) {
		return false
	}
	day := timeutil.DateOnly(date)
	if r.ValidFrom != nil && day.Before(timeutil.DateOnly(*r.ValidFrom)) {
		return false
	}
	if r.ValidTo != nil && day.After(timeutil.DateOnly(*r.ValidTo)) {
		return false
	}
	return true
}

// Absence is a publisher-declared unavailable date range, inclusive at both ends
type Absence struct {
	ID          int64
	PublisherID int64
	From        time.Time
	To          time.Time
	Reason      string
}

// Covers reports whether the date falls inside the absence
func (a *Absence) Covers(date time.Time) bool {
	day := timeutil.DateOnly(date)
	return !day.Before(timeutil.DateOnly(a.From)) && !day.After(timeutil.DateOnly(a.To))
}

// Notification is a request for the external transport to notify a publisher
type Notification struct {
	ID          int64
	ShiftID     int64
	PublisherID int64
	Kind        string
	Message     string
	Payload     []byte
	Channel     string
	State       string
	CreatedAt   time.Time
}

// Notification defaults matching what the delivery worker polls for
const (
	NotificationKindCovered  = "cubierto"
	NotificationChannelBoth  = "ambos"
	NotificationStatePending = "pending"
)
