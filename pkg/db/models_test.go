package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
)

func id(v int64) *int64 { return &v }

func date(s string) time.Time {
	t, err := timeutil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestShift_PlaceInFirstFreeSlot(t *testing.T) {
	shift := &Shift{ID: 1}
	shift.Slots[1] = id(7)

	idx, ok := shift.PlaceInFirstFreeSlot(3, 4)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = shift.PlaceInFirstFreeSlot(9, 4)
	require.True(t, ok)
	assert.Equal(t, 2, idx, "slot 2 is occupied so the next free one is used")

	_, ok = shift.PlaceInFirstFreeSlot(7, 4)
	assert.False(t, ok, "duplicate publisher must be refused")

	assert.Equal(t, []int64{3, 7, 9}, shift.Occupants())
}

func TestShift_PlaceInFirstFreeSlot_RespectsMax(t *testing.T) {
	shift := &Shift{ID: 1}

	_, ok := shift.PlaceInFirstFreeSlot(1, 2)
	require.True(t, ok)
	_, ok = shift.PlaceInFirstFreeSlot(2, 2)
	require.True(t, ok)
	_, ok = shift.PlaceInFirstFreeSlot(3, 2)
	assert.False(t, ok)

	// max above the physical slot count is clamped
	_, ok = shift.PlaceInFirstFreeSlot(3, 10)
	require.True(t, ok)
	_, ok = shift.PlaceInFirstFreeSlot(4, 10)
	require.True(t, ok)
	_, ok = shift.PlaceInFirstFreeSlot(5, 10)
	assert.False(t, ok)
	assert.Len(t, shift.Occupants(), MaxSlots)
}

func TestShift_Involves(t *testing.T) {
	shift := &Shift{CaptainID: id(5)}
	shift.Slots[3] = id(6)

	assert.True(t, shift.Involves(5))
	assert.True(t, shift.Involves(6))
	assert.False(t, shift.HasOccupant(5))
	assert.False(t, shift.Involves(7))
}

func loadedShift() Shift {
	s := Shift{ID: 1}
	s.Slots[2] = id(9)
	s.Slots[0] = id(4)
	return s
}

func TestShift_ReadersOnReturnedValue(t *testing.T) {
	assert.Equal(t, []int64{4, 9}, loadedShift().Occupants())
	assert.True(t, loadedShift().HasOccupant(9))
	assert.False(t, loadedShift().Involves(5))
}

func TestPreachingPoint_Bounds(t *testing.T) {
	var nilPoint *PreachingPoint
	assert.Equal(t, 4, nilPoint.EffectiveMax())
	assert.Equal(t, 1, nilPoint.EffectiveMin())

	six, two, zero := 6, 2, 0
	assert.Equal(t, 4, (&PreachingPoint{MaxPublishers: &six}).EffectiveMax())
	assert.Equal(t, 2, (&PreachingPoint{MaxPublishers: &two}).EffectiveMax())
	assert.Equal(t, 1, (&PreachingPoint{MinPublishers: &zero}).EffectiveMin())
	assert.Equal(t, 2, (&PreachingPoint{MinPublishers: &two}).EffectiveMin())
}

func TestShiftRequest_Covers(t *testing.T) {
	monday := date("2025-01-06")
	start, end := timeutil.MustClock("08:00"), timeutil.MustClock("09:00")

	general := ShiftRequest{Weekday: time.Monday, Start: timeutil.MustClock("07:00"), End: timeutil.MustClock("10:00")}
	assert.True(t, general.Covers(1, monday, start, end), "a request without point covers every point")

	atOther := general
	atOther.PointID = id(2)
	assert.False(t, atOther.Covers(1, monday, start, end))

	atSame := general
	atSame.PointID = id(1)
	assert.True(t, atSame.Covers(1, monday, start, end))

	assert.False(t, general.Covers(1, date("2025-01-07"), start, end), "wrong weekday")
	assert.False(t, general.Covers(1, monday, timeutil.MustClock("09:30"), timeutil.MustClock("10:30")), "window not contained")

	expired := general
	validTo := date("2025-01-01")
	expired.ValidTo = &validTo
	assert.False(t, expired.Covers(1, monday, start, end))

	future := general
	validFrom := date("2025-02-01")
	future.ValidFrom = &validFrom
	assert.False(t, future.Covers(1, monday, start, end))
}

func TestAbsence_Covers(t *testing.T) {
	a := Absence{From: date("2025-01-06"), To: date("2025-01-10")}
	assert.True(t, a.Covers(date("2025-01-06")))
	assert.True(t, a.Covers(date("2025-01-10")))
	assert.True(t, a.Covers(date("2025-01-08").Add(15*time.Hour)))
	assert.False(t, a.Covers(date("2025-01-05")))
	assert.False(t, a.Covers(date("2025-01-11")))
}

func TestPreachingPoint_OpenOn(t *testing.T) {
	from, to := date("2025-01-01"), date("2025-03-31")
	point := &PreachingPoint{
		ID:        1,
		ValidFrom: &from,
		ValidTo:   &to,
		Windows: map[time.Weekday]Window{
			time.Monday:   {Start: timeutil.MustClock("07:00"), End: timeutil.MustClock("12:00")},
			time.Saturday: {Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("13:00")},
		},
	}

	open, err := point.OpenOn(date("2025-01-06"))
	require.NoError(t, err)
	assert.True(t, open, "monday inside validity")

	open, err = point.OpenOn(date("2025-01-07"))
	require.NoError(t, err)
	assert.False(t, open, "tuesday has no window")

	open, err = point.OpenOn(date("2025-04-07"))
	require.NoError(t, err)
	assert.False(t, open, "monday after validity ends")

	open, err = point.OpenOn(date("2024-12-30"))
	require.NoError(t, err)
	assert.False(t, open, "monday before validity starts")

	w, ok := point.WindowOn(date("2025-01-11"))
	require.True(t, ok)
	assert.Equal(t, "09:00", w.Start.String())

	closed := &PreachingPoint{}
	open, err = closed.OpenOn(date("2025-01-06"))
	require.NoError(t, err)
	assert.False(t, open)
}
