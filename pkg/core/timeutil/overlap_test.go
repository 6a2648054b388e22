package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	c := func(s string) *Clock { return MustClock(s).Ptr() }

	tests := []struct {
		name                   string
		startA, endA, startB, endB *Clock
		want                   bool
	}{
		{"identical", c("08:00"), c("09:00"), c("08:00"), c("09:00"), true},
		{"partial overlap", c("08:00"), c("10:00"), c("09:30"), c("11:00"), true},
		{"contained", c("08:00"), c("12:00"), c("09:00"), c("10:00"), true},
		{"touching end is not overlap", c("08:00"), c("09:00"), c("09:00"), c("10:00"), false},
		{"touching start is not overlap", c("09:00"), c("10:00"), c("08:00"), c("09:00"), false},
		{"disjoint", c("08:00"), c("09:00"), c("14:00"), c("15:00"), false},
		{"missing start", nil, c("09:00"), c("08:00"), c("09:00"), false},
		{"missing end", c("08:00"), c("09:00"), c("08:00"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.startA, tt.endA, tt.startB, tt.endB))
			assert.Equal(t, tt.want, Overlaps(tt.startB, tt.endB, tt.startA, tt.endA), "overlap must be symmetric")
		})
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains(MustClock("07:00"), MustClock("10:00"), MustClock("08:00"), MustClock("09:00")))
	assert.True(t, Contains(MustClock("08:00"), MustClock("09:00"), MustClock("08:00"), MustClock("09:00")))
	assert.False(t, Contains(MustClock("08:30"), MustClock("10:00"), MustClock("08:00"), MustClock("09:00")))
	assert.False(t, Contains(MustClock("07:00"), MustClock("08:30"), MustClock("08:00"), MustClock("09:00")))
}

func TestParseClock(t *testing.T) {
	for input, want := range map[string]Clock{
		"08:00":           NewClock(8, 0),
		"17:45:00":        NewClock(17, 45),
		"09:15:00.000000": NewClock(9, 15),
		" 07:05 ":         NewClock(7, 5),
	} {
		got, err := ParseClock(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseClock("25:99")
	assert.Error(t, err)
}

func TestClock_ScanAndValue(t *testing.T) {
	var c Clock
	require.NoError(t, c.Scan("10:30:00"))
	assert.Equal(t, "10:30", c.String())

	require.NoError(t, c.Scan([]byte("11:00")))
	assert.Equal(t, NewClock(11, 0), c)

	require.NoError(t, c.Scan(time.Date(0, 1, 1, 6, 15, 0, 0, time.UTC)))
	assert.Equal(t, NewClock(6, 15), c)

	assert.Error(t, c.Scan(3.14))

	v, err := NewClock(8, 5).Value()
	require.NoError(t, err)
	assert.Equal(t, "08:05:00", v)

	_, err = Clock(minutesPerDay).Value()
	assert.Error(t, err)
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2025, 1, 6, 23, 59, 0, 0, time.FixedZone("ART", -3*3600))
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), DateOnly(in))
}
