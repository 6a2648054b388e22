package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder()

	r.ShiftProcessed("asignado")
	r.ShiftProcessed("asignado")
	r.ShiftProcessed("error")
	r.SlotFilled("pool")
	r.CandidateRejected("Ausente")
	r.Notification("created")
	r.BatchFinished(120 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.shiftsProcessed.WithLabelValues("asignado")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.shiftsProcessed.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.slotsFilled.WithLabelValues("pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejections.WithLabelValues("Ausente")))

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ShiftProcessed("asignado")
		r.SlotFilled("approved")
		r.CandidateRejected("Ausente")
		r.Notification("created")
		r.BatchFinished(time.Second)
	})
	assert.Nil(t, r.Registry())
}

func TestTally_AppliedOnlyWhenAsked(t *testing.T) {
	r := NewRecorder()
	tally := NewTally()

	tally.SlotFilled("approved")
	tally.SlotFilled("approved")
	tally.CandidateRejected("Conflicto horario")
	tally.Notification("failed")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.slotsFilled.WithLabelValues("approved")))

	r.Apply(tally)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.slotsFilled.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejections.WithLabelValues("Conflicto horario")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("failed")))

	var nilRecorder *Recorder
	assert.NotPanics(t, func() { nilRecorder.Apply(tally) })
}
