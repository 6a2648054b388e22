package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the engine's Prometheus collectors.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	shiftsProcessed *prometheus.CounterVec
	slotsFilled     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	batchDuration   prometheus.Histogram
}

// NewRecorder registers the engine collectors on a fresh registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		shiftsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shift_assigner",
			Name:      "shifts_processed_total",
			Help:      "Shifts processed by the assignment engine, by outcome.",
		}, []string{"outcome"}),
		slotsFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shift_assigner",
			Name:      "slots_filled_total",
			Help:      "Publisher slots filled, by assignment pass.",
		}, []string{"pass"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shift_assigner",
			Name:      "candidate_rejections_total",
			Help:      "Candidates rejected during scoring, by reason.",
		}, []string{"reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shift_assigner",
			Name:      "notifications_total",
			Help:      "Notification requests, by result.",
		}, []string{"result"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shift_assigner",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of RunBatch invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	r.registry.MustRegister(
		r.shiftsProcessed,
		r.slotsFilled,
		r.rejections,
		r.notifications,
		r.batchDuration,
	)
	return r
}

// Registry exposes the collectors for an HTTP handler
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ShiftProcessed(outcome string) {
	if r == nil {
		return
	}
	r.shiftsProcessed.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SlotFilled(pass string) {
	if r == nil {
		return
	}
	r.slotsFilled.WithLabelValues(pass).Inc()
}

func (r *Recorder) CandidateRejected(reason string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) Notification(result string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(result).Inc()
}

func (r *Recorder) BatchFinished(d time.Duration) {
	if r == nil {
		return
	}
	r.batchDuration.Observe(d.Seconds())
}

// Tally buffers the per-shift counts taken inside a transaction. The engine applies it
// to the recorder only after the transaction commits.
type Tally struct {
	slots         map[string]int
	rejections    map[string]int
	notifications map[string]int
}

func NewTally() *Tally {
	return &Tally{
		slots:         make(map[string]int),
		rejections:    make(map[string]int),
		notifications: make(map[string]int),
	}
}

func (t *Tally) SlotFilled(pass string)         { t.slots[pass]++ }
func (t *Tally) CandidateRejected(reason string) { t.rejections[reason]++ }
func (t *Tally) Notification(result string)      { t.notifications[result]++ }

// Apply adds a committed tally to the collectors
func (r *Recorder) Apply(t *Tally) {
	if r == nil || t == nil {
		return
	}
	for pass, n := range t.slots {
		r.slotsFilled.WithLabelValues(pass).Add(float64(n))
	}
	for reason, n := range t.rejections {
		r.rejections.WithLabelValues(reason).Add(float64(n))
	}
	for result, n := range t.notifications {
		r.notifications.WithLabelValues(result).Add(float64(n))
	}
}
