package assigner

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ppamtools/shift-assigner/pkg/db"
	"github.com/ppamtools/shift-assigner/pkg/metrics"
)

// Counter receives the counts taken during a fill. The engine passes a metrics.Tally so
// nothing reaches the recorder before the transaction commits.
type Counter interface {
	SlotFilled(pass string)
	CandidateRejected(reason string)
	Notification(result string)
}

func orNop(c Counter) Counter {
	if c == nil {
		return (*metrics.Recorder)(nil)
	}
	return c
}

// Pass identifies which stage of the fill placed a publisher
type Pass string

const (
	PassApproved Pass = "approved"
	PassPending  Pass = "pending"
	PassPool     Pass = "pool"
)

// Narrator receives one line per decision taken during a fill
type Narrator interface {
	Line(text string)
}

// Placement records a publisher written into the shift
type Placement struct {
	PublisherID int64
	Pass        Pass
	Score       *Score
}

// Assigner fills the empty slots of a shift in three ordered passes:
// approved requests, pending requests, then a scored pool
type Assigner struct {
	cfg     Config
	scorer  *Scorer
	metrics Counter
}

// New creates an assigner. today anchors the fairness window.
func New(cfg Config, today func() time.Time, counter Counter) *Assigner {
	return &Assigner{
		cfg:     cfg,
		scorer:  NewScorer(cfg, today),
		metrics: orNop(counter),
	}
}

// CountingInto returns a copy of the assigner that counts into c
func (a *Assigner) CountingInto(c Counter) *Assigner {
	cp := *a
	cp.metrics = orNop(c)
	return &cp
}

// Scorer exposes the scorer used by the pending and pool passes
func (a *Assigner) Scorer() *Scorer {
	return a.scorer
}

// fill tracks the mutable state of one run over one shift
type fill struct {
	tx         db.Tx
	shift      *db.Shift
	maxSlots   int
	log        Narrator
	placements []Placement
}

func (f *fill) full() bool {
	return len(f.shift.Occupants()) >= f.maxSlots
}

func (f *fill) logf(format string, args ...any) {
	f.log.Line(fmt.Sprintf(format, args...))
}

// Fill runs the three passes until the shift is full or every candidate is exhausted.
// Nothing is forced: a shift that runs out of candidates is left partially filled.
func (a *Assigner) Fill(ctx context.Context, tx db.Tx, shift *db.Shift, maxSlots int, log Narrator) ([]Placement, error) {
	f := &fill{tx: tx, shift: shift, maxSlots: maxSlots, log: log}

	passes := []struct {
		title string
		run   func(context.Context, *fill) error
	}{
		{"Paso 1: solicitudes aprobadas", a.approvedPass},
		{"Paso 2: procesando solicitudes pendientes (auto-approve si aplica)", a.pendingPass},
		{"Paso 3: habilitados + puntaje de candidatos por disponibilidad", a.poolPass},
	}

	for _, pass := range passes {
		if f.full() {
			break
		}
		f.log.Line(pass.title)
		if err := pass.run(ctx, f); err != nil {
			return f.placements, err
		}
	}

	return f.placements, nil
}

// place writes the publisher and records the placement. Returns false if the slot write was refused.
func (a *Assigner) place(ctx context.Context, f *fill, publisherID int64, pass Pass, score *Score) (bool, error) {
	ok, err := f.tx.WriteSlot(ctx, f.shift, publisherID, f.maxSlots)
	if err != nil {
		return false, fmt.Errorf("failed to write slot for publisher %d on shift %d: %w", publisherID, f.shift.ID, err)
	}
	if !ok {
		f.logf("Usuario %d no pudo ubicarse en el turno %d -> skip", publisherID, f.shift.ID)
		return false, nil
	}
	f.placements = append(f.placements, Placement{PublisherID: publisherID, Pass: pass, Score: score})
	a.metrics.SlotFilled(string(pass))
	return true, nil
}

func (a *Assigner) reject(f *fill, format string, publisherID int64, reason string) {
	f.logf(format, publisherID, reason)
	a.metrics.CandidateRejected(reason)
}

func (a *Assigner) approvedPass(ctx context.Context, f *fill) error {
	requests, err := f.tx.ApprovedRequests(ctx, f.shift.PointID)
	if err != nil {
		return fmt.Errorf("failed to load approved requests for point %d: %w", f.shift.PointID, err)
	}

	checker := NewChecker(f.tx)
	for _, req := range requests {
		if f.full() {
			f.logf("Turno completo (%d/%d)", len(f.shift.Occupants()), f.maxSlots)
			break
		}
		if req.PublisherID == nil {
			continue
		}
		uid := *req.PublisherID

		if f.shift.HasOccupant(uid) {
			f.logf("Usuario %d ya en turno -> skip", uid)
			continue
		}
		if !req.Covers(f.shift.PointID, f.shift.Date, f.shift.Start, f.shift.End) {
			f.logf("Solicitud aprobada #%d de usuario %d no cubre la franja -> skip", req.ID, uid)
			continue
		}

		reason, err := checker.Conflict(ctx, uid, f.shift)
		if err != nil {
			return err
		}
		if reason != "" {
			a.reject(f, "Aprobado usuario %d descartado: %s", uid, reason)
			continue
		}

		placed, err := a.place(ctx, f, uid, PassApproved, nil)
		if err != nil {
			return err
		}
		if placed {
			f.logf("Asignado aprobado: Usuario %d", uid)
		}
	}
	return nil
}

func (a *Assigner) pendingPass(ctx context.Context, f *fill) error {
	requests, err := f.tx.PendingRequests(ctx, f.shift.PointID)
	if err != nil {
		return fmt.Errorf("failed to load pending requests for point %d: %w", f.shift.PointID, err)
	}

	for _, req := range requests {
		if f.full() {
			f.logf("Turno completo (%d/%d)", len(f.shift.Occupants()), f.maxSlots)
			break
		}
		if req.PublisherID == nil {
			f.logf("Solicitud pendiente #%d sin publicador -> skip", req.ID)
			continue
		}
		uid := *req.PublisherID

		if f.shift.HasOccupant(uid) {
			f.logf("Usuario %d ya en turno -> skip", uid)
			continue
		}

		score, err := a.scorer.Score(ctx, f.tx, uid, f.shift)
		if err != nil {
			return err
		}
		if !score.Eligible {
			a.reject(f, "Pendiente usuario nro. %d descartado: %s", uid, score.Reason)
			continue
		}

		if a.cfg.AutoApprovePending {
			if err := f.tx.ApproveRequest(ctx, req.ID); err != nil {
				return fmt.Errorf("failed to approve request %d: %w", req.ID, err)
			}
		}

		placed, err := a.place(ctx, f, uid, PassPending, &score)
		if err != nil {
			return err
		}
		if placed {
			if a.cfg.AutoApprovePending {
				f.logf("Asignado pendiente (auto) user %d, solicitud #%d aprobada", uid, req.ID)
			} else {
				f.logf("Asignado pendiente user %d", uid)
			}
		}
	}
	return nil
}

func (a *Assigner) poolPass(ctx context.Context, f *fill) error {
	pool, err := a.candidatePool(ctx, f)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		f.log.Line("No hay candidatos por disponibilidades para la franja")
		return nil
	}

	scored := make([]Score, 0, len(pool))
	for _, uid := range pool {
		if f.shift.HasOccupant(uid) {
			f.logf("Usuario %d ya en turno -> skip", uid)
			continue
		}
		score, err := a.scorer.Score(ctx, f.tx, uid, f.shift)
		if err != nil {
			return err
		}
		if !score.Eligible {
			a.reject(f, "Candidato nro %d descartado: %s", uid, score.Reason)
			continue
		}
		scored = append(scored, score)
	}

	RankScores(scored)

	for i := range scored {
		if f.full() {
			f.logf("Turno completo (%d/%d)", len(f.shift.Occupants()), f.maxSlots)
			break
		}
		score := scored[i]
		placed, err := a.place(ctx, f, score.PublisherID, PassPool, &score)
		if err != nil {
			return err
		}
		if placed {
			f.logf("Asignado por scoring user %d (score %g)", score.PublisherID, score.Total)
		}
	}
	return nil
}

// candidatePool gathers publishers whose standing requests cover the shift.
// With no such requests, every publisher without an absence or overlap that day is used.
func (a *Assigner) candidatePool(ctx context.Context, f *fill) ([]int64, error) {
	requests, err := f.tx.CoveringRequests(ctx, f.shift.Date, f.shift.Start, f.shift.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load covering requests: %w", err)
	}

	seen := make(map[int64]bool)
	var pool []int64
	for _, req := range requests {
		if req.PublisherID == nil || seen[*req.PublisherID] {
			continue
		}
		seen[*req.PublisherID] = true
		pool = append(pool, *req.PublisherID)
	}
	if len(pool) > 0 {
		return pool, nil
	}

	f.log.Line("Sin solicitudes que cubran la franja: evaluando todos los publicadores")
	all, err := f.tx.AllPublisherIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load publishers: %w", err)
	}

	checker := NewChecker(f.tx)
	for _, uid := range all {
		if f.shift.HasOccupant(uid) {
			continue
		}
		reason, err := checker.Conflict(ctx, uid, f.shift)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			a.reject(f, "Candidato %d excluido del pool: %s", uid, reason)
			continue
		}
		pool = append(pool, uid)
	}
	return pool, nil
}

// RankScores orders scores by total descending, breaking ties by ascending publisher id
func RankScores(scores []Score) {
	slices.SortFunc(scores, func(a, b Score) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.PublisherID, b.PublisherID)
	})
}
