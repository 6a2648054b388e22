package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/pkg/core/assigner"
	"github.com/ppamtools/shift-assigner/pkg/core/pipeline"
	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
	"github.com/ppamtools/shift-assigner/pkg/metrics"
)

// Messages surfaced to callers
const (
	MessageNotFound        = "Turno no encontrado"
	MessageAlreadyComplete = "Turno ya completo"
)

// Shift outcomes recorded in metrics
const (
	outcomeFilled   = "filled"
	outcomePartial  = "partial"
	outcomeComplete = "complete"
	outcomeNotFound = "not_found"
	outcomeFailed   = "failed"
)

// ShiftRef identifies the shift to assign. Build one with ShiftID or FromShift.
type ShiftRef struct {
	id int64
}

// ShiftID refers to a shift by id
func ShiftID(id int64) ShiftRef {
	return ShiftRef{id: id}
}

// FromShift refers to a previously loaded shift. Only its id is kept: the shift
// is always reloaded under lock before assignment.
func FromShift(shift *db.Shift) ShiftRef {
	if shift == nil {
		return ShiftRef{}
	}
	return ShiftRef{id: shift.ID}
}

// ID is the resolved shift id
func (r ShiftRef) ID() int64 {
	return r.id
}

// Result is the outcome of assigning one shift
type Result struct {
	OK           bool           `json:"ok"`
	ShiftID      int64          `json:"turno_id"`
	Assigned     []int64        `json:"assigned"`
	Status       db.ShiftStatus `json:"estado,omitempty"`
	Message      string         `json:"message,omitempty"`
	Error        string         `json:"error,omitempty"`
	PipelineText string         `json:"pipeline_text"`
	PipelineFile string         `json:"pipeline_file"`
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// AssignShift fills the open slots of one shift in its own transaction and flushes a
// pipeline for the invocation. Failures are reported in the Result, never returned.
func (e *Engine) AssignShift(ctx context.Context, ref ShiftRef) Result {
	plog := e.newPipeline()
	res := e.assignOne(ctx, ref.ID(), plog)

	e.flush(plog)
	res.PipelineText = plog.Text()
	res.PipelineFile = plog.File()
	return res
}

// assignOne runs the Started → Locked → Filling → Finalizing → Committed state machine,
// rolling back on any error or panic after the lock is taken
func (e *Engine) assignOne(ctx context.Context, shiftID int64, plog *pipeline.Log) Result {
	res := Result{ShiftID: shiftID, Assigned: []int64{}}
	logger := e.logger.With(zap.Int64("shift_id", shiftID), zap.String("run_id", plog.RunID()))

	logger.Debug("Assignment started")
	plog.Linef("Iniciando turno #%d", shiftID)

	var outcome string
	// counts taken inside the transaction reach the recorder only once it commits
	tally := metrics.NewTally()
	fill := e.assigner.CountingInto(tally)
	notifier := e.notifier.CountingInto(tally)

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &panicError{value: r, stack: debug.Stack()}
			}
		}()

		shift, point, err := tx.LoadShiftForUpdate(ctx, shiftID)
		if err != nil {
			return err
		}
		logger.Debug("Shift locked", zap.Int64("point_id", shift.PointID))
		plog.Linef("Turno #%d bloqueado: punto %d, %s %s-%s",
			shift.ID, shift.PointID, shift.Date.Format("2006-01-02"), shift.Start, shift.End)
		e.checkSchedule(plog, shift, point)

		maxSlots := point.EffectiveMax()
		occupied := len(shift.Occupants())
		plog.Linef("Turno #%d: %d/%d ocupados", shift.ID, occupied, maxSlots)

		if occupied >= maxSlots {
			plog.Line(MessageAlreadyComplete)
			res.Message = MessageAlreadyComplete
			res.Status = deriveStatus(occupied, point.EffectiveMin())
			outcome = outcomeComplete
			logger.Debug("Shift already complete")
			return nil
		}

		logger.Debug("Filling shift", zap.Int("occupied", occupied), zap.Int("max_slots", maxSlots))
		placements, err := fill.Fill(ctx, tx, shift, maxSlots, plog)
		if err != nil {
			return err
		}

		status := deriveStatus(len(shift.Occupants()), point.EffectiveMin())
		if err := tx.SetShiftStatus(ctx, shift.ID, status); err != nil {
			return fmt.Errorf("failed to set status of shift %d: %w", shift.ID, err)
		}
		logger.Debug("Shift finalizing", zap.String("status", string(status)), zap.Int("assigned", len(placements)))

		for _, p := range placements {
			notifier.RequestNotification(ctx, tx, plog, shift.ID, p.PublisherID,
				db.NotificationKindCovered, assigner.CoveredMessage(shift.ID))
			res.Assigned = append(res.Assigned, p.PublisherID)
		}
		res.Status = status

		outcome = outcomePartial
		if status == db.StatusAssigned {
			outcome = outcomeFilled
		}
		return nil
	})

	if err == nil {
		res.OK = true
		e.metrics.Apply(tally)
		e.metrics.ShiftProcessed(outcome)
		plog.Linef("Finalizado turno %d. Usuarios asignados: %v", shiftID, res.Assigned)
		logger.Debug("Assignment committed", zap.Int64s("assigned", res.Assigned))
		return res
	}

	res.OK = false
	res.Assigned = []int64{}
	res.Status = ""
	res.Message = ""

	if errors.Is(err, db.ErrNotFound) {
		res.Error = MessageNotFound
		plog.Linef("%s: #%d", MessageNotFound, shiftID)
		e.metrics.ShiftProcessed(outcomeNotFound)
		logger.Debug("Shift not found")
		return res
	}

	res.Error = err.Error()
	var pe *panicError
	if errors.As(err, &pe) {
		plog.Linef("EXCEPCIÓN: %s\n%s", pe.Error(), pe.stack)
	} else {
		plog.Linef("EXCEPCIÓN: %s", err.Error())
	}
	plog.Linef("Turno #%d revertido", shiftID)
	e.metrics.ShiftProcessed(outcomeFailed)
	logger.Error("Assignment rolled back", zap.Error(err))
	return res
}

func (e *Engine) checkSchedule(plog *pipeline.Log, shift *db.Shift, point *db.PreachingPoint) {
	open, err := point.OpenOn(shift.Date)
	if err != nil {
		plog.Linef("Aviso: no se pudo evaluar el horario del punto %d: %v", point.ID, err)
		return
	}
	if !open {
		plog.Linef("Aviso: el punto %d no abre el %s", point.ID, shift.Date.Format("2006-01-02"))
		return
	}
	window, _ := point.WindowOn(shift.Date)
	if !timeutil.Contains(window.Start, window.End, shift.Start, shift.End) {
		plog.Linef("Aviso: el turno %s-%s queda fuera del horario del punto (%s-%s)",
			shift.Start, shift.End, window.Start, window.End)
	}
}

func deriveStatus(occupied, minPublishers int) db.ShiftStatus {
	if occupied >= minPublishers {
		return db.StatusAssigned
	}
	return db.StatusPending
}
