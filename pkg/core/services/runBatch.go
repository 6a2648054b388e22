package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/pkg/core/pipeline"
	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
)

// BatchRequest selects the shifts a batch processes.
// From and To, when both set, take precedence over DaysAhead.
type BatchRequest struct {
	From      *time.Time
	To        *time.Time
	DaysAhead int // <= 0 uses the configured daysAhead
	MaxShifts int // <= 0 uses the configured maxAssignPerRun
}

// BatchResult aggregates the per-shift results of one batch
type BatchResult struct {
	OK           bool     `json:"ok"`
	RunID        string   `json:"run_id"`
	From         string   `json:"fecha_desde"`
	To           string   `json:"fecha_hasta"`
	Processed    int      `json:"processed"`
	Failed       int      `json:"failed"`
	Results      []Result `json:"results"`
	Error        string   `json:"error,omitempty"`
	PipelineText string   `json:"pipeline_text"`
	PipelineFile string   `json:"pipeline_file"`
	DurationMS   int64    `json:"duracion_ms"`
}

// resolveRange returns the inclusive date range of the batch
func (e *Engine) resolveRange(req BatchRequest) (time.Time, time.Time, error) {
	if req.From != nil && req.To != nil {
		from, to := timeutil.DateOnly(*req.From), timeutil.DateOnly(*req.To)
		if to.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid range: %s is after %s",
				from.Format("2006-01-02"), to.Format("2006-01-02"))
		}
		return from, to, nil
	}
	if req.From != nil || req.To != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("both from and to are required for a date range")
	}

	days := req.DaysAhead
	if days <= 0 {
		days = e.cfg.DaysAhead
	}
	today := timeutil.DateOnly(e.now())
	return today, today.AddDate(0, 0, days), nil
}

// RunBatch assigns every shift in the range sequentially, one transaction per shift,
// and writes a single pipeline for the whole batch. A failing shift never stops the
// batch; cancelling ctx stops it between shifts.
func (e *Engine) RunBatch(ctx context.Context, req BatchRequest) (res BatchResult) {
	started := e.now()
	plog := e.newPipeline()
	res = BatchResult{RunID: plog.RunID(), Results: []Result{}}
	logger := e.logger.With(zap.String("run_id", plog.RunID()))

	defer func() {
		elapsed := e.now().Sub(started)
		res.DurationMS = elapsed.Milliseconds()
		e.metrics.BatchFinished(elapsed)
	}()

	from, to, err := e.resolveRange(req)
	if err != nil {
		plog.Linef("EXCEPCIÓN: %s", err.Error())
		res.Error = err.Error()
		e.finishBatch(plog, &res)
		return res
	}
	res.From = from.Format("2006-01-02")
	res.To = to.Format("2006-01-02")

	limit := req.MaxShifts
	if limit <= 0 {
		limit = e.cfg.MaxAssignPerRun
	}

	logger.Debug("Starting batch",
		zap.String("from", res.From),
		zap.String("to", res.To),
		zap.Int("max_shifts", limit))
	plog.Linef("Lote %s: turnos del %s al %s (max %d)", plog.RunID(), res.From, res.To, limit)

	ids, err := e.store.ListShiftIDs(ctx, from, to, limit)
	if err != nil {
		err = fmt.Errorf("failed to list shifts: %w", err)
		plog.Linef("EXCEPCIÓN: %s", err.Error())
		res.Error = err.Error()
		logger.Error("Batch aborted", zap.Error(err))
		e.finishBatch(plog, &res)
		return res
	}
	logger.Debug("Found shifts", zap.Int("count", len(ids)))
	plog.Linef("%d turnos a procesar", len(ids))

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			plog.Linef("Lote cancelado: %d turnos sin procesar", len(ids)-i)
			res.Error = err.Error()
			logger.Warn("Batch cancelled", zap.Int("remaining", len(ids)-i), zap.Error(err))
			break
		}

		mark := plog.Mark()
		shiftResult := e.assignOne(ctx, id, plog)
		shiftResult.PipelineText = plog.TextSince(mark)
		res.Results = append(res.Results, shiftResult)
		res.Processed++
		if !shiftResult.OK {
			res.Failed++
		}
	}

	res.OK = res.Error == ""
	plog.Linef("Lote finalizado: %d procesados, %d con error", res.Processed, res.Failed)
	logger.Info("Batch finished",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed))

	e.finishBatch(plog, &res)
	return res
}

func (e *Engine) finishBatch(plog *pipeline.Log, res *BatchResult) {
	e.flush(plog)
	res.PipelineText = plog.Text()
	res.PipelineFile = plog.File()
	for i := range res.Results {
		res.Results[i].PipelineFile = res.PipelineFile
	}
}
