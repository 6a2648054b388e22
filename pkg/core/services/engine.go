package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/pkg/core/assigner"
	"github.com/ppamtools/shift-assigner/pkg/core/pipeline"
	"github.com/ppamtools/shift-assigner/pkg/db"
	"github.com/ppamtools/shift-assigner/pkg/metrics"
)

// Engine is the assignment orchestrator. It runs one transaction per shift and never
// caches store data between invocations.
type Engine struct {
	store       db.Store
	cfg         assigner.Config
	logger      *zap.Logger
	now         func() time.Time
	metrics     *metrics.Recorder
	pipelineDir string
	statusFile  string
	newRunID    func() string

	assigner *assigner.Assigner
	notifier *assigner.Notifier
}

// Option customises an Engine
type Option func(*Engine)

// WithClock replaces time.Now, which anchors fairness windows, batch ranges and pipeline timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records engine activity on the given recorder
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = recorder }
}

// WithPipeline sets where pipeline artifacts and the status document are written
func WithPipeline(dir, statusFile string) Option {
	return func(e *Engine) {
		e.pipelineDir = dir
		e.statusFile = statusFile
	}
}

// WithRunIDs replaces the uuid generator used to name runs
func WithRunIDs(newRunID func() string) Option {
	return func(e *Engine) { e.newRunID = newRunID }
}

// NewEngine validates cfg and builds an engine over store
func NewEngine(store db.Store, cfg assigner.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		store:       store,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		pipelineDir: "logs",
		statusFile:  pipeline.DefaultStatusFile,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.assigner = assigner.New(cfg, e.now, e.metrics)
	e.notifier = assigner.NewNotifier(e.now, logger, e.metrics)
	return e, nil
}

// Config returns the validated engine configuration
func (e *Engine) Config() assigner.Config {
	return e.cfg
}

func (e *Engine) newPipeline() *pipeline.Log {
	return pipeline.New(e.pipelineDir, e.statusFile, e.newRunID(), e.now)
}

func (e *Engine) flush(plog *pipeline.Log) {
	if err := plog.Flush(); err != nil {
		e.logger.Warn("Failed to flush pipeline", zap.String("run_id", plog.RunID()), zap.Error(err))
		return
	}
	e.logger.Debug("Pipeline flushed", zap.String("file", plog.File()))
}
