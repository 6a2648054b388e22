package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/pkg/core/services"
	"github.com/ppamtools/shift-assigner/pkg/metrics"
)

// scheduleLoop runs a batch at every occurrence of rule until ctx is done or the rule is exhausted
type scheduleLoop struct {
	rule   *rrule.RRule
	now    func() time.Time
	wait   func(time.Duration) <-chan time.Time
	run    func(ctx context.Context)
	logger *zap.Logger
}

func (l *scheduleLoop) Run(ctx context.Context) error {
	for {
		next := l.rule.After(l.now(), false)
		if next.IsZero() {
			l.logger.Info("Schedule has no further occurrences")
			return nil
		}
		l.logger.Info("Next batch scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			return nil
		case <-l.wait(next.Sub(l.now())):
		}
		l.run(ctx)
	}
}

func newOpsRouter(recorder *metrics.Recorder) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))

	return router
}

// DaemonCmd creates the daemon command
func DaemonCmd(app *AppContext) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run batches on the configured bot.schedule and serve metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Cfg.Bot.Schedule == "" {
				return fmt.Errorf("bot.schedule is required to run the daemon")
			}
			rule, err := rrule.StrToRRule(app.Cfg.Bot.Schedule)
			if err != nil {
				return fmt.Errorf("invalid rrule in bot.schedule: %w", err)
			}

			ctx, stop := signal.NotifyContext(app.Ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              metricsAddr,
				Handler:           newOpsRouter(app.Metrics),
				ReadHeaderTimeout: 15 * time.Second,
			}
			go func() {
				app.Logger.Info("Serving metrics", zap.String("addr", metricsAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					app.Logger.Error("Metrics server failed", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			loop := &scheduleLoop{
				rule:   rule,
				now:    time.Now,
				wait:   time.After,
				logger: app.Logger,
				run: func(ctx context.Context) {
					res := app.Engine.RunBatch(ctx, services.BatchRequest{})
					app.Logger.Info("Scheduled batch finished",
						zap.String("run_id", res.RunID),
						zap.Bool("ok", res.OK),
						zap.Int("processed", res.Processed),
						zap.Int("failed", res.Failed),
						zap.Int64("duration_ms", res.DurationMS))
				},
			}
			return loop.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Listen address for /metrics and /healthz")
	return cmd
}
