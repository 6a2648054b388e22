package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/internal/config"
	"github.com/ppamtools/shift-assigner/pkg/core/services"
	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
	"github.com/ppamtools/shift-assigner/pkg/db/dbtest"
	"github.com/ppamtools/shift-assigner/pkg/metrics"
)

var now = time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

func ptr(v int64) *int64 { return &v }

// newTestStore has point 1 open Mondays 07:00-12:00 (two slots) with shift 10 on 2025-01-06 08:00-09:00
// and publisher 7 holding a standing Monday request
func newTestStore() *dbtest.Store {
	maxPubs := 2
	store := dbtest.New().
		AddPoint(db.PreachingPoint{
			ID:   1,
			Name: "Plaza",
			Windows: map[time.Weekday]db.Window{
				time.Monday: {Start: timeutil.MustClock("07:00"), End: timeutil.MustClock("12:00")},
			},
			MaxPublishers: &maxPubs,
		}).
		AddShift(db.Shift{
			ID:      10,
			PointID: 1,
			Date:    time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
			Start:   timeutil.MustClock("08:00"),
			End:     timeutil.MustClock("09:00"),
		}).
		AddPublishers(7)
	store.Requests = []db.ShiftRequest{{
		ID:          1,
		PublisherID: ptr(7),
		Weekday:     time.Monday,
		Start:       timeutil.MustClock("07:00"),
		End:         timeutil.MustClock("10:00"),
		Status:      db.RequestApproved,
	}}
	return store
}

func newTestApp(t *testing.T, store db.Store) *AppContext {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Dir = t.TempDir()

	app, err := newAppContextWithStore(context.Background(), &cfg, store, zap.NewNop(),
		services.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return app
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), err
}

func TestAssignShiftCmd_JSON(t *testing.T) {
	store := newTestStore()
	app := newTestApp(t, store)

	out, err := execute(AssignShiftCmd(app), "10", "--json")
	require.NoError(t, err)

	var res services.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.OK)
	assert.Equal(t, int64(10), res.ShiftID)
	assert.Equal(t, []int64{7}, res.Assigned)
	assert.Equal(t, db.StatusAssigned, res.Status)
	assert.NotEmpty(t, res.PipelineFile)
	shift := store.Shift(10)
	assert.Equal(t, []*int64{ptr(7), nil, nil, nil}, shift.Slots[:])
}

func TestAssignShiftCmd_NotFoundFails(t *testing.T) {
	app := newTestApp(t, newTestStore())

	out, err := execute(AssignShiftCmd(app), "999", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), services.MessageNotFound)
	assert.Contains(t, out, `"ok": false`)
}

func TestAssignShiftCmd_InvalidID(t *testing.T) {
	app := newTestApp(t, newTestStore())

	_, err := execute(AssignShiftCmd(app), "diez")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shift_id must be a number")
}

func TestRunBatchCmd_Range(t *testing.T) {
	app := newTestApp(t, newTestStore())

	out, err := execute(RunBatchCmd(app), "--from", "2025-01-06", "--to", "2025-01-06", "--json")
	require.NoError(t, err)

	var res services.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.OK)
	assert.Equal(t, "2025-01-06", res.From)
	require.Len(t, res.Results, 1)
	assert.Equal(t, []int64{7}, res.Results[0].Assigned)
}

func TestRunBatchCmd_DefaultHorizon(t *testing.T) {
	app := newTestApp(t, newTestStore())

	out, err := execute(RunBatchCmd(app), "--days-ahead", "3", "--max-shifts", "5", "--json")
	require.NoError(t, err)

	var res services.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "2025-01-05", res.From)
	assert.Equal(t, "2025-01-08", res.To)
	assert.Equal(t, 1, res.Processed)
}

func TestBatchFlags_Validation(t *testing.T) {
	_, err := batchFlags{from: "2025-01-06"}.request()
	assert.Error(t, err)

	_, err = batchFlags{from: "2025-01-06", to: "2025-01-07", daysAhead: 3}.request()
	assert.Error(t, err)

	_, err = batchFlags{from: "06/01/2025", to: "2025-01-07"}.request()
	assert.Error(t, err)

	req, err := batchFlags{from: "2025-01-06", to: "2025-01-07", maxShifts: 4}.request()
	require.NoError(t, err)
	require.NotNil(t, req.From)
	assert.Equal(t, "2025-01-06", req.From.Format("2006-01-02"))
	assert.Equal(t, "2025-01-07", req.To.Format("2006-01-02"))
	assert.Equal(t, 4, req.MaxShifts)
}

func TestRender_PlainText(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	renderResult(&out, services.Result{OK: true, ShiftID: 10, Assigned: []int64{7, 8}, Status: db.StatusAssigned})
	renderResult(&out, services.Result{OK: true, ShiftID: 11, Message: services.MessageAlreadyComplete})
	renderResult(&out, services.Result{OK: false, ShiftID: 12, Error: services.MessageNotFound})

	assert.Contains(t, out.String(), "✓ Turno #10 asignados [7 8] [asignado]")
	assert.Contains(t, out.String(), "• Turno #11: Turno ya completo")
	assert.Contains(t, out.String(), "✗ Turno #12: Turno no encontrado")

	out.Reset()
	renderBatch(&out, services.BatchResult{RunID: "run-1", From: "2025-01-05", To: "2025-01-19", Processed: 2, Failed: 1})
	assert.Contains(t, out.String(), "Run run-1 (2025-01-05 → 2025-01-19)")
	assert.Contains(t, out.String(), "Processed 2, failed 1")
}

func TestOpsRouter(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.ShiftProcessed("filled")
	router := newOpsRouter(recorder)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shift_assigner_shifts_processed_total{outcome="filled"} 1`)
}

func TestScheduleLoop_RunsEveryOccurrence(t *testing.T) {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   3,
		Dtstart: time.Date(2025, 1, 5, 6, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	current := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	var runs []time.Time
	loop := &scheduleLoop{
		rule: rule,
		now:  func() time.Time { return current },
		wait: func(d time.Duration) <-chan time.Time {
			current = current.Add(d)
			ch := make(chan time.Time, 1)
			ch <- current
			return ch
		},
		run:    func(ctx context.Context) { runs = append(runs, current) },
		logger: zap.NewNop(),
	}

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []time.Time{
		time.Date(2025, 1, 5, 6, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 7, 6, 0, 0, 0, time.UTC),
	}, runs)
}

func TestScheduleLoop_StopsOnCancel(t *testing.T) {
	rule, err := rrule.StrToRRule("FREQ=DAILY;BYHOUR=6;BYMINUTE=0;BYSECOND=0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	loop := &scheduleLoop{
		rule:   rule,
		now:    time.Now,
		wait:   func(time.Duration) <-chan time.Time { return nil },
		run:    func(context.Context) { ran = true },
		logger: zap.NewNop(),
	}

	require.NoError(t, loop.Run(ctx))
	assert.False(t, ran)
}

func TestOpenStoreAndMigrate_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, config.Database{
		Driver: config.DriverGormSQLite,
		DSN:    filepath.Join(t.TempDir(), "ppam.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	applied, err := Migrate(ctx, store, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"automigrate"}, applied)

	ids, err := store.ListShiftIDs(ctx, now, now.AddDate(0, 0, 14), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.Database{Driver: "mysql"}, zap.NewNop())
	assert.Error(t, err)
}

func TestMigrate_UnsupportedStore(t *testing.T) {
	_, err := Migrate(context.Background(), dbtest.New(), zap.NewNop())
	assert.Error(t, err)
}
