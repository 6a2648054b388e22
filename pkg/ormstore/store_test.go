package ormstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/pkg/core/assigner"
	"github.com/ppamtools/shift-assigner/pkg/core/services"
	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

func id(v int64) *int64 { return &v }

func intp(v int) *int { return &v }

func clock(s string) timeutil.Clock { return timeutil.MustClock(s) }

func date(s string) time.Time {
	d, err := timeutil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

var now = time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DialectSQLite, filepath.Join(t.TempDir(), "bot.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.AutoMigrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, values ...any) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, s.db.Create(v).Error)
	}
}

// seedPoint creates point 1 (Mondays 07:00-12:00, min 2, max 2) and open shift 10 on Monday 2025-01-06 08:00-09:00
func seedPoint(t *testing.T, s *Store) {
	seed(t, s,
		&Point{
			ID:            1,
			Name:          "Plaza",
			MinPublishers: intp(2),
			MaxPublishers: intp(2),
			Windows:       []PointWindow{{Weekday: int(time.Monday), Start: clock("07:00"), End: clock("12:00")}},
		},
		&Shift{ID: 10, PointID: 1, Date: date("2025-01-06"), Start: clock("08:00"), End: clock("09:00")},
	)
}

func mondayRequest(reqID, publisherID int64, pointID *int64, status db.RequestStatus) *Request {
	return &Request{
		ID:          reqID,
		PointID:     pointID,
		PublisherID: id(publisherID),
		Weekday:     int(time.Monday),
		Start:       clock("07:00"),
		End:         clock("10:00"),
		Status:      string(status),
	}
}

func newEngine(t *testing.T, s *Store) *services.Engine {
	t.Helper()
	e, err := services.NewEngine(s, assigner.DefaultConfig(), zap.NewNop(),
		services.WithClock(func() time.Time { return now }),
		services.WithPipeline(t.TempDir(), "status.json"))
	require.NoError(t, err)
	return e
}

func loadShift(t *testing.T, s *Store, shiftID int64) *db.Shift {
	t.Helper()
	var m Shift
	require.NoError(t, s.db.Where("id = ?", shiftID).Take(&m).Error)
	return m.toDomain()
}

func TestStore_LoadShiftForUpdate(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		shift, point, err := tx.LoadShiftForUpdate(ctx, 10)
		require.NoError(t, err)

		assert.Equal(t, date("2025-01-06"), shift.Date)
		assert.Equal(t, clock("08:00"), shift.Start)
		assert.Equal(t, clock("09:00"), shift.End)
		assert.Empty(t, shift.Occupants())
		assert.Equal(t, 2, point.EffectiveMax())
		assert.Equal(t, db.Window{Start: clock("07:00"), End: clock("12:00")}, point.Windows[time.Monday])

		_, _, err = tx.LoadShiftForUpdate(ctx, 999)
		assert.True(t, errors.Is(err, db.ErrNotFound))
		return nil
	})
	require.NoError(t, err)
}

func TestStore_WriteSlotRefusesTakenSlot(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		shift, _, err := tx.LoadShiftForUpdate(ctx, 10)
		require.NoError(t, err)

		ok, err := tx.WriteSlot(ctx, shift, 7, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		// another writer fills slot 2 behind our back
		gtx := tx.(*Tx).db
		require.NoError(t, gtx.Model(&Shift{}).Where("id = ?", 10).Update("publicador2_id", 5).Error)

		ok, err = tx.WriteSlot(ctx, shift, 8, 2)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, db.ErrSlotTaken))
		assert.Equal(t, []int64{7}, shift.Occupants())

		ok, err = tx.WriteSlot(ctx, shift, 7, 2)
		assert.NoError(t, err)
		assert.False(t, ok, "duplicates are refused without a write")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 5}, loadShift(t, s, 10).Occupants())
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		shift, _, err := tx.LoadShiftForUpdate(ctx, 10)
		require.NoError(t, err)
		_, err = tx.WriteSlot(ctx, shift, 7, 2)
		require.NoError(t, err)
		return errors.New("boom")
	})

	require.EqualError(t, err, "boom")
	assert.Empty(t, loadShift(t, s, 10).Occupants())
}

func TestStore_NotificationLookupFailureKeepsTransaction(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)
	require.NoError(t, s.db.Migrator().DropTable(&Notification{}))

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		shift, _, err := tx.LoadShiftForUpdate(ctx, 10)
		require.NoError(t, err)

		_, err = tx.RecentNotificationExists(ctx, 10, 7, db.NotificationKindCovered, now)
		require.Error(t, err)

		ok, err := tx.WriteSlot(ctx, shift, 7, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		return tx.SetShiftStatus(ctx, 10, db.StatusPending)
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{7}, loadShift(t, s, 10).Occupants())
}

func TestStore_RequestQueries(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)
	low := mondayRequest(1, 7, id(1), db.RequestApproved)
	high := mondayRequest(2, 8, id(1), db.RequestApproved)
	high.Priority = 5
	orphan := mondayRequest(3, 0, id(1), db.RequestApproved)
	orphan.PublisherID = nil
	pending := mondayRequest(4, 9, id(1), db.RequestPending)
	general := mondayRequest(5, 6, nil, db.RequestApproved)
	elsewhere := mondayRequest(6, 5, id(2), db.RequestApproved)
	tuesday := mondayRequest(7, 4, id(1), db.RequestApproved)
	tuesday.Weekday = int(time.Tuesday)
	seed(t, s, low, high, orphan, pending, general, elsewhere, tuesday)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		approved, err := tx.ApprovedRequests(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 1, 7}, requestIDs(approved))

		pendingReqs, err := tx.PendingRequests(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{4}, requestIDs(pendingReqs))

		covering, err := tx.CoveringRequests(ctx, date("2025-01-06"), clock("08:00"), clock("09:00"))
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 1, 4, 5, 6}, requestIDs(covering), "requests at other points still cover the slot")

		require.NoError(t, tx.ApproveRequest(ctx, 4))
		assert.True(t, errors.Is(tx.ApproveRequest(ctx, 999), db.ErrNotFound))

		mine, err := tx.RequestsForPublisher(ctx, 8)
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, requestIDs(mine))

		requested, err := tx.PreviouslyRequestedPoint(ctx, 6, 1)
		require.NoError(t, err)
		assert.False(t, requested, "general requests do not name the point")
		return nil
	})
	require.NoError(t, err)

	var approvedReq Request
	require.NoError(t, s.db.Where("id = ?", 4).Take(&approvedReq).Error)
	assert.Equal(t, string(db.RequestApproved), approvedReq.Status)
	assert.NotNil(t, approvedReq.ProcessedAt)
}

func requestIDs(reqs []db.ShiftRequest) []int64 {
	ids := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestStore_ConflictQueries(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)
	seed(t, s,
		&Publisher{ID: 7, FirstName: "Ana", LanguageID: id(2)},
		&Publisher{ID: 8, FirstName: "Luis"},
		&Absence{ID: 1, PublisherID: 7, From: date("2025-01-05"), To: date("2025-01-06"), Reason: "viaje"},
		&Shift{ID: 11, PointID: 1, Date: date("2025-01-06"), Start: clock("08:30"), End: clock("09:30"), CaptainID: id(8)},
		&Shift{ID: 12, PointID: 1, Date: date("2024-12-20"), Start: clock("08:00"), End: clock("09:00"), Publisher3ID: id(8)},
		&Shift{ID: 13, PointID: 1, Date: date("2024-10-01"), Start: clock("08:00"), End: clock("09:00"), Publisher1ID: id(8)},
		&Preference{PublisherID: 8, PointID: 1, Level: string(db.PreferencePreferred)},
	)
	require.NoError(t, s.db.Model(&Point{}).Where("id = ?", 1).Update("idioma_id", 1).Error)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		absent, err := tx.HasAbsence(ctx, 7, date("2025-01-06"))
		require.NoError(t, err)
		assert.True(t, absent)
		absent, err = tx.HasAbsence(ctx, 7, date("2025-01-07"))
		require.NoError(t, err)
		assert.False(t, absent)

		sameDay, err := tx.SameDayAssignments(ctx, 8, date("2025-01-06"), 10)
		require.NoError(t, err)
		require.Len(t, sameDay, 1)
		assert.Equal(t, int64(11), sameDay[0].ID)

		recent, err := tx.RecentAssignmentCount(ctx, 8, date("2024-12-08"))
		require.NoError(t, err)
		assert.Equal(t, 2, recent)

		pref, err := tx.PointPreference(ctx, 8, 1)
		require.NoError(t, err)
		assert.Equal(t, db.PreferencePreferred, pref)
		pref, err = tx.PointPreference(ctx, 7, 1)
		require.NoError(t, err)
		assert.Equal(t, db.PreferenceUnknown, pref)

		compatible, err := tx.LanguageCompatible(ctx, 7, 1)
		require.NoError(t, err)
		assert.False(t, compatible)
		compatible, err = tx.LanguageCompatible(ctx, 8, 1)
		require.NoError(t, err)
		assert.True(t, compatible, "unknown language is compatible")

		ids, err := tx.AllPublisherIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{7, 8}, ids)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_PreferenceTableIsOptional(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)
	require.NoError(t, s.db.Migrator().DropTable(&Preference{}))

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		pref, err := tx.PointPreference(ctx, 7, 1)
		require.NoError(t, err)
		assert.Equal(t, db.PreferenceUnknown, pref)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ListShiftIDs(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)
	seed(t, s,
		&Shift{ID: 11, PointID: 1, Date: date("2025-01-06"), Start: clock("07:00"), End: clock("08:00")},
		&Shift{ID: 12, PointID: 1, Date: date("2025-01-05"), Start: clock("10:00"), End: clock("11:00")},
		&Shift{ID: 13, PointID: 1, Date: date("2025-02-01"), Start: clock("10:00"), End: clock("11:00")},
	)

	ids, err := s.ListShiftIDs(context.Background(), date("2025-01-05"), date("2025-01-19"), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 11, 10}, ids)

	ids, err = s.ListShiftIDs(context.Background(), date("2025-01-05"), date("2025-01-19"), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 11}, ids)
}

func TestEngineOnSQLite_AssignsAndNotifies(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)
	seed(t, s,
		&Publisher{ID: 7, FirstName: "Ana"},
		&Publisher{ID: 8, FirstName: "Luis"},
		mondayRequest(1, 8, id(1), db.RequestApproved),
		mondayRequest(2, 7, nil, db.RequestApproved),
	)
	engine := newEngine(t, s)

	res := engine.AssignShift(context.Background(), services.ShiftID(10))

	require.True(t, res.OK, res.Error)
	assert.Equal(t, []int64{8, 7}, res.Assigned)
	assert.Equal(t, db.StatusAssigned, res.Status)

	shift := loadShift(t, s, 10)
	assert.Equal(t, []int64{8, 7}, shift.Occupants())
	assert.Equal(t, db.StatusAssigned, shift.Status)

	var notifications []Notification
	require.NoError(t, s.db.Order("id").Find(&notifications).Error)
	require.Len(t, notifications, 2)
	assert.Equal(t, "Has sido asignado al turno #10", notifications[0].Message)
	assert.JSONEq(t, `{"turno":10}`, notifications[0].Payload)

	again := engine.AssignShift(context.Background(), services.ShiftID(10))
	require.True(t, again.OK)
	assert.Empty(t, again.Assigned)
	assert.Equal(t, services.MessageAlreadyComplete, again.Message)
}

func TestEngineOnSQLite_PendingAutoApproved(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)
	seed(t, s,
		&Publisher{ID: 9, FirstName: "Eva"},
		mondayRequest(1, 9, id(1), db.RequestPending),
	)

	res := newEngine(t, s).AssignShift(context.Background(), services.ShiftID(10))

	require.True(t, res.OK, res.Error)
	assert.Equal(t, []int64{9}, res.Assigned)
	assert.Equal(t, db.StatusPending, res.Status)

	var req Request
	require.NoError(t, s.db.Where("id = ?", 1).Take(&req).Error)
	assert.Equal(t, string(db.RequestApproved), req.Status)
}

func TestEngineOnSQLite_NotificationFailureKeepsAssignment(t *testing.T) {
	s := newTestStore(t)
	seedPoint(t, s)
	seed(t, s, &Publisher{ID: 7, FirstName: "Ana"})
	require.NoError(t, s.db.Migrator().DropTable(&Notification{}))

	res := newEngine(t, s).AssignShift(context.Background(), services.ShiftID(10))

	require.True(t, res.OK, res.Error)
	assert.Equal(t, []int64{7}, res.Assigned)
	assert.Equal(t, []int64{7}, loadShift(t, s, 10).Occupants())
	assert.Contains(t, res.PipelineText, "Error creando notificacion")
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open("oracle", "", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database dialect")
}
