package assigner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/pkg/db"
)

// NotificationDedupWindow suppresses identical notification requests made on retries
const NotificationDedupWindow = time.Hour

// Notifier asks the notification store to notify a publisher about a shift
type Notifier struct {
	now     func() time.Time
	logger  *zap.Logger
	metrics Counter
}

// NewNotifier creates a notifier
func NewNotifier(now func() time.Time, logger *zap.Logger, counter Counter) *Notifier {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{now: now, logger: logger, metrics: orNop(counter)}
}

// CountingInto returns a copy of the notifier that counts into c
func (n *Notifier) CountingInto(c Counter) *Notifier {
	cp := *n
	cp.metrics = orNop(c)
	return &cp
}

// CoveredMessage is the text sent to a publisher newly placed on a shift
func CoveredMessage(shiftID int64) string {
	return fmt.Sprintf("Has sido asignado al turno #%d", shiftID)
}

// RequestNotification records a pending notification unless an identical one was
// requested within the dedup window. Failures are narrated and logged, never returned,
// so they cannot abort the assignment.
func (n *Notifier) RequestNotification(ctx context.Context, store db.NotificationStore, log Narrator, shiftID, publisherID int64, kind, message string) bool {
	now := n.now()

	exists, err := store.RecentNotificationExists(ctx, shiftID, publisherID, kind, now.Add(-NotificationDedupWindow))
	if err != nil {
		n.fail(log, shiftID, publisherID, err)
		return false
	}
	if exists {
		log.Line(fmt.Sprintf("Notificacion para usuario %d tipo %s (turno %d) ya existe -> skip", publisherID, kind, shiftID))
		n.metrics.Notification("duplicate")
		return false
	}

	payload, err := json.Marshal(map[string]int64{"turno": shiftID})
	if err != nil {
		n.fail(log, shiftID, publisherID, err)
		return false
	}

	err = store.CreateNotification(ctx, &db.Notification{
		ShiftID:     shiftID,
		PublisherID: publisherID,
		Kind:        kind,
		Message:     message,
		Payload:     payload,
		Channel:     db.NotificationChannelBoth,
		State:       db.NotificationStatePending,
		CreatedAt:   now,
	})
	if err != nil {
		n.fail(log, shiftID, publisherID, err)
		return false
	}

	log.Line(fmt.Sprintf("Notificacion creada para usuario %d tipo %s (turno %d)", publisherID, kind, shiftID))
	n.metrics.Notification("created")
	return true
}

func (n *Notifier) fail(log Narrator, shiftID, publisherID int64, err error) {
	log.Line(fmt.Sprintf("Error creando notificacion para usuario %d (turno %d): %v", publisherID, shiftID, err))
	n.logger.Warn("Failed to request notification",
		zap.Int64("shift_id", shiftID),
		zap.Int64("publisher_id", publisherID),
		zap.Error(err))
	n.metrics.Notification("failed")
}
