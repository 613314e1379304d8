package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/pushfleet/apnsd/internal/models"
)

// NotificationStore is the persistence contract the delivery loop depends on.
// MarkSent must be an idempotent set: stamping an already-stamped row keeps
// the first timestamp.
type NotificationStore interface {
	ListPending(ctx context.Context) ([]models.Notification, error)
	MarkSent(ctx context.Context, id uint64, at time.Time) error
	IncrementAttempts(ctx context.Context, id uint64) (int, error)
}

// DeliveryRecorder persists per-notification outcomes. Storage failures are
// logged and swallowed: bookkeeping must never take down a batch run.
type DeliveryRecorder struct {
	store  NotificationStore
	logger *slog.Logger
	now    func() time.Time
}

func NewDeliveryRecorder(store NotificationStore, logger *slog.Logger) *DeliveryRecorder {
	return &DeliveryRecorder{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// MarkSent stamps the notification so it is never selected again.
func (r *DeliveryRecorder) MarkSent(ctx context.Context, n *models.Notification) {
	if err := r.store.MarkSent(ctx, n.ID, r.now().UTC()); err != nil {
		r.logger.Error("failed to mark notification sent",
			slog.Uint64("notification_id", n.ID),
			slog.Any("error", err))
	}
}

// ConsumeAttempt burns one unit of the notification's retry budget and stamps
// the row once the budget is exhausted, so a failing record is retried a
// bounded number of times instead of forever.
func (r *DeliveryRecorder) ConsumeAttempt(ctx context.Context, n *models.Notification, maxAttempts int) {
	attempts, err := r.store.IncrementAttempts(ctx, n.ID)
	if err != nil {
		r.logger.Error("failed to record delivery attempt",
			slog.Uint64("notification_id", n.ID),
			slog.Any("error", err))
		return
	}
	if attempts >= maxAttempts {
		r.logger.Warn("delivery attempts exhausted, giving up",
			slog.Uint64("notification_id", n.ID),
			slog.Int("attempts", attempts))
		r.MarkSent(ctx, n)
	}
}
