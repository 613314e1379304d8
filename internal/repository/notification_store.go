package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pushfleet/apnsd/internal/models"
)

// NotificationStore persists notification rows in Postgres. The table is
// shared with the API that enqueues notifications; this service only selects
// pending rows and stamps outcomes.
type NotificationStore struct {
	db        *gorm.DB
	tableName string
}

func NewNotificationStore(db *gorm.DB, tableName string) (*NotificationStore, error) {
	if tableName == "" {
		tableName = "notifications"
	}

	if err := db.Table(tableName).AutoMigrate(&models.Notification{}); err != nil {
		return nil, fmt.Errorf("migrate %s table: %w", tableName, err)
	}

	return &NotificationStore{
		db:        db,
		tableName: tableName,
	}, nil
}

// ListPending returns unsent notifications grouped by device, oldest first,
// creation order breaking ties.
func (s *NotificationStore) ListPending(ctx context.Context) ([]models.Notification, error) {
	var pending []models.Notification
	err := s.db.WithContext(ctx).Table(s.tableName).
		Where("sent_at IS NULL").
		Order("device_id, created_at, id").
		Find(&pending).Error
	return pending, err
}

// MarkSent stamps the notification's sent timestamp. The stamp is set-once:
// repeated calls for the same row keep the first timestamp, so retried runs
// are safe.
func (s *NotificationStore) MarkSent(ctx context.Context, id uint64, at time.Time) error {
	return s.db.WithContext(ctx).Table(s.tableName).
		Where("id = ? AND sent_at IS NULL", id).
		Update("sent_at", at).Error
}

// IncrementAttempts bumps the delivery attempt counter and returns the new
// value.
func (s *NotificationStore) IncrementAttempts(ctx context.Context, id uint64) (int, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).Table(s.tableName).Model(&n).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "attempts"}}}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	return n.Attempts, err
}

// Create inserts a new pending notification.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Table(s.tableName).Create(n).Error
}
