package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/pushfleet/apnsd/internal/models"
	"github.com/pushfleet/apnsd/pkg/metrics"
)

// NotificationWriter inserts validated notification rows.
type NotificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

// DeviceSource checks that a device reference exists in the registry.
type DeviceSource interface {
	Get(ctx context.Context, deviceID uint64) (*models.Device, error)
}

// IngestConsumer is the write boundary: it decodes create-notification
// requests from the queue, validates them, truncates alert text and inserts
// pending rows for the delivery loop to pick up.
type IngestConsumer struct {
	base          *BaseConsumer
	store         NotificationWriter
	devices       DeviceSource
	metrics       *metrics.Metrics
	logger        *slog.Logger
	maxDeliveries int
}

func NewIngestConsumer(base *BaseConsumer, store NotificationWriter, devices DeviceSource, metricsCollector *metrics.Metrics, logger *slog.Logger, maxDeliveries int) *IngestConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &IngestConsumer{
		base:          base,
		store:         store,
		devices:       devices,
		metrics:       metricsCollector,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (c *IngestConsumer) Start(ctx context.Context) error {
	return c.base.Start(ctx, c.handleDelivery)
}

func (c *IngestConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var req models.NotificationRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		c.metrics.IncRejected()
		c.logger.Error("failed to unmarshal notification request", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	n, err := req.ToNotification()
	if err != nil {
		// Malformed requests cannot succeed on redelivery.
		c.metrics.IncRejected()
		c.logger.Error("rejecting invalid notification request",
			slog.String("request_id", req.RequestID),
			slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	if _, err := c.devices.Get(ctx, n.DeviceID); err != nil {
		c.metrics.IncRejected()
		c.logger.Error("rejecting notification for unknown device",
			slog.String("request_id", req.RequestID),
			slog.Uint64("device_id", n.DeviceID),
			slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	if err := c.store.Create(ctx, n); err != nil {
		requeue := c.shouldRetry(&msg)
		if requeue {
			c.logger.Warn("failed to store notification, message requeued",
				slog.String("request_id", req.RequestID),
				slog.Any("error", err))
		} else {
			c.logger.Error("failed to store notification, message dead-lettered",
				slog.String("request_id", req.RequestID),
				slog.Any("error", err))
		}
		_ = msg.Nack(false, requeue)
		return err
	}

	c.metrics.IncIngested()
	c.logger.Info("notification enqueued",
		slog.String("request_id", req.RequestID),
		slog.Uint64("device_id", n.DeviceID))
	return msg.Ack(false)
}

func (c *IngestConsumer) shouldRetry(msg *amqp.Delivery) bool {
	return deliveryAttempts(msg) < c.maxDeliveries
}

func deliveryAttempts(msg *amqp.Delivery) int {
	if msg.Headers == nil {
		if msg.Redelivered {
			return 1
		}
		return 0
	}
	if raw, ok := msg.Headers["x-death"]; ok {
		if deaths, ok := raw.([]interface{}); ok && len(deaths) > 0 {
			if table, ok := deaths[0].(amqp.Table); ok {
				if count, ok := table["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}
	if msg.Redelivered {
		return 1
	}
	return 0
}
