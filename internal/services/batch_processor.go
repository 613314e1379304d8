package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pushfleet/apnsd/internal/apns"
	"github.com/pushfleet/apnsd/internal/models"
	"github.com/pushfleet/apnsd/pkg/metrics"
)

// TokenSource resolves a device reference to its binary token.
type TokenSource interface {
	Resolve(ctx context.Context, deviceID uint64) ([]byte, error)
}

// BatchProcessor drives one delivery run over all pending notifications using
// a single gateway connection. Processing is strictly sequential: the channel
// is not safe for concurrent writers.
//
// Per-record failures never escape a run. Only run-level failures (listing
// pending rows, opening the channel) are returned to the caller.
type BatchProcessor struct {
	store       NotificationStore
	recorder    *DeliveryRecorder
	tokens      TokenSource
	channels    ChannelProvider
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxAttempts int
}

func NewBatchProcessor(
	store NotificationStore,
	recorder *DeliveryRecorder,
	tokens TokenSource,
	channels ChannelProvider,
	metricsCollector *metrics.Metrics,
	logger *slog.Logger,
	maxAttempts int,
) *BatchProcessor {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &BatchProcessor{
		store:       store,
		recorder:    recorder,
		tokens:      tokens,
		channels:    channels,
		metrics:     metricsCollector,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Run delivers every notification whose sent timestamp is unset. Runs are
// idempotent: records stamped by an earlier run are never selected again.
func (p *BatchProcessor) Run(ctx context.Context) error {
	pending, err := p.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending notifications: %w", err)
	}
	return p.RunBatch(ctx, pending)
}

// RunBatch delivers an explicit set of notifications over one channel. The
// channel is released on every exit path.
func (p *BatchProcessor) RunBatch(ctx context.Context, pending []models.Notification) error {
	if len(pending) == 0 {
		p.logger.Debug("no pending notifications")
		return nil
	}

	channel, err := p.channels.Open(ctx)
	if err != nil {
		p.logger.Error("failed to open delivery channel", slog.Any("error", err))
		return fmt.Errorf("open delivery channel: %w", err)
	}
	defer func() {
		if cerr := channel.Close(); cerr != nil {
			p.logger.Warn("failed to close delivery channel", slog.Any("error", cerr))
		}
	}()

	p.logger.Info("delivery run started", slog.Int("pending", len(pending)))
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Stamped records are never re-encoded, even in an explicit set.
		if !pending[i].Pending() {
			continue
		}
		if fatal := p.deliver(ctx, channel, &pending[i]); fatal {
			p.metrics.IncAborted()
			p.logger.Error("delivery channel broken, aborting batch",
				slog.Int("remaining", len(pending)-i-1))
			break
		}
	}
	return nil
}

// deliver processes a single notification and reports whether the channel
// became unusable.
func (p *BatchProcessor) deliver(ctx context.Context, channel DeliveryChannel, n *models.Notification) bool {
	p.metrics.IncSelected()

	token, err := p.tokens.Resolve(ctx, n.DeviceID)
	if err != nil {
		if isTokenFatal(err) {
			// Missing registration or an unusable stored token; this
			// record can never succeed.
			p.logger.Error("device token can never resolve, dropping",
				slog.Uint64("notification_id", n.ID),
				slog.Uint64("device_id", n.DeviceID),
				slog.Any("error", err))
			p.recorder.MarkSent(ctx, n)
			return false
		}
		// A registry hiccup must not drop the record; it stays pending
		// for the next run.
		p.logger.Warn("device token lookup failed, leaving record pending",
			slog.Uint64("notification_id", n.ID),
			slog.Uint64("device_id", n.DeviceID),
			slog.Any("error", err))
		return false
	}

	frame, err := apns.EncodeNotification(n, token)
	if err != nil {
		var sizeErr *apns.MessageSizeError
		if errors.As(err, &sizeErr) {
			p.metrics.IncOversized()
			// An oversized message can never fit; stamping it prevents
			// infinite retry even though nothing was transmitted.
			p.logger.Warn("frame exceeds message size limit, dropping",
				slog.Uint64("notification_id", n.ID),
				slog.Int("frame_size", len(sizeErr.Frame)))
		} else {
			p.logger.Error("failed to encode notification",
				slog.Uint64("notification_id", n.ID),
				slog.Any("error", err))
		}
		p.recorder.MarkSent(ctx, n)
		return false
	}

	if err := channel.Write(frame); err != nil {
		p.metrics.IncWriteFailed()
		if IsChannelFatal(err) {
			p.logger.Error("gateway write failed, channel unusable",
				slog.Uint64("notification_id", n.ID),
				slog.Any("error", err))
			p.recorder.MarkSent(ctx, n)
			return true
		}
		p.logger.Warn("gateway write failed",
			slog.Uint64("notification_id", n.ID),
			slog.Any("error", err))
		p.recorder.ConsumeAttempt(ctx, n, p.maxAttempts)
		return false
	}

	p.metrics.IncDelivered()
	p.recorder.MarkSent(ctx, n)
	return false
}
