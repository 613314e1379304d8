package services

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the batch processor on a fixed interval. Runs never overlap:
// the next tick waits until the previous run finished.
type Scheduler struct {
	processor *BatchProcessor
	interval  time.Duration
	logger    *slog.Logger
}

func NewScheduler(processor *BatchProcessor, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		processor: processor,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, executing one delivery run immediately
// and another per interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.processor.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("delivery run failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
