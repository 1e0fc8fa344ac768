package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autoreply/internal/application/reply"
	"autoreply/internal/logging"
)

// Scanner runs one scan cycle.
type Scanner interface {
	Scan(ctx context.Context) (reply.Report, error)
}

// Delayer returns the wait before the next cycle.
type Delayer interface {
	Next() time.Duration
}

// Loop alternates between scanning and waiting until its context is done.
type Loop struct {
	scanner Scanner
	delay   Delayer
	wake    <-chan struct{}
	logger  *slog.Logger

	// afterScan, when set, is called after every cycle.
	afterScan func(reply.Report, error)
}

// NewLoop creates a loop. wake may be nil; a receive on it ends the current wait early.
func NewLoop(scanner Scanner, delay Delayer, wake <-chan struct{}, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		scanner: scanner,
		delay:   delay,
		wake:    wake,
		logger:  logging.WithOperation(logger, "poll"),
	}
}

// Run scans immediately, then keeps scanning after every wait. It returns nil
// once ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("poll loop started")

	for cycle := 1; ; cycle++ {
		report, err := l.scanner.Scan(ctx)
		if l.afterScan != nil {
			l.afterScan(report, err)
		}
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			// An abandoned cycle is already logged by the responder; the next one is still scheduled.
			var stepErr *reply.StepError
			if !errors.As(err, &stepErr) {
				l.logger.Warn("scan cycle failed", slog.Int("cycle", cycle), logging.Err(err))
			}
		}

		wait := l.delay.Next()
		l.logger.Debug("next scan scheduled", slog.Int("cycle", cycle), slog.Duration("in", wait))

		if !l.sleep(ctx, wait) {
			break
		}
	}

	l.logger.Info("poll loop stopped")
	return nil
}

// sleep reports false when ctx ended the wait.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-l.wake:
		l.logger.Debug("woken before the scheduled scan")
	}
	return true
}
