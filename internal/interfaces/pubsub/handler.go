package pubsub

import (
	"context"
	"log/slog"
	"time"

	"autoreply/internal/infrastructure/pubsub"
	"autoreply/internal/logging"
)

// WatchRenewInterval is how often the Gmail watch is re-armed; Gmail expires it after 7 days.
const WatchRenewInterval = 24 * time.Hour

// Watcher enables Gmail push notifications on a topic.
type Watcher interface {
	EnableWatch(ctx context.Context, topicName string) (int64, error)
}

// Handler turns mailbox notifications into wake signals for the poll loop.
type Handler struct {
	wake    chan struct{}
	watcher Watcher
	topic   string
	logger  *slog.Logger
}

func NewHandler(watcher Watcher, topic string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		wake:    make(chan struct{}, 1),
		watcher: watcher,
		topic:   topic,
		logger:  logging.WithOperation(logger, "watch"),
	}
}

// Wake is the channel the poll loop waits on.
func (h *Handler) Wake() <-chan struct{} {
	return h.wake
}

// HandleNotification requests a scan. Pending requests coalesce into one.
func (h *Handler) HandleNotification(n pubsub.Notification) {
	select {
	case h.wake <- struct{}{}:
		h.logger.Debug("scan requested", slog.Uint64("history_id", n.HistoryID))
	default:
	}
}

// StartWatch enables the Gmail watch.
func (h *Handler) StartWatch(ctx context.Context) error {
	expiration, err := h.watcher.EnableWatch(ctx, h.topic)
	if err != nil {
		return err
	}
	h.logger.Info("gmail watch enabled",
		slog.String("topic", h.topic),
		slog.Time("expires", time.UnixMilli(expiration)),
	)
	return nil
}

// RenewWatch re-arms the watch every interval until ctx is done. Failures are
// logged and retried on the next tick.
func (h *Handler) RenewWatch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.StartWatch(ctx); err != nil && ctx.Err() == nil {
				h.logger.Warn("gmail watch renewal failed", logging.Err(err))
			}
		}
	}
}
