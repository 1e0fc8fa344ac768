package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"

	"autoreply/internal/logging"
)

// Notification is the payload Gmail publishes when the mailbox changes.
type Notification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// recentHistoryIDs bounds how many history ids are remembered for deduplication.
const recentHistoryIDs = 64

// Subscriber receives Gmail notifications from a Pub/Sub subscription.
type Subscriber struct {
	client         *pubsub.Client
	subscriptionID string
	logger         *slog.Logger

	mu     sync.Mutex
	recent [recentHistoryIDs]uint64
	next   int
}

func NewSubscriber(ctx context.Context, projectID, subscriptionID string, logger *slog.Logger) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	s := newSubscriber(subscriptionID, logger)
	s.client = client
	return s, nil
}

func newSubscriber(subscriptionID string, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		subscriptionID: subscriptionID,
		logger:         logging.WithOperation(logger, "pubsub"),
	}
}

// Listen blocks until ctx is done, calling handler once per distinct history id.
// Every message is acked, including malformed and repeated ones.
func (s *Subscriber) Listen(ctx context.Context, handler func(Notification)) error {
	sub := s.client.Subscription(s.subscriptionID)

	s.logger.Info("pubsub listener started", slog.String("subscription", s.subscriptionID))

	err := sub.Receive(ctx, func(_ context.Context, m *pubsub.Message) {
		defer m.Ack()
		s.dispatch(m.Data, handler)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive from %s: %w", s.subscriptionID, err)
	}
	return nil
}

func (s *Subscriber) dispatch(data []byte, handler func(Notification)) {
	n, err := parseNotification(data)
	if err != nil {
		s.logger.Warn("dropping malformed notification", logging.Err(err))
		return
	}

	if !s.markSeen(n.HistoryID) {
		s.logger.Debug("history id already seen", slog.Uint64("history_id", n.HistoryID))
		return
	}

	s.logger.Debug("mailbox changed",
		logging.Recipient(n.EmailAddress),
		slog.Uint64("history_id", n.HistoryID),
	)
	handler(*n)
}

// markSeen reports whether id is not among the recently seen ones. Receive may
// call back concurrently. Ids are never zero, so empty slots never match.
func (s *Subscriber) markSeen(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seen := range s.recent {
		if seen == id {
			return false
		}
	}
	s.recent[s.next] = id
	s.next = (s.next + 1) % recentHistoryIDs
	return true
}

func (s *Subscriber) Close() error {
	return s.client.Close()
}

func parseNotification(data []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	if n.HistoryID == 0 {
		return nil, fmt.Errorf("notification without history id: %s", data)
	}
	return &n, nil
}
