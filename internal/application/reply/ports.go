package reply

import (
	"context"

	"autoreply/internal/domain/email"
)

// Mailbox is the provider surface the responder consumes.
type Mailbox interface {
	ForeachMessage(ctx context.Context, query string, fn func(email.MessageRef) error) error
	FetchSummary(ctx context.Context, messageID string) (*email.MessageSummary, error)
	SendReply(ctx context.Context, draft *email.ReplyDraft) (string, error)
	ApplyLabel(ctx context.Context, messageID, labelID string) error
}

type MessageSearcher interface {
	HasMessages(ctx context.Context, query string) (bool, error)
}

type ContactChecker interface {
	HasPriorContact(ctx context.Context, address string) (bool, error)
}

type ReplyLedger interface {
	Save(ctx context.Context, rec *email.ReplyRecord) error
	HasRepliedTo(ctx context.Context, recipient string) (bool, error)
}

// Recorder receives the outcome of every scan cycle.
type Recorder interface {
	ObserveScan(report Report, err error)
}
