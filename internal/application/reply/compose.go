package reply

import "autoreply/internal/domain/email"

// Template holds the fixed parts of every auto-reply.
type Template struct {
	FromName string
	From     string
	Subject  string
	HTMLBody string
}

// Compose builds the reply for one candidate. Nothing from the original
// message ends up in the reply except the thread and Message-ID references.
func (t Template) Compose(original *email.MessageSummary, recipient string) *email.ReplyDraft {
	return &email.ReplyDraft{
		FromName:  t.FromName,
		From:      t.From,
		To:        recipient,
		Subject:   t.Subject,
		HTMLBody:  t.HTMLBody,
		ThreadID:  original.ThreadID,
		InReplyTo: original.MessageIDHeader,
	}
}
