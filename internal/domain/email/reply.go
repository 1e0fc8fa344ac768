package email

import "time"

// ReplyDraft is an outbound auto-reply built for one candidate.
type ReplyDraft struct {
	FromName  string
	From      string
	To        string
	Subject   string
	HTMLBody  string
	ThreadID  string
	InReplyTo string
}

// ReplyRecord is written to the ledger after a reply was sent.
type ReplyRecord struct {
	Recipient       string
	ThreadID        string
	SourceMessageID string
	SentMessageID   string
	LabelID         string
	Labeled         bool
	CreatedAt       time.Time
}

func NewReplyRecord(draft *ReplyDraft, sourceID, sentID string) *ReplyRecord {
	return &ReplyRecord{
		Recipient:       draft.To,
		ThreadID:        draft.ThreadID,
		SourceMessageID: sourceID,
		SentMessageID:   sentID,
		CreatedAt:       time.Now(),
	}
}

func (r *ReplyRecord) MarkLabeled(labelID string) {
	r.LabelID = labelID
	r.Labeled = true
}
