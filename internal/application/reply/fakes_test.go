package reply

import (
	"context"
	"fmt"
	"strings"

	"autoreply/internal/domain/email"
)

// fakeMailbox is an in-memory Mailbox that records every call in order.
type fakeMailbox struct {
	unread   []email.MessageRef
	messages map[string]*email.MessageSummary
	sentTo   map[string]bool // addresses with an outgoing message already in the mailbox

	listErr  error
	getErr   map[string]error
	sendErr  map[string]error
	labelErr error

	events []string
	drafts []*email.ReplyDraft
	labels map[string][]string
	nextID int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: make(map[string]*email.MessageSummary),
		sentTo:   make(map[string]bool),
		getErr:   make(map[string]error),
		sendErr:  make(map[string]error),
		labels:   make(map[string][]string),
	}
}

func (f *fakeMailbox) addUnread(id, threadID, from string) {
	f.unread = append(f.unread, email.MessageRef{ID: id, ThreadID: threadID})
	f.messages[id] = email.NewMessageSummary(id, threadID, from, "subject "+id, "<"+id+"@mail.example.com>")
}

func (f *fakeMailbox) ForeachMessage(ctx context.Context, query string, fn func(email.MessageRef) error) error {
	f.events = append(f.events, "list:"+query)
	if f.listErr != nil {
		return f.listErr
	}
	for _, ref := range f.unread {
		if err := fn(ref); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMailbox) FetchSummary(ctx context.Context, id string) (*email.MessageSummary, error) {
	f.events = append(f.events, "get:"+id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	m := *f.messages[id]
	return &m, nil
}

func (f *fakeMailbox) SendReply(ctx context.Context, draft *email.ReplyDraft) (string, error) {
	f.events = append(f.events, "send:"+draft.To)
	if err := f.sendErr[draft.To]; err != nil {
		return "", err
	}
	f.nextID++
	f.drafts = append(f.drafts, draft)
	f.sentTo[draft.To] = true
	return fmt.Sprintf("sent-%d", f.nextID), nil
}

func (f *fakeMailbox) ApplyLabel(ctx context.Context, id, labelID string) error {
	f.events = append(f.events, "label:"+id)
	if f.labelErr != nil {
		return f.labelErr
	}
	f.labels[id] = append(f.labels[id], labelID)
	return nil
}

// HasMessages understands the to:"<addr>" queries the contact checkers build.
func (f *fakeMailbox) HasMessages(ctx context.Context, query string) (bool, error) {
	f.events = append(f.events, "search:"+query)
	i := strings.LastIndex(query, "to:")
	if i < 0 {
		return false, fmt.Errorf("unexpected query %q", query)
	}
	return f.sentTo[strings.Trim(query[i+3:], `"`)], nil
}

func (f *fakeMailbox) eventsWithPrefix(prefix string) []string {
	var out []string
	for _, e := range f.events {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// fakeChecker answers from a fixed set and records checks in the mailbox event log.
type fakeChecker struct {
	box   *fakeMailbox
	prior map[string]bool
	err   map[string]error
}

func (c *fakeChecker) HasPriorContact(ctx context.Context, address string) (bool, error) {
	c.box.events = append(c.box.events, "check:"+address)
	if err := c.err[address]; err != nil {
		return false, err
	}
	return c.prior[address], nil
}

type fakeLedger struct {
	records []*email.ReplyRecord
	err     error
}

func (l *fakeLedger) Save(ctx context.Context, rec *email.ReplyRecord) error {
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) HasRepliedTo(ctx context.Context, recipient string) (bool, error) {
	for _, r := range l.records {
		if r.Recipient == recipient {
			return true, nil
		}
	}
	return false, nil
}

type fakeRecorder struct {
	reports []Report
	errs    []error
}

func (r *fakeRecorder) ObserveScan(report Report, err error) {
	r.reports = append(r.reports, report)
	r.errs = append(r.errs, err)
}
