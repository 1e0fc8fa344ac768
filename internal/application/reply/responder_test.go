package reply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTemplate = Template{
	FromName: "Auto Responder",
	From:     "me@example.com",
	Subject:  "Hello",
	HTMLBody: "<b>Hello!</b>",
}

func newTestResponder(box *fakeMailbox, contacts ContactChecker, opts Options) *Responder {
	opts.Template = testTemplate
	if opts.LabelID == "" {
		opts.LabelID = "Label_1"
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResponder(box, contacts, opts)
}

func TestScanEndToEnd(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "A <a@example.com>")
	box.addUnread("m2", "t2", "B <b@example.com>")
	box.sentTo["a@example.com"] = true

	r := newTestResponder(box, NewMailboxContactChecker(box), Options{})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, box.drafts, 1)
	draft := box.drafts[0]
	assert.Equal(t, "b@example.com", draft.To)
	assert.Equal(t, "t2", draft.ThreadID)
	assert.Equal(t, "<m2@mail.example.com>", draft.InReplyTo)
	assert.Equal(t, "Hello", draft.Subject)
	assert.Equal(t, "<b>Hello!</b>", draft.HTMLBody)
	assert.Equal(t, "me@example.com", draft.From)

	assert.Equal(t, []string{"Label_1"}, box.labels["sent-1"])
	assert.Equal(t, []string{"send:b@example.com"}, box.eventsWithPrefix("send:"))

	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.PriorContact)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Labeled)
	assert.Empty(t, report.Failures)
}

func TestScanChecksBeforeEverySend(t *testing.T) {
	box := newFakeMailbox()
	for i := range 5 {
		box.addUnread(fmt.Sprintf("m%d", i), fmt.Sprintf("t%d", i), fmt.Sprintf("u%d@example.com", i))
	}
	checker := &fakeChecker{box: box, prior: map[string]bool{"u1@example.com": true, "u3@example.com": true}}

	r := newTestResponder(box, checker, Options{})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	checked := make(map[string]bool)
	for _, e := range box.events {
		if addr, ok := strings.CutPrefix(e, "check:"); ok {
			checked[addr] = true
		}
		if addr, ok := strings.CutPrefix(e, "send:"); ok {
			assert.True(t, checked[addr], "send to %s before its contact check", addr)
			assert.False(t, checker.prior[addr], "send to %s despite prior contact", addr)
		}
	}

	assert.Equal(t, 5, report.Checked)
	assert.Len(t, box.eventsWithPrefix("check:"), 5)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 2, report.PriorContact)
}

func TestScanContinuesAfterSendFailure(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "a@example.com")
	box.addUnread("m2", "t2", "b@example.com")
	box.sendErr["a@example.com"] = errors.New("smtp says no")

	r := newTestResponder(box, &fakeChecker{box: box}, Options{})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.SendFailed)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{"send:a@example.com", "send:b@example.com"}, box.eventsWithPrefix("send:"))

	require.Len(t, report.Failures, 1)
	assert.Equal(t, StepSend, report.Failures[0].Step)
}

func TestScanQueryFailureAbandonsCycle(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(box *fakeMailbox, checker *fakeChecker)
		wantStep   Step
		wantEvents []string
	}{
		{
			name: "get",
			setup: func(box *fakeMailbox, _ *fakeChecker) {
				box.getErr["m1"] = errors.New("quota exceeded")
			},
			wantStep:   StepGet,
			wantEvents: []string{"list:is:unread", "get:m1"},
		},
		{
			name: "contact check",
			setup: func(_ *fakeMailbox, checker *fakeChecker) {
				checker.err = map[string]error{"a@example.com": errors.New("search quota")}
			},
			wantStep:   StepContact,
			wantEvents: []string{"list:is:unread", "get:m1", "check:a@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := newFakeMailbox()
			box.addUnread("m1", "t1", "a@example.com")
			box.addUnread("m2", "t2", "b@example.com")
			checker := &fakeChecker{box: box}
			tt.setup(box, checker)
			rec := &fakeRecorder{}

			r := newTestResponder(box, checker, Options{Recorder: rec})
			report, err := r.Scan(context.Background())

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.wantStep, stepErr.Step)
			assert.Equal(t, "m1", stepErr.MessageID)

			assert.Equal(t, tt.wantEvents, box.events)
			assert.Empty(t, box.drafts)
			assert.Equal(t, 1, report.Candidates)
			require.Len(t, report.Failures, 1)
			assert.Equal(t, tt.wantStep, report.Failures[0].Step)

			require.Len(t, rec.errs, 1)
			assert.ErrorAs(t, rec.errs[0], &stepErr)
		})
	}
}

func TestScanRecoversOnNextCycleAfterQueryFailure(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "a@example.com")
	box.addUnread("m2", "t2", "b@example.com")
	box.getErr["m1"] = errors.New("backend error")

	r := newTestResponder(box, &fakeChecker{box: box}, Options{})

	first, err := r.Scan(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, first.GetFailed)
	assert.Zero(t, first.Sent)

	delete(box.getErr, "m1")
	second, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sent)
}

func TestScanAtMostNSends(t *testing.T) {
	box := newFakeMailbox()
	for i := range 10 {
		box.addUnread(fmt.Sprintf("m%d", i), "", fmt.Sprintf("u%d@example.com", i))
	}
	r := newTestResponder(box, &fakeChecker{box: box}, Options{})

	report, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Checked)
	assert.LessOrEqual(t, len(box.eventsWithPrefix("send:")), 10)
	assert.Equal(t, 10, report.Sent)
	assert.Equal(t, 10, report.Labeled)
}

func TestScanLabelFailureKeepsReply(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "b@example.com")
	box.labelErr = errors.New("label gone")
	ledger := &fakeLedger{}

	r := newTestResponder(box, &fakeChecker{box: box}, Options{Ledger: ledger})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.LabelFailed)
	assert.Equal(t, 0, report.Labeled)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, StepLabel, report.Failures[0].Step)
	assert.Equal(t, "sent-1", report.Failures[0].MessageID)

	require.Len(t, ledger.records, 1)
	assert.False(t, ledger.records[0].Labeled)
	assert.Equal(t, "sent-1", ledger.records[0].SentMessageID)
}

func TestScanRecordsReplyInLedger(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "B <B@Example.com>")
	ledger := &fakeLedger{}

	r := newTestResponder(box, &fakeChecker{box: box}, Options{Ledger: ledger, LabelID: "Label_7"})
	_, err := r.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, ledger.records, 1)
	rec := ledger.records[0]
	assert.Equal(t, "b@example.com", rec.Recipient)
	assert.Equal(t, "t1", rec.ThreadID)
	assert.Equal(t, "m1", rec.SourceMessageID)
	assert.Equal(t, "sent-1", rec.SentMessageID)
	assert.True(t, rec.Labeled)
	assert.Equal(t, "Label_7", rec.LabelID)
}

func TestScanLedgerFailureIsNotFatal(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "a@example.com")
	box.addUnread("m2", "t2", "b@example.com")

	r := newTestResponder(box, &fakeChecker{box: box}, Options{Ledger: &fakeLedger{err: errors.New("disk full")}})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, StepLedger, report.Failures[0].Step)
}

func TestScanListFailureAbandonsCycle(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "a@example.com")
	box.listErr = errors.New("backend error")
	rec := &fakeRecorder{}

	r := newTestResponder(box, &fakeChecker{box: box}, Options{Recorder: rec})
	report, err := r.Scan(context.Background())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepList, stepErr.Step)
	assert.Equal(t, 0, report.Candidates)
	assert.Equal(t, []string{"list:is:unread"}, box.events)

	require.Len(t, rec.errs, 1)
	assert.ErrorAs(t, rec.errs[0], &stepErr)
}

func TestScanSkipsMessagesWithoutSender(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "")
	box.addUnread("m2", "t2", "undisclosed-recipients:;")
	box.addUnread("m3", "t3", "c@example.com")

	r := newTestResponder(box, &fakeChecker{box: box}, Options{})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, 2, report.NoSender)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Sent)
}

func TestScanRepliesOncePerSenderPerCycle(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "b@example.com")
	box.addUnread("m2", "t2", "Bee <B@example.com>")

	// A checker that never sees the reply, like a lagging search index.
	r := newTestResponder(box, &fakeChecker{box: box}, Options{})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Duplicates)
}

func TestScanRetriesSenderAfterFailedSendInSameCycle(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "b@example.com")
	box.addUnread("m2", "t2", "b@example.com")

	box.sendErr["b@example.com"] = errors.New("transient")
	r := newTestResponder(box, &fakeChecker{box: box}, Options{})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	assert.Len(t, box.eventsWithPrefix("send:"), 2)
	assert.Equal(t, 2, report.SendFailed)
	assert.Equal(t, 0, report.Duplicates)
}

func TestScanSecondCycleSkipsAnsweredSenders(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "b@example.com")

	r := newTestResponder(box, NewMailboxContactChecker(box), Options{})

	first, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)

	second, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.PriorContact)
}

func TestScanHonoursCancellation(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "a@example.com")
	box.addUnread("m2", "t2", "b@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	checker := &cancellingChecker{fakeChecker: fakeChecker{box: box}, cancel: cancel}

	r := newTestResponder(box, checker, Options{})
	report, err := r.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Candidates)
}

type cancellingChecker struct {
	fakeChecker
	cancel context.CancelFunc
}

func (c *cancellingChecker) HasPriorContact(ctx context.Context, address string) (bool, error) {
	c.cancel()
	return c.fakeChecker.HasPriorContact(ctx, address)
}

func TestScanCandidateRate(t *testing.T) {
	box := newFakeMailbox()
	for i := range 3 {
		box.addUnread(fmt.Sprintf("m%d", i), "", fmt.Sprintf("u%d@example.com", i))
	}

	r := newTestResponder(box, &fakeChecker{box: box}, Options{CandidateRate: 20})
	start := time.Now()
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Sent)
	// Burst of one, then 50ms between candidates.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestScanWithoutLabelID(t *testing.T) {
	box := newFakeMailbox()
	box.addUnread("m1", "t1", "b@example.com")

	r := NewResponder(box, &fakeChecker{box: box}, Options{
		Template: testTemplate,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	report, err := r.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	assert.Empty(t, box.eventsWithPrefix("label:"))
	assert.Equal(t, []string{"list:is:unread"}, box.eventsWithPrefix("list:"))
}
