package reply

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"autoreply/internal/domain/email"
	"autoreply/internal/logging"
)

// Report counts what happened during one scan cycle.
type Report struct {
	Candidates   int
	GetFailed    int
	NoSender     int
	Checked      int
	CheckFailed  int
	PriorContact int
	Duplicates   int
	Sent         int
	SendFailed   int
	Labeled      int
	LabelFailed  int
	Failures     []*StepError
}

type Options struct {
	UnreadQuery string
	LabelID     string
	Template    Template

	// CandidateRate limits candidates processed per second; 0 means unlimited.
	CandidateRate float64

	Ledger   ReplyLedger
	Recorder Recorder
	Logger   *slog.Logger
}

// Responder runs scan cycles: every unread message whose sender has no
// prior contact gets the template reply, and the sent reply is labeled.
type Responder struct {
	mailbox  Mailbox
	contacts ContactChecker
	opts     Options
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func NewResponder(mailbox Mailbox, contacts ContactChecker, opts Options) *Responder {
	if opts.UnreadQuery == "" {
		opts.UnreadQuery = "is:unread"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if opts.CandidateRate > 0 {
		limit = rate.Limit(opts.CandidateRate)
	}

	return &Responder{
		mailbox:  mailbox,
		contacts: contacts,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logging.WithOperation(logger, "scan"),
	}
}

// Scan processes the current unread snapshot once. Candidates are handled
// sequentially. A failed provider query (list, get or contact check) abandons
// the rest of the cycle; send and label failures only affect their candidate.
// The returned error is non-nil when the cycle was abandoned or ctx was cancelled.
func (r *Responder) Scan(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{}
	replied := make(map[string]bool)

	err := r.mailbox.ForeachMessage(ctx, r.opts.UnreadQuery, func(ref email.MessageRef) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		report.Candidates++
		if err := r.handleCandidate(ctx, ref, &report, replied); err != nil {
			return err
		}
		return ctx.Err()
	})

	var stepErr *StepError
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
		r.logger.Info("scan interrupted", slog.Int("candidates", report.Candidates))
	case errors.As(err, &stepErr):
		err = stepErr
		r.logger.Error("provider query failed, abandoning cycle",
			slog.String(logging.KeyStep, string(stepErr.Step)),
			slog.Int("candidates", report.Candidates),
			logging.Err(stepErr.Err),
		)
	case err != nil:
		stepErr = &StepError{Step: StepList, Err: err}
		report.Failures = append(report.Failures, stepErr)
		err = stepErr
		r.logger.Error("listing unread messages failed, abandoning cycle", logging.Err(err))
	default:
		r.logger.Info("scan finished",
			slog.Int("candidates", report.Candidates),
			slog.Int("sent", report.Sent),
			slog.Int("prior_contact", report.PriorContact),
			slog.Int("failed", len(report.Failures)),
			slog.Duration(logging.KeyDuration, time.Since(start)),
		)
	}

	if r.opts.Recorder != nil {
		r.opts.Recorder.ObserveScan(report, err)
	}

	return report, err
}

// handleCandidate returns a *StepError when a provider query failed and the
// cycle must stop.
func (r *Responder) handleCandidate(ctx context.Context, ref email.MessageRef, report *Report, replied map[string]bool) error {
	logger := r.logger.With(logging.MessageID(ref.ID))

	summary, err := r.mailbox.FetchSummary(ctx, ref.ID)
	if err != nil {
		report.GetFailed++
		return r.record(report, StepGet, ref.ID, err)
	}
	if summary.ThreadID == "" {
		summary.ThreadID = ref.ThreadID
	}

	recipient, err := summary.Sender()
	if err != nil {
		report.NoSender++
		logger.Warn("skipping message without sender", slog.String("from", summary.From))
		return nil
	}
	logger = logger.With(logging.Recipient(recipient))

	prior, err := r.contacts.HasPriorContact(ctx, recipient)
	report.Checked++
	if err != nil {
		report.CheckFailed++
		return r.record(report, StepContact, ref.ID, err)
	}
	if prior {
		report.PriorContact++
		logger.Debug("sender already contacted, skipping")
		return nil
	}
	if replied[recipient] {
		report.Duplicates++
		logger.Debug("sender already answered this cycle, skipping")
		return nil
	}

	draft := r.opts.Template.Compose(summary, recipient)
	if r.sendAndLabel(ctx, logger, summary, draft, report) {
		replied[recipient] = true
	}
	return nil
}

// sendAndLabel reports whether the reply went out. A label failure after a
// successful send is logged and not rolled back.
func (r *Responder) sendAndLabel(ctx context.Context, logger *slog.Logger, original *email.MessageSummary, draft *email.ReplyDraft, report *Report) bool {
	sentID, err := r.mailbox.SendReply(ctx, draft)
	if err != nil {
		report.SendFailed++
		r.fail(logger, report, StepSend, original.ID, err)
		return false
	}
	report.Sent++
	logger.Info("reply sent", logging.ThreadID(draft.ThreadID), slog.String("sent_id", sentID))

	rec := email.NewReplyRecord(draft, original.ID, sentID)

	if r.opts.LabelID != "" {
		if err := r.mailbox.ApplyLabel(ctx, sentID, r.opts.LabelID); err != nil {
			report.LabelFailed++
			r.fail(logger, report, StepLabel, sentID, err)
		} else {
			report.Labeled++
			rec.MarkLabeled(r.opts.LabelID)
		}
	}

	if r.opts.Ledger != nil {
		if err := r.opts.Ledger.Save(ctx, rec); err != nil {
			r.fail(logger, report, StepLedger, sentID, err)
		}
	}

	return true
}

func (r *Responder) record(report *Report, step Step, messageID string, err error) *StepError {
	stepErr := &StepError{Step: step, MessageID: messageID, Err: err}
	report.Failures = append(report.Failures, stepErr)
	return stepErr
}

func (r *Responder) fail(logger *slog.Logger, report *Report, step Step, messageID string, err error) {
	r.record(report, step, messageID, err)

	if errors.Is(err, context.Canceled) {
		logger.Debug("step interrupted", slog.String(logging.KeyStep, string(step)))
		return
	}
	logger.Warn("candidate step failed", slog.String(logging.KeyStep, string(step)), logging.Err(err))
}
