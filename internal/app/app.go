package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"autoreply/internal/application/reply"
	"autoreply/internal/infrastructure/config"
	"autoreply/internal/infrastructure/gmail"
	"autoreply/internal/infrastructure/metrics"
	"autoreply/internal/infrastructure/persistence/sqlite"
	"autoreply/internal/infrastructure/pubsub"
	"autoreply/internal/interfaces/poller"
	pubsubHandler "autoreply/internal/interfaces/pubsub"
	"autoreply/internal/logging"
)

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	gmailClient *gmail.Client
	ledger      *sqlite.ReplyRepository
	metrics     *metrics.Metrics
	responder   *reply.Responder
	watch       *pubsubHandler.Handler
	label       string
	from        string
}

// New connects to Gmail with ts and builds the responder. opts are passed to
// the Gmail service.
func New(ctx context.Context, cfg *config.Config, ts oauth2.TokenSource, logger *slog.Logger, opts ...option.ClientOption) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}

	srv, err := gmail.NewService(ctx, ts, opts...)
	if err != nil {
		return nil, err
	}
	a.gmailClient = gmail.NewClient(srv, logger)

	a.from = cfg.ReplyFrom
	if a.from == "" {
		if a.from, err = a.gmailClient.Profile(ctx); err != nil {
			return nil, fmt.Errorf("resolve sender address: %w", err)
		}
	}

	a.label = cfg.LabelID
	if a.label == "" {
		l, err := a.gmailClient.EnsureLabel(ctx, cfg.LabelName)
		if err != nil {
			return nil, fmt.Errorf("resolve label: %w", err)
		}
		if !l.IsResolved() {
			return nil, fmt.Errorf("resolve label: no id returned for %q", cfg.LabelName)
		}
		a.label = l.ID
		logger.Info("using label", slog.String("label", l.String()), slog.String("label_id", l.ID))
	}

	if cfg.DatabasePath != "" {
		if a.ledger, err = sqlite.NewReplyRepository(cfg.DatabasePath); err != nil {
			return nil, fmt.Errorf("open reply ledger: %w", err)
		}
		n, err := a.ledger.CountReplies(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		logger.Info("reply ledger opened", slog.String("path", cfg.DatabasePath), slog.Int("replies", n))
	}

	contacts, err := a.contactChecker()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		a.metrics = metrics.New()
	}

	opt := reply.Options{
		UnreadQuery: cfg.UnreadQuery,
		LabelID:     a.label,
		Template: reply.Template{
			FromName: cfg.ReplyFromName,
			From:     a.from,
			Subject:  cfg.ReplySubject,
			HTMLBody: cfg.ReplyBody,
		},
		CandidateRate: cfg.CandidateRate,
		Logger:        logger,
	}
	// Typed nils must not reach the interface fields.
	if a.ledger != nil {
		opt.Ledger = a.ledger
	}
	if a.metrics != nil {
		opt.Recorder = a.metrics
	}
	a.responder = reply.NewResponder(a.gmailClient, contacts, opt)

	if cfg.PushEnabled() {
		a.watch = pubsubHandler.NewHandler(a.gmailClient, cfg.TopicName, logger)
	}

	return a, nil
}

func (a *App) contactChecker() (reply.ContactChecker, error) {
	switch a.cfg.ContactCheck {
	case config.ContactCheckSent:
		return reply.NewSentContactChecker(a.gmailClient), nil
	case config.ContactCheckLedger:
		if a.ledger == nil {
			return nil, &config.Error{Key: "CONTACT_CHECK", Reason: "ledger mode requires DATABASE_PATH"}
		}
		return reply.NewLedgerContactChecker(a.ledger), nil
	default:
		return reply.NewMailboxContactChecker(a.gmailClient), nil
	}
}

// Responder returns the scan use case.
func (a *App) Responder() *reply.Responder {
	return a.responder
}

// Run starts the optional metrics server and push listener, then polls until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		wake <-chan struct{}
	)

	if a.metrics != nil {
		server, err := metrics.NewServer(a.cfg.MetricsAddr, a.metrics, a.logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				a.logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
	}

	if a.watch != nil {
		subscriber, err := a.startPush(ctx, &wg)
		if err != nil {
			a.logger.Warn("push notifications unavailable, polling only", logging.Err(err))
		} else {
			defer func() {
				if err := subscriber.Close(); err != nil {
					a.logger.Warn("closing pubsub client", logging.Err(err))
				}
			}()
			wake = a.watch.Wake()
		}
	}

	loop := poller.NewLoop(a.responder, poller.NewScheduler(a.cfg.MinInterval, a.cfg.MaxInterval), wake, a.logger)
	err := loop.Run(ctx)

	cancel()
	wg.Wait()
	return err
}

func (a *App) startPush(ctx context.Context, wg *sync.WaitGroup) (*pubsub.Subscriber, error) {
	if err := a.watch.StartWatch(ctx); err != nil {
		return nil, err
	}

	subscriber, err := pubsub.NewSubscriber(ctx, a.cfg.GoogleCloudProject, a.cfg.SubscriptionID, a.logger)
	if err != nil {
		return nil, err
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := subscriber.Listen(ctx, a.watch.HandleNotification); err != nil {
			a.logger.Error("pubsub listener stopped", logging.Err(err))
		}
	}()
	go func() {
		defer wg.Done()
		a.watch.RenewWatch(ctx, pubsubHandler.WatchRenewInterval)
	}()

	return subscriber, nil
}

func (a *App) Close() error {
	var errs []error
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reply ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}
