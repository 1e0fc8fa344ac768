package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"autoreply/internal/app"
	"autoreply/internal/infrastructure/gmail"
	"autoreply/internal/logging"
)

func newRunCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the mailbox and answer first-time senders",
		Long: `Scans unread messages immediately and then again after a random delay
between POLL_MIN_INTERVAL and POLL_MAX_INTERVAL, until interrupted.

A stored token is required unless --interactive is given, in which case a
missing token starts the consent flow.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := setup(stderr)
			if err != nil {
				return err
			}

			cm := newCredentialManager(cfg, logger, cmd)

			var cred *gmail.Credential
			if interactive {
				cred, err = cm.Authorize(ctx)
				if err != nil {
					return err
				}
			} else {
				var ok bool
				if cred, ok = cm.LoadCredential(); !ok {
					return &gmail.AuthorizationError{Reason: "no stored credential at " + cfg.TokenPath + ", run \"autoreply authorize\" first"}
				}
			}

			application, err := app.New(ctx, cfg, cm.TokenSource(ctx, cred), logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := application.Close(); err != nil {
					logger.Warn("shutdown", logging.Err(err))
				}
			}()

			logger.Info("autoreply started", slog.String("version", version))
			return application.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&interactive, "interactive", false, "Start the consent flow when no token is stored")
	return cmd
}
