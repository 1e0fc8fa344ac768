package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"autoreply/internal/infrastructure/config"
	"autoreply/internal/infrastructure/gmail"
	"autoreply/internal/logging"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitAuthorization = 2
	ExitConfig        = 3
)

// stderr receives log output.
var stderr io.Writer = os.Stderr

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autoreply",
		Short: "Replies once to every first-time Gmail sender",
		Long: `autoreply polls a Gmail mailbox for unread messages and answers each
sender who has never been contacted before with a fixed HTML reply. Sent
replies are labeled so they are easy to find.

Run "autoreply authorize" once to store an OAuth token, then "autoreply run".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(`{{printf "autoreply version %s\n" .Version}}`)

	cmd.AddCommand(newAuthorizeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return ExitOK
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		authErr *gmail.AuthorizationError
		cfgErr  *config.Error
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &authErr):
		return ExitAuthorization
	case errors.As(err, &cfgErr):
		return ExitConfig
	default:
		return ExitFailure
	}
}

// setup loads the configuration and the logger shared by all commands.
func setup(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(w, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, &config.Error{Key: "LOG_LEVEL", Reason: err.Error()}
	}
	slog.SetDefault(logger)

	return cfg, logger, nil
}

func newCredentialManager(cfg *config.Config, logger *slog.Logger, cmd *cobra.Command) *gmail.CredentialManager {
	cm := gmail.NewCredentialManager(cfg.TokenPath, cfg.CredentialsPath, cfg.Scopes, logger)
	cm.In = cmd.InOrStdin()
	cm.Out = cmd.OutOrStdout()
	return cm
}
