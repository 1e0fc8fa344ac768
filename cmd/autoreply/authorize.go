package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Grant mailbox access and store the OAuth token",
		Long: `Runs the OAuth consent flow using the client secret file and writes the
resulting credential to the token file, replacing any existing one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(stderr)
			if err != nil {
				return err
			}

			cm := newCredentialManager(cfg, logger, cmd)
			cred, err := cm.AuthorizeInteractively(cmd.Context())
			if err != nil {
				return err
			}
			if err := cm.PersistCredential(cred); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Credential saved to %s\n", cfg.TokenPath)
			return nil
		},
	}
}
