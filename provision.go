// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/telekom/support-relay/pkg/config"
	"github.com/telekom/support-relay/pkg/credstore"
)

// newProvisionCommand writes a refresh credential obtained out of band
// (e.g. via the OAuth playground) directly into the credential store, so a
// fresh deployment can send mail before the browser flow has ever run.
func newProvisionCommand(configPath *string) *cobra.Command {
	var refreshSecret string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Store a refresh credential obtained out of band",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refreshSecret == "" {
				return fmt.Errorf("--refresh-secret is required")
			}

			log := setupLogger(false)
			defer func() { _ = log.Sync() }()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading support-relay config: %w", err)
			}
			cfg.Defaults()

			store, err := credstore.New(cfg.Credentials, log)
			if err != nil {
				return fmt.Errorf("setting up credential store: %w", err)
			}

			if err := store.Save(&credstore.Record{
				RefreshSecret: refreshSecret,
				UpdatedAt:     time.Now().UTC(),
				UpdatedBy:     "provision",
			}); err != nil {
				return fmt.Errorf("storing credential: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Credential stored. Restart the relay or wait for the next probe.")
			return nil
		},
	}
	cmd.Flags().StringVar(&refreshSecret, "refresh-secret", "", "OAuth2 refresh token for the service mailbox")
	return cmd
}
