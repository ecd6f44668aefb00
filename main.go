// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	stdlog "log"
	"os"

	"github.com/spf13/cobra"
	"github.com/telekom/support-relay/pkg/system"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		debug      bool
		configPath string
	)

	root := &cobra.Command{
		Use:           "support-relay",
		Short:         "Support request relay",
		Long:          "Relays website support requests to the operator chat and sends confirmation mails via Gmail.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enables debug mode")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file (default ./config.yaml, or SUPPORT_RELAY_CONFIG)")

	root.AddCommand(
		newServeCommand(&debug, &configPath),
		newProvisionCommand(&configPath),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "support-relay %s", system.Version)
			if system.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", system.Commit)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}

func setupLogger(debug bool) *zap.SugaredLogger {
	var zlog *zap.Logger
	var err error
	if debug {
		zlog, err = zap.NewDevelopment()
	} else {
		zlog, err = zap.NewProduction()
	}
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return zlog.Sugar()
}
