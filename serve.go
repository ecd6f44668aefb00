// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/telekom/support-relay/pkg/api"
	"github.com/telekom/support-relay/pkg/audit"
	"github.com/telekom/support-relay/pkg/config"
	"github.com/telekom/support-relay/pkg/credstore"
	"github.com/telekom/support-relay/pkg/delivery"
	"github.com/telekom/support-relay/pkg/fallback"
	"github.com/telekom/support-relay/pkg/mail"
	"github.com/telekom/support-relay/pkg/notify"
	"github.com/telekom/support-relay/pkg/reauth"
	"github.com/telekom/support-relay/pkg/relay"
	"github.com/telekom/support-relay/pkg/status"
	"github.com/telekom/support-relay/pkg/system"
	"github.com/telekom/support-relay/pkg/webhook"
	"go.uber.org/zap"
)

func newServeCommand(debug *bool, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(*debug, *configPath)
		},
	}
}

func runServe(debug bool, configPath string) error {
	log := setupLogger(debug)
	defer func() { _ = log.Sync() }()

	log.With("version", system.Version).Info("Starting support-relay")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading support-relay config: %w", err)
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating support-relay config: %w", err)
	}

	if debug {
		log.Infof("%#v", cfg)
	}

	store, err := credstore.New(cfg.Credentials, log)
	if err != nil {
		return fmt.Errorf("setting up credential store: %w", err)
	}

	// The relay starts even without a stored credential: the webhook and the
	// operator notifications keep working, mails queue up until an operator
	// completes the re-authorization flow.
	refreshSecret := ""
	if rec, err := store.Load(); err != nil {
		log.Warnw("Cannot load stored credential, starting without one", "error", err)
	} else if rec != nil {
		refreshSecret = rec.RefreshSecret
		log.Infow("Loaded stored credential", "updatedAt", rec.UpdatedAt, "updatedBy", rec.UpdatedBy)
	} else {
		log.Warn("No stored credential, mail delivery is deferred until re-authorization")
	}

	notifier := notify.NewTelegram(cfg.Telegram, log)
	guard := delivery.NewGuard(delivery.NewGoogleMinter(cfg.Google), refreshSecret, log)
	guard.SetEscalationHook(escalationHook(notifier, cfg.Server.PublicBaseURL, log))

	provider := mail.NewGmailProvider(cfg.Mail, log)
	engine := delivery.NewEngine(guard, provider, cfg.Queue.MaxAttempts, log)

	sinks := []audit.Sink{audit.NewLogSink(log.Desugar())}
	if len(cfg.Audit.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Audit.Brokers, cfg.Audit.Topic, log)
		if err != nil {
			return fmt.Errorf("setting up Kafka audit sink: %w", err)
		}
		sinks = append(sinks, kafkaSink)
	}
	auditor := audit.NewService(log, sinks...)
	auditor.Start()
	defer auditor.Stop()

	// The queue's message builder needs the relay service and the relay
	// service needs the queue; the closure breaks the cycle.
	var relaySvc *relay.Service
	queue := fallback.NewQueue(engine, func(e fallback.Entry) (delivery.Message, error) {
		return relaySvc.BuildEntryMessage(e)
	}, notifier, auditor, log)
	relaySvc = relay.NewService(engine, queue, notifier, auditor, cfg.Mail.BrandingName, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx, cfg.DrainInterval())
	go guard.Monitor(ctx, cfg.DrainInterval())

	server := api.NewServer(log.Desugar(), cfg, debug)
	defer server.Stop()

	err = server.RegisterAll([]api.APIController{
		webhook.NewController(cfg.Webhook.Secret, relaySvc, log),
		reauth.NewController(cfg.Google, cfg.Server.PublicBaseURL, store, guard, notifier, auditor, log),
		status.NewController(guard, store, queue, provider, log),
	})
	if err != nil {
		return fmt.Errorf("registering controllers: %w", err)
	}

	return server.Listen()
}

// escalationHook broadcasts a credential failure to the operator channel with
// a direct link to the re-authorization flow. Fired by the token guard at
// most once per failure episode.
func escalationHook(notifier notify.Notifier, publicBaseURL string, log *zap.SugaredLogger) func(reason string) {
	return func(reason string) {
		text := fmt.Sprintf("🚨 *Mail credential dead*\nReason: %s\n\nMails are queuing. %s to restore delivery.",
			notify.EscapeMarkdown(reason),
			notify.Link("Re-authorize now", publicBaseURL+"/oauth/auth"))
		notify.BestEffort(context.Background(), notifier, log, text)
	}
}
