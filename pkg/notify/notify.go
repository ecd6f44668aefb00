// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package notify delivers best-effort operator notifications to a chat
// channel. Notification failures must never mask the outcome of the delivery
// that triggered them, so callers are expected to route errors through
// BestEffort instead of propagating them.
package notify

import (
	"context"
	"strings"

	"github.com/telekom/support-relay/pkg/metrics"
	"go.uber.org/zap"
)

// Notifier sends a Markdown-formatted message to the operator channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop is a Notifier that does nothing. Used in tests and when the channel
// is not configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// BestEffort sends a notification and contains any failure: the error is
// logged and counted, never returned.
func BestEffort(ctx context.Context, n Notifier, log *zap.SugaredLogger, text string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, text); err != nil {
		metrics.NotificationsFailed.Inc()
		log.Warnw("Operator notification failed", "error", err)
		return
	}
	metrics.NotificationsSent.Inc()
}

// markdownEscaper escapes the characters Telegram's legacy Markdown mode
// treats as formatting. User-supplied content must pass through EscapeMarkdown
// before being embedded in a notification.
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// EscapeMarkdown escapes user-supplied text for safe embedding in a
// Markdown-formatted notification.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Link renders an inline Markdown action link.
func Link(text, url string) string {
	return "[" + text + "](" + url + ")"
}
