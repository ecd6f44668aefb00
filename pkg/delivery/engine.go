// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"time"

	"github.com/telekom/support-relay/pkg/metrics"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 3

// Message kinds. Confirmations go out when a support request arrives;
// responses are operator replies relayed later.
const (
	KindConfirmation = "confirmation"
	KindResponse     = "response"
)

// Message is one outbound mail as the engine sees it. Rendering to MIME is
// the provider's business.
type Message struct {
	Kind        string
	To          string
	DisplayName string
	Subject     string
	PlainBody   string
	HTMLBody    string
}

// Receipt carries the provider identifiers of an accepted message.
type Receipt struct {
	MessageID string
	ThreadID  string
}

// Provider performs the actual provider call with a short-lived access
// token. Implementations must return *StatusError for non-2xx responses so
// classification sees the status code.
type Provider interface {
	Send(ctx context.Context, accessToken string, msg Message) (Receipt, error)
}

// Engine sends messages with bounded sequential retry. Auth-class failures
// are never retried in place: the guard is invalidated and the outcome is
// returned immediately so the caller can defer the delivery.
type Engine struct {
	guard       *Guard
	provider    Provider
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	log         *zap.SugaredLogger
}

func NewEngine(guard *Guard, provider Provider, maxAttempts int, log *zap.SugaredLogger) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Engine{
		guard:       guard,
		provider:    provider,
		maxAttempts: maxAttempts,
		sleep:       sleepContext,
		log:         log.Named("delivery"),
	}
}

// Guard exposes the engine's token guard for components that share it.
func (e *Engine) Guard() *Guard {
	return e.guard
}

// Send attempts the delivery, retrying transient failures with exponential
// backoff (1s, 2s, ...) up to maxAttempts. Attempts are strictly sequential;
// there is never more than one in-flight provider call per invocation.
func (e *Engine) Send(ctx context.Context, msg Message) Outcome {
	if !e.guard.EnsureLive(ctx) {
		metrics.DeliveryFailed.WithLabelValues(msg.Kind, string(ClassAuth)).Inc()
		return FailedOutcome("refresh credential missing or not live", ClassAuth)
	}

	backoff := time.Second
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		metrics.DeliveryAttempts.Inc()

		accessToken, err := e.guard.AccessToken(ctx)
		if err == nil {
			var receipt Receipt
			receipt, err = e.provider.Send(ctx, accessToken, msg)
			if err == nil {
				e.guard.MarkLive()
				metrics.DeliverySent.WithLabelValues(msg.Kind).Inc()
				e.log.Infow("Delivery accepted by provider",
					"kind", msg.Kind,
					"attempt", attempt,
					"messageID", receipt.MessageID)
				return SentOutcome(receipt.MessageID, receipt.ThreadID)
			}
		}

		class := Classify(err)
		if class == ClassAuth {
			e.log.Errorw("Delivery failed with auth-class error, escalating",
				"kind", msg.Kind,
				"attempt", attempt,
				"error", err)
			e.guard.Invalidate(err.Error())
			metrics.DeliveryFailed.WithLabelValues(msg.Kind, string(ClassAuth)).Inc()
			return FailedOutcome(err.Error(), ClassAuth)
		}

		if class == ClassTransient && attempt < e.maxAttempts {
			e.log.Warnw("Delivery attempt failed, retrying",
				"kind", msg.Kind,
				"attempt", attempt,
				"error", err,
				"retryIn", backoff)
			if sleepErr := e.sleep(ctx, backoff); sleepErr != nil {
				metrics.DeliveryFailed.WithLabelValues(msg.Kind, string(ClassTransient)).Inc()
				return FailedOutcome("canceled while waiting to retry: "+sleepErr.Error(), ClassTransient)
			}
			backoff *= 2
			continue
		}

		e.log.Errorw("Delivery failed terminally",
			"kind", msg.Kind,
			"attempts", attempt,
			"class", class,
			"error", err)
		metrics.DeliveryFailed.WithLabelValues(msg.Kind, string(class)).Inc()
		return FailedOutcome(err.Error(), class)
	}

	// The loop always returns; this is for the compiler.
	return FailedOutcome("retry budget exhausted", ClassTransient)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
