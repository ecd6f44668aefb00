// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package fallback buffers deliveries that exhausted their retries or hit an
// auth failure, and periodically retries everything it holds once the
// credential is (possibly) alive again.
package fallback

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/telekom/support-relay/pkg/audit"
	"github.com/telekom/support-relay/pkg/delivery"
	"github.com/telekom/support-relay/pkg/metrics"
	"github.com/telekom/support-relay/pkg/notify"
	"go.uber.org/zap"
)

// interItemDelay paces resends during a drain to stay under provider rate
// limits.
const interItemDelay = time.Second

// Entry is one deferred delivery. Entries are appended by the delivery path
// on terminal failure and removed only after a verified successful resend.
type Entry struct {
	ID          string
	Recipient   string
	DisplayName string
	Body        string
	Language    string
	Kind        string // delivery.KindConfirmation or delivery.KindResponse
	EnqueuedAt  time.Time
}

// Sender retries a deferred delivery; satisfied by *delivery.Engine.
type Sender interface {
	Send(ctx context.Context, msg delivery.Message) delivery.Outcome
}

// MessageBuilder rebuilds the outbound message for an entry. Confirmation
// and response entries share the send path but use different content
// builders.
type MessageBuilder func(e Entry) (delivery.Message, error)

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Success int
	Failed  int
}

// Queue owns the in-memory list of deferred deliveries. The list supports
// concurrent append and snapshot-then-filtered-removal, so entries enqueued
// while a drain is running are never lost.
type Queue struct {
	mu      sync.Mutex
	entries []Entry

	sender   Sender
	build    MessageBuilder
	notifier notify.Notifier
	auditor  *audit.Service
	log      *zap.SugaredLogger

	draining  atomic.Bool
	itemDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewQueue(sender Sender, build MessageBuilder, notifier notify.Notifier,
	auditor *audit.Service, log *zap.SugaredLogger,
) *Queue {
	return &Queue{
		sender:    sender,
		build:     build,
		notifier:  notifier,
		auditor:   auditor,
		log:       log.Named("fallback"),
		itemDelay: interItemDelay,
		sleep:     sleepContext,
	}
}

// Enqueue records a terminally failed delivery and notifies the operator
// channel. The re-authorization broadcast for auth-related failures is not
// fired here: the guard's escalation gate already raised it exactly once for
// the ongoing failure episode.
func (q *Queue) Enqueue(ctx context.Context, outcome delivery.Outcome, e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	q.entries = append(q.entries, e)
	depth := len(q.entries)
	q.mu.Unlock()

	metrics.FallbackEnqueued.WithLabelValues(e.Kind).Inc()
	metrics.FallbackDepth.Set(float64(depth))

	reason := "unknown"
	if outcome.Failed != nil {
		reason = outcome.Failed.Reason
	}
	q.log.Warnw("Delivery deferred to fallback queue",
		"id", e.ID,
		"kind", e.Kind,
		"recipient", e.Recipient,
		"reason", reason,
		"depth", depth)

	text := fmt.Sprintf("⚠️ *Delivery deferred*\nKind: %s\nRecipient: %s\nReason: %s\nQueued: %d",
		e.Kind, notify.EscapeMarkdown(e.Recipient), notify.EscapeMarkdown(reason), depth)
	notify.BestEffort(ctx, q.notifier, q.log, text)
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Drain retries every entry currently in the queue. Successful entries are
// removed by ID so entries appended mid-drain survive untouched. Overlapping
// drains are serialized: a drain started while another runs is skipped.
func (q *Queue) Drain(ctx context.Context) DrainResult {
	if !q.draining.CompareAndSwap(false, true) {
		q.log.Infow("Drain already in progress, skipping")
		return DrainResult{}
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	snapshot := make([]Entry, len(q.entries))
	copy(snapshot, q.entries)
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return DrainResult{}
	}

	q.log.Infow("Draining fallback queue", "entries", len(snapshot))

	var result DrainResult
	for i, e := range snapshot {
		if i > 0 {
			if err := q.sleep(ctx, q.itemDelay); err != nil {
				result.Failed += len(snapshot) - i
				q.log.Warnw("Drain canceled", "remaining", len(snapshot)-i)
				break
			}
		}

		msg, err := q.build(e)
		if err != nil {
			// Leave the entry queued; removal requires a verified resend.
			result.Failed++
			q.log.Errorw("Cannot rebuild message for queued entry", "id", e.ID, "error", err)
			continue
		}

		outcome := q.sender.Send(ctx, msg)
		if outcome.OK() {
			q.remove(e.ID)
			result.Success++
			metrics.FallbackDrained.WithLabelValues("success").Inc()
		} else {
			result.Failed++
			metrics.FallbackDrained.WithLabelValues("failure").Inc()
		}
	}

	depth := q.Len()
	metrics.FallbackDepth.Set(float64(depth))
	q.auditor.Emit(audit.NewEvent(audit.EventDeliveryDrained).
		WithDetail("success", strconv.Itoa(result.Success)).
		WithDetail("failed", strconv.Itoa(result.Failed)).
		WithDetail("remaining", strconv.Itoa(depth)))
	q.log.Infow("Drain pass finished",
		"success", result.Success,
		"failed", result.Failed,
		"remaining", depth)

	text := fmt.Sprintf("🔁 *Fallback drain finished*\nResent: %d\nStill failing: %d\nRemaining: %d",
		result.Success, result.Failed, depth)
	notify.BestEffort(ctx, q.notifier, q.log, text)

	return result
}

// Run drains the queue on a fixed interval until the context is canceled.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	q.log.Infow("Fallback drain timer started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.log.Info("Fallback drain timer stopped")
			return
		case <-ticker.C:
			if q.Len() > 0 {
				q.Drain(ctx)
			}
		}
	}
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	filtered := q.entries[:0]
	for _, e := range q.entries {
		if e.ID != id {
			filtered = append(filtered, e)
		}
	}
	q.entries = filtered
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
