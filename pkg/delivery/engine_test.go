// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/support-relay/pkg/system"
)

// scriptedProvider returns the scripted errors in order, then succeeds.
type scriptedProvider struct {
	mu     sync.Mutex
	script []error
	calls  int
}

func (p *scriptedProvider) Send(_ context.Context, _ string, _ Message) (Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= len(p.script) {
		if err := p.script[p.calls-1]; err != nil {
			return Receipt{}, err
		}
	}
	return Receipt{MessageID: "m-1", ThreadID: "t-1"}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestEngine(t *testing.T, provider Provider, maxAttempts int) (*Engine, *[]time.Duration) {
	t.Helper()
	g := NewGuard(&fakeMinter{token: "at-1"}, "refresh-1", system.NewTestLogger())
	e := NewEngine(g, provider, maxAttempts, system.NewTestLogger())

	var waits []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return e, &waits
}

func TestEngineSend(t *testing.T) {
	ctx := context.Background()
	msg := Message{Kind: KindConfirmation, To: "user@example.com", Subject: "hi"}

	t.Run("first attempt success", func(t *testing.T) {
		provider := &scriptedProvider{}
		e, waits := newTestEngine(t, provider, 3)

		outcome := e.Send(ctx, msg)
		require.True(t, outcome.OK())
		assert.Equal(t, "m-1", outcome.Sent.MessageID)
		assert.Equal(t, "t-1", outcome.Sent.ThreadID)
		assert.Equal(t, 1, provider.callCount())
		assert.Empty(t, *waits)
	})

	t.Run("transient failures retry with doubling backoff", func(t *testing.T) {
		provider := &scriptedProvider{script: []error{
			&StatusError{Code: 503},
			&StatusError{Code: 503},
		}}
		e, waits := newTestEngine(t, provider, 3)

		outcome := e.Send(ctx, msg)
		require.True(t, outcome.OK())
		assert.Equal(t, 3, provider.callCount())
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
	})

	t.Run("retry budget exhausted yields a retryable failure", func(t *testing.T) {
		provider := &scriptedProvider{script: []error{
			&StatusError{Code: 503},
			&StatusError{Code: 503},
			&StatusError{Code: 503},
		}}
		e, waits := newTestEngine(t, provider, 3)

		outcome := e.Send(ctx, msg)
		require.False(t, outcome.OK())
		assert.Equal(t, ClassTransient, outcome.Failed.Class)
		assert.True(t, outcome.Failed.Retryable)
		assert.False(t, outcome.Failed.AuthRelated)
		assert.Equal(t, 3, provider.callCount(), "no fourth attempt past the budget")
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
	})

	t.Run("auth failure short-circuits and invalidates the guard", func(t *testing.T) {
		provider := &scriptedProvider{script: []error{
			&StatusError{Code: 401, Reason: "invalid credentials"},
		}}
		e, waits := newTestEngine(t, provider, 3)

		outcome := e.Send(ctx, msg)
		require.False(t, outcome.OK())
		assert.Equal(t, ClassAuth, outcome.Failed.Class)
		assert.True(t, outcome.Failed.AuthRelated)
		assert.False(t, outcome.Failed.Retryable, "auth failures are never retried in place")
		assert.Equal(t, 1, provider.callCount())
		assert.Empty(t, *waits)
		assert.False(t, e.Guard().Snapshot().Live)
	})

	t.Run("validation failure is terminal without retry", func(t *testing.T) {
		provider := &scriptedProvider{script: []error{
			&StatusError{Code: 400, Reason: "invalid to header"},
		}}
		e, waits := newTestEngine(t, provider, 3)

		outcome := e.Send(ctx, msg)
		require.False(t, outcome.OK())
		assert.Equal(t, ClassValidation, outcome.Failed.Class)
		assert.False(t, outcome.Failed.Retryable)
		assert.Equal(t, 1, provider.callCount())
		assert.Empty(t, *waits)
	})

	t.Run("success re-arms the guard after an episode", func(t *testing.T) {
		provider := &scriptedProvider{}
		e, _ := newTestEngine(t, provider, 3)

		e.Guard().Invalidate("revoked")
		require.True(t, e.Guard().Snapshot().PendingNotification)

		outcome := e.Send(ctx, msg)
		require.True(t, outcome.OK())
		snap := e.Guard().Snapshot()
		assert.True(t, snap.Live)
		assert.False(t, snap.PendingNotification)
	})

	t.Run("dead credential blocks the attempt entirely", func(t *testing.T) {
		provider := &scriptedProvider{}
		g := NewGuard(&fakeMinter{err: &StatusError{Code: 401}}, "refresh-1", system.NewTestLogger())
		e := NewEngine(g, provider, 3, system.NewTestLogger())

		outcome := e.Send(ctx, msg)
		require.False(t, outcome.OK())
		assert.Equal(t, ClassAuth, outcome.Failed.Class)
		assert.Equal(t, 0, provider.callCount(), "no provider call without a live credential")
	})

	t.Run("cancellation during backoff aborts the retry loop", func(t *testing.T) {
		provider := &scriptedProvider{script: []error{
			&StatusError{Code: 503},
			&StatusError{Code: 503},
		}}
		e, _ := newTestEngine(t, provider, 3)
		e.sleep = func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		}

		outcome := e.Send(ctx, msg)
		require.False(t, outcome.OK())
		assert.Equal(t, ClassTransient, outcome.Failed.Class)
		assert.Equal(t, 1, provider.callCount())
	})
}

func TestEngineDefaultAttempts(t *testing.T) {
	g := NewGuard(&fakeMinter{token: "at-1"}, "refresh-1", system.NewTestLogger())
	e := NewEngine(g, &scriptedProvider{}, 0, system.NewTestLogger())
	assert.Equal(t, 3, e.maxAttempts)
}
