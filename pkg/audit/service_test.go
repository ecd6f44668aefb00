// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/support-relay/pkg/system"
)

// captureSink records every event it receives.
type captureSink struct {
	mu     sync.Mutex
	events []*Event
	closed bool
	err    error
}

func (s *captureSink) Write(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestEventChaining(t *testing.T) {
	e := NewEvent(EventDeliverySent).
		WithRecipient("jane@example.com").
		WithDetail("kind", "confirmation").
		WithDetail("messageID", "m-1")

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, EventDeliverySent, e.Type)
	assert.Equal(t, "jane@example.com", e.Recipient)
	assert.Equal(t, "confirmation", e.Detail["kind"])
	assert.Equal(t, "m-1", e.Detail["messageID"])
}

func TestServiceDelivery(t *testing.T) {
	t.Run("events reach every sink", func(t *testing.T) {
		first, second := &captureSink{}, &captureSink{}
		svc := NewService(system.NewTestLogger(), first, second)
		svc.Start()

		svc.Emit(NewEvent(EventDeliverySent))
		svc.Emit(NewEvent(EventCredentialUpdated))
		svc.Stop()

		assert.Equal(t, 2, first.count())
		assert.Equal(t, 2, second.count())
		assert.True(t, first.closed)
		assert.True(t, second.closed)
	})

	t.Run("failing sink does not block the others", func(t *testing.T) {
		failing := &captureSink{err: assert.AnError}
		healthy := &captureSink{}
		svc := NewService(system.NewTestLogger(), failing, healthy)
		svc.Start()

		svc.Emit(NewEvent(EventDeliveryFailed))
		svc.Stop()

		assert.Equal(t, 1, healthy.count())
	})

	t.Run("emit never blocks on a full buffer", func(t *testing.T) {
		// Not started: the buffer fills and overflow must be dropped, not
		// deadlocked on.
		svc := NewService(system.NewTestLogger(), &captureSink{})

		done := make(chan struct{})
		go func() {
			for i := 0; i < eventBufferSize+50; i++ {
				svc.Emit(NewEvent(EventDeliverySent))
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Emit blocked on a full buffer")
		}
	})

	t.Run("stop flushes buffered events", func(t *testing.T) {
		sink := &captureSink{}
		svc := NewService(system.NewTestLogger(), sink)
		svc.Start()
		for i := 0; i < 20; i++ {
			svc.Emit(NewEvent(EventDeliverySent))
		}
		svc.Stop()
		assert.Equal(t, 20, sink.count())
	})
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(system.NewTestZapLogger())
	require.Equal(t, "log", sink.Name())

	err := sink.Write(context.Background(), NewEvent(EventReauthRejected).
		WithRecipient("intruder@example.com").
		WithDetail("account", "intruder@example.com"))
	assert.NoError(t, err)
	assert.NoError(t, sink.Close())
}
