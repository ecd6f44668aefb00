// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

// Package audit records the relay's delivery and credential lifecycle as
// structured events. Events always go to the log sink; a Kafka sink can be
// enabled via configuration. Emission never blocks the delivery path.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/telekom/support-relay/pkg/metrics"
	"go.uber.org/zap"
)

const (
	eventBufferSize  = 256
	sinkWriteTimeout = 5 * time.Second
)

// Service fans audit events out to the configured sinks from a background
// worker so emit sites never wait on sink I/O.
type Service struct {
	sinks []Sink
	ch    chan *Event
	log   *zap.SugaredLogger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(log *zap.SugaredLogger, sinks ...Sink) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		sinks:  sinks,
		ch:     make(chan *Event, eventBufferSize),
		log:    log.Named("audit"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the background writer.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.worker()
}

// Emit queues an event for writing. If the buffer is full the event is
// dropped and counted; audit must never stall a delivery.
func (s *Service) Emit(event *Event) {
	select {
	case s.ch <- event:
	default:
		metrics.AuditEventsDropped.WithLabelValues("buffer").Inc()
		s.log.Warnw("Audit buffer full, dropping event", "type", event.Type, "id", event.ID)
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			// Flush whatever is still buffered.
			for {
				select {
				case event := <-s.ch:
					s.write(event)
				default:
					return
				}
			}
		case event := <-s.ch:
			s.write(event)
		}
	}
}

func (s *Service) write(event *Event) {
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		if err := sink.Write(ctx, event); err != nil {
			metrics.AuditEventsDropped.WithLabelValues(sink.Name()).Inc()
			s.log.Warnw("Audit sink write failed",
				"sink", sink.Name(),
				"type", event.Type,
				"error", err)
		}
		cancel()
	}
}

// Stop drains the buffer and closes all sinks.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			s.log.Warnw("Error closing audit sink", "sink", sink.Name(), "error", err)
		}
	}
}
