// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package relay wires the support-request intake to the operator channel,
// the delivery engine and the fallback queue.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/telekom/support-relay/pkg/audit"
	"github.com/telekom/support-relay/pkg/delivery"
	"github.com/telekom/support-relay/pkg/fallback"
	"github.com/telekom/support-relay/pkg/mail"
	"github.com/telekom/support-relay/pkg/notify"
	"go.uber.org/zap"
)

// confirmationTimeout bounds the background confirmation send including all
// backoff waits.
const confirmationTimeout = 2 * time.Minute

// SupportRequest is a validated inbound support request.
type SupportRequest struct {
	Name     string
	Email    string
	Text     string
	Language string
}

// Service orchestrates the intake path: operator notification first, then a
// best-effort confirmation mail whose failure feeds the fallback queue but
// never the webhook response.
type Service struct {
	engine   *delivery.Engine
	queue    *fallback.Queue
	notifier notify.Notifier
	auditor  *audit.Service
	branding string
	log      *zap.SugaredLogger
}

func NewService(engine *delivery.Engine, queue *fallback.Queue, notifier notify.Notifier,
	auditor *audit.Service, brandingName string, log *zap.SugaredLogger,
) *Service {
	return &Service{
		engine:   engine,
		queue:    queue,
		notifier: notifier,
		auditor:  auditor,
		branding: brandingName,
		log:      log.Named("relay"),
	}
}

// HandleSupportRequest forwards the request to the operator channel and
// kicks off the confirmation mail in the background. It returns as soon as
// the notification is dispatched; the caller can answer the webhook
// immediately.
func (s *Service) HandleSupportRequest(ctx context.Context, req SupportRequest) {
	text := fmt.Sprintf("📨 *New support request*\nFrom: %s (%s)\nLanguage: %s\n\n%s",
		notify.EscapeMarkdown(req.Name),
		notify.EscapeMarkdown(req.Email),
		languageOrDefault(req.Language),
		notify.EscapeMarkdown(req.Text))
	notify.BestEffort(ctx, s.notifier, s.log, text)

	go s.sendConfirmation(req)
}

func (s *Service) sendConfirmation(req SupportRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), confirmationTimeout)
	defer cancel()

	msg, err := s.confirmationMessage(req.Name, req.Text, req.Language, req.Email)
	if err != nil {
		s.log.Errorw("Cannot render confirmation mail", "recipient", req.Email, "error", err)
		return
	}

	outcome := s.engine.Send(ctx, msg)
	if outcome.OK() {
		s.auditor.Emit(audit.NewEvent(audit.EventDeliverySent).
			WithRecipient(req.Email).
			WithDetail("kind", delivery.KindConfirmation).
			WithDetail("messageID", outcome.Sent.MessageID))
		return
	}

	// Validation failures are terminal: resending the identical message can
	// only fail the same way, so they never enter the queue.
	if outcome.Failed.Class == delivery.ClassValidation {
		s.auditor.Emit(audit.NewEvent(audit.EventDeliveryFailed).
			WithRecipient(req.Email).
			WithDetail("kind", delivery.KindConfirmation).
			WithDetail("reason", outcome.Failed.Reason))
		s.log.Errorw("Confirmation rejected as invalid, dropped",
			"recipient", req.Email, "reason", outcome.Failed.Reason)
		return
	}

	s.auditor.Emit(audit.NewEvent(audit.EventDeliveryRequeued).
		WithRecipient(req.Email).
		WithDetail("kind", delivery.KindConfirmation).
		WithDetail("reason", outcome.Failed.Reason).
		WithDetail("class", string(outcome.Failed.Class)))

	s.queue.Enqueue(ctx, outcome, fallback.Entry{
		Recipient:   req.Email,
		DisplayName: req.Name,
		Body:        req.Text,
		Language:    req.Language,
		Kind:        delivery.KindConfirmation,
	})
}

// SendResponse relays an operator answer to the original requester.
// Retryable and auth-class failures defer to the fallback queue like
// confirmations; validation failures are terminal and reported back to the
// caller unqueued.
func (s *Service) SendResponse(ctx context.Context, recipient, displayName, text, language string) delivery.Outcome {
	msg, err := s.responseMessage(displayName, text, language, recipient)
	if err != nil {
		s.log.Errorw("Cannot render response mail", "recipient", recipient, "error", err)
		s.auditor.Emit(audit.NewEvent(audit.EventDeliveryFailed).
			WithRecipient(recipient).
			WithDetail("kind", delivery.KindResponse).
			WithDetail("reason", err.Error()))
		return delivery.FailedOutcome(err.Error(), delivery.ClassValidation)
	}

	outcome := s.engine.Send(ctx, msg)
	if outcome.OK() {
		s.auditor.Emit(audit.NewEvent(audit.EventDeliverySent).
			WithRecipient(recipient).
			WithDetail("kind", delivery.KindResponse).
			WithDetail("messageID", outcome.Sent.MessageID))
		return outcome
	}

	if outcome.Failed.Class == delivery.ClassValidation {
		s.auditor.Emit(audit.NewEvent(audit.EventDeliveryFailed).
			WithRecipient(recipient).
			WithDetail("kind", delivery.KindResponse).
			WithDetail("reason", outcome.Failed.Reason))
		s.log.Errorw("Response rejected as invalid, dropped",
			"recipient", recipient, "reason", outcome.Failed.Reason)
		return outcome
	}

	s.auditor.Emit(audit.NewEvent(audit.EventDeliveryRequeued).
		WithRecipient(recipient).
		WithDetail("kind", delivery.KindResponse).
		WithDetail("reason", outcome.Failed.Reason))

	s.queue.Enqueue(ctx, outcome, fallback.Entry{
		Recipient:   recipient,
		DisplayName: displayName,
		Body:        text,
		Language:    language,
		Kind:        delivery.KindResponse,
	})
	return outcome
}

// BuildEntryMessage is the fallback queue's MessageBuilder: confirmation and
// response entries share the send path but use different content builders.
func (s *Service) BuildEntryMessage(e fallback.Entry) (delivery.Message, error) {
	switch e.Kind {
	case delivery.KindConfirmation:
		return s.confirmationMessage(e.DisplayName, e.Body, e.Language, e.Recipient)
	case delivery.KindResponse:
		return s.responseMessage(e.DisplayName, e.Body, e.Language, e.Recipient)
	default:
		return delivery.Message{}, fmt.Errorf("unknown fallback entry kind %q", e.Kind)
	}
}

func (s *Service) confirmationMessage(displayName, text, language, recipient string) (delivery.Message, error) {
	plain, html, err := mail.RenderConfirmation(mail.ConfirmationParams{
		DisplayName:  displayName,
		RequestText:  text,
		Language:     language,
		BrandingName: s.branding,
	})
	if err != nil {
		return delivery.Message{}, err
	}
	return delivery.Message{
		Kind:        delivery.KindConfirmation,
		To:          recipient,
		DisplayName: displayName,
		Subject:     mail.ConfirmationSubject(language, s.branding),
		PlainBody:   plain,
		HTMLBody:    html,
	}, nil
}

func (s *Service) responseMessage(displayName, text, language, recipient string) (delivery.Message, error) {
	plain, html, err := mail.RenderResponse(mail.ResponseParams{
		DisplayName:  displayName,
		ResponseText: text,
		Language:     language,
		BrandingName: s.branding,
	})
	if err != nil {
		return delivery.Message{}, err
	}
	return delivery.Message{
		Kind:        delivery.KindResponse,
		To:          recipient,
		DisplayName: displayName,
		Subject:     mail.ResponseSubject(language, s.branding),
		PlainBody:   plain,
		HTMLBody:    html,
	}, nil
}

func languageOrDefault(language string) string {
	if language == "" {
		return "en"
	}
	return language
}
