// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event the relay records.
type EventType string

const (
	// Delivery lifecycle events
	EventDeliverySent     EventType = "delivery.sent"
	EventDeliveryFailed   EventType = "delivery.failed"
	EventDeliveryRequeued EventType = "delivery.requeued"
	EventDeliveryDrained  EventType = "delivery.drained"

	// Credential lifecycle events
	EventCredentialUpdated EventType = "credential.updated"
	EventReauthRejected    EventType = "reauth.rejected"
	EventReauthFailed      EventType = "reauth.failed"
)

// Event is a single audit record. Recipient is the mailbox a delivery event
// concerns; credential events carry the authorizing identity instead.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Recipient string            `json:"recipient,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// NewEvent creates an event with ID and timestamp filled in.
func NewEvent(t EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Detail:    map[string]string{},
	}
}

// WithRecipient sets the recipient, for chaining at emit sites.
func (e *Event) WithRecipient(recipient string) *Event {
	e.Recipient = recipient
	return e
}

// WithDetail adds one detail field, for chaining at emit sites.
func (e *Event) WithDetail(key, value string) *Event {
	e.Detail[key] = value
	return e
}
