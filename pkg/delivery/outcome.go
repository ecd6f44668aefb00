// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package delivery

// Sent carries the provider identifiers of an accepted delivery.
type Sent struct {
	MessageID string
	ThreadID  string
}

// Failure describes a terminal delivery failure. AuthRelated failures are
// never retryable: they are escalated to the guard instead.
type Failure struct {
	Reason      string
	Class       Class
	Retryable   bool
	AuthRelated bool
}

// Outcome is the tagged result of a send: exactly one of Sent or Failed is
// set.
type Outcome struct {
	Sent   *Sent
	Failed *Failure
}

func (o Outcome) OK() bool { return o.Sent != nil }

// SentOutcome builds a successful outcome.
func SentOutcome(messageID, threadID string) Outcome {
	return Outcome{Sent: &Sent{MessageID: messageID, ThreadID: threadID}}
}

// FailedOutcome builds a failure outcome; retryability follows from the
// class.
func FailedOutcome(reason string, class Class) Outcome {
	return Outcome{Failed: &Failure{
		Reason:      reason,
		Class:       class,
		Retryable:   class == ClassTransient,
		AuthRelated: class == ClassAuth,
	}}
}
