// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// Class is the closed classification of a provider failure. All error
// inspection is centralized here so the guard, the engine and the fallback
// queue agree on what counts as an auth failure.
type Class string

const (
	// ClassAuth means the credential itself is invalid, expired or revoked.
	// Never retried in place; escalated instead.
	ClassAuth Class = "auth"
	// ClassTransient covers network resets, timeouts and 429/5xx responses.
	// Retried with exponential backoff.
	ClassTransient Class = "transient"
	// ClassValidation covers malformed requests the provider rejected.
	// Retrying cannot help.
	ClassValidation Class = "validation"
	// ClassUnknown is anything the table does not recognize. Treated as
	// non-retryable.
	ClassUnknown Class = "unknown"
)

// StatusError is returned by providers for non-2xx HTTP responses so the
// status code survives into classification.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return "provider returned status " + strconv.Itoa(e.Code) + " " + http.StatusText(e.Code)
	}
	return e.Reason
}

// authErrorCodes enumerates the OAuth2 error codes that indicate a dead
// grant rather than a transient condition.
var authErrorCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
	"access_denied":       true,
	"invalid_token":       true,
}

// transientSubstrings match wrapped network errors that carry no type
// information by the time they reach classification.
var transientSubstrings = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected EOF",
	"i/o timeout",
	"TLS handshake timeout",
	"no such host",
}

// Classify maps an error to its failure class.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if authErrorCodes[retrieveErr.ErrorCode] {
			return ClassAuth
		}
		if retrieveErr.Response != nil {
			return classifyStatus(retrieveErr.Response.StatusCode)
		}
		return ClassAuth
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	msg := err.Error()
	for _, code := range []string{"invalid_grant", "invalid_client", "unauthorized_client"} {
		if strings.Contains(msg, code) {
			return ClassAuth
		}
	}
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return ClassTransient
		}
	}

	return ClassUnknown
}

func classifyStatus(code int) Class {
	switch code {
	case 401, 403:
		return ClassAuth
	case 429, 500, 502, 503:
		return ClassTransient
	case 400, 404, 413, 422:
		return ClassValidation
	default:
		return ClassUnknown
	}
}
