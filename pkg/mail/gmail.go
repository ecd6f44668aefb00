// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package mail renders confirmation mails and submits them to the Gmail
// REST API as base64url-encoded raw MIME payloads.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telekom/support-relay/pkg/config"
	"github.com/telekom/support-relay/pkg/delivery"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

const (
	defaultSendURL    = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"
	defaultProfileURL = "https://gmail.googleapis.com/gmail/v1/users/me/profile"
)

// GmailProvider implements delivery.Provider against the Gmail API.
type GmailProvider struct {
	httpClient    *http.Client
	sendURL       string
	profileURL    string
	senderAddress string
	senderName    string
	log           *zap.SugaredLogger
}

func NewGmailProvider(cfg config.Mail, log *zap.SugaredLogger) *GmailProvider {
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = "Support"
	}
	return &GmailProvider{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		sendURL:       defaultSendURL,
		profileURL:    defaultProfileURL,
		senderAddress: cfg.SenderAddress,
		senderName:    senderName,
		log:           log.Named("gmail"),
	}
}

// WithEndpoints overrides the API endpoints, for tests.
func (p *GmailProvider) WithEndpoints(sendURL, profileURL string) *GmailProvider {
	p.sendURL = sendURL
	p.profileURL = profileURL
	return p
}

type sendRequest struct {
	Raw string `json:"raw"`
}

type sendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Send builds the multipart/alternative MIME message and posts it to the
// messages.send endpoint.
func (p *GmailProvider) Send(ctx context.Context, accessToken string, msg delivery.Message) (delivery.Receipt, error) {
	raw, err := p.buildRaw(msg)
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("building MIME payload: %w", err)
	}

	payload, err := json.Marshal(sendRequest{Raw: raw})
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("marshaling send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sendURL, bytes.NewReader(payload))
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("posting to Gmail API: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var parsed apiError
		reason := ""
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			reason = fmt.Sprintf("gmail send rejected (%d %s): %s", resp.StatusCode, parsed.Error.Status, parsed.Error.Message)
		}
		return delivery.Receipt{}, &delivery.StatusError{Code: resp.StatusCode, Reason: reason}
	}

	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return delivery.Receipt{}, fmt.Errorf("decoding Gmail send response: %w", err)
	}

	p.log.Debugw("Gmail accepted message", "messageID", parsed.ID, "threadID", parsed.ThreadID)
	return delivery.Receipt{MessageID: parsed.ID, ThreadID: parsed.ThreadID}, nil
}

// Ping performs a cheap authenticated profile read; used by the status
// endpoint's latency probe.
func (p *GmailProvider) Ping(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reading Gmail profile: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return &delivery.StatusError{Code: resp.StatusCode}
	}
	return nil
}

// buildRaw renders the message to MIME with gomail and encodes it the way
// the Gmail API expects raw payloads: base64url without padding.
func (p *GmailProvider) buildRaw(msg delivery.Message) (string, error) {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.senderAddress, p.senderName)
	m.SetAddressHeader("To", msg.To, msg.DisplayName)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.PlainBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}
