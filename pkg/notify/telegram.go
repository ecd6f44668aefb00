// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/telekom/support-relay/pkg/config"
	"go.uber.org/zap"
)

const defaultAPIBaseURL = "https://api.telegram.org"

// Telegram posts notifications to a Telegram Bot API chat. The client is
// deliberately thin: one endpoint, Markdown parse mode, no long polling.
type Telegram struct {
	httpClient *http.Client
	baseURL    string
	token      string
	chatID     int64
	log        *zap.SugaredLogger
}

func NewTelegram(cfg config.Telegram, log *zap.SugaredLogger) *Telegram {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &Telegram{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      cfg.BotToken,
		chatID:     cfg.ChatID,
		log:        log.Named("telegram"),
	}
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Notify sends a Markdown message to the configured chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshaling sendMessage payload: %w", err)
	}

	url := t.baseURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to Telegram Bot API: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed sendMessageResponse
	if err := json.Unmarshal(body, &parsed); err != nil || !parsed.OK {
		desc := parsed.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("telegram sendMessage failed: status %s, %s", strconv.Itoa(resp.StatusCode), desc)
	}

	t.log.Debugw("Operator notification sent", "chatID", t.chatID, "chars", len(text))
	return nil
}
