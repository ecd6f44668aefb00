// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"

	"github.com/telekom/support-relay/pkg/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GmailScope grants exactly what the relay needs: composing and sending.
const GmailScope = "https://www.googleapis.com/auth/gmail.send"

// GoogleMinter mints Gmail access tokens from a refresh secret via the
// Google token endpoint. Each Mint performs a real refresh-grant exchange;
// this doubles as the liveness probe.
type GoogleMinter struct {
	cfg *oauth2.Config
}

func NewGoogleMinter(cfg config.Google) *GoogleMinter {
	return &GoogleMinter{cfg: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{GmailScope},
	}}
}

func (m *GoogleMinter) Mint(ctx context.Context, refreshSecret string) (string, error) {
	tok, err := m.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshSecret}).Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
