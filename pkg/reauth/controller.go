// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package reauth implements the operator-driven OAuth2 handshake that
// replaces an expired refresh credential. The flow is single-tenant: exactly
// one mailbox address may ever authorize, everything else is rejected before
// it reaches the credential store.
package reauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/telekom/support-relay/pkg/audit"
	"github.com/telekom/support-relay/pkg/config"
	"github.com/telekom/support-relay/pkg/credstore"
	"github.com/telekom/support-relay/pkg/delivery"
	"github.com/telekom/support-relay/pkg/notify"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleIssuer    = "https://accounts.google.com"
	stateCookieName = "oauth_state"
	stateCookieAge  = 10 * 60 // seconds

	// Result pages, served statically under /pages.
	pageSuccess      = "/pages/oauth/success.html"
	pageWrongAccount = "/pages/oauth/wrong-account.html"
	pageError        = "/pages/oauth/error.html"
	pageNoCode       = "/pages/oauth/no-code.html"
)

// identityFunc resolves the authorized account's address from the exchanged
// token. Production uses the Google OIDC UserInfo endpoint; tests inject
// their own.
type identityFunc func(ctx context.Context, tok *oauth2.Token) (string, error)

type Controller struct {
	cfg      config.Google
	oauth    *oauth2.Config
	store    credstore.Store
	guard    *delivery.Guard
	notifier notify.Notifier
	auditor  *audit.Service
	log      *zap.SugaredLogger

	identity identityFunc

	oidcMu       sync.Mutex
	oidcProvider *oidc.Provider
	newProvider  func(ctx context.Context) (*oidc.Provider, error)
}

func NewController(cfg config.Google, publicBaseURL string, store credstore.Store,
	guard *delivery.Guard, notifier notify.Notifier, auditor *audit.Service,
	log *zap.SugaredLogger,
) *Controller {
	ctrl := &Controller{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  publicBaseURL + "/oauth/callback",
			Scopes:       []string{delivery.GmailScope, oidc.ScopeOpenID, "email"},
		},
		store:    store,
		guard:    guard,
		notifier: notifier,
		auditor:  auditor,
		log:      log.Named("reauth"),
	}
	ctrl.identity = ctrl.userInfoIdentity
	ctrl.newProvider = func(ctx context.Context) (*oidc.Provider, error) {
		return oidc.NewProvider(ctx, googleIssuer)
	}
	return ctrl
}

func (ctrl *Controller) BasePath() string { return "oauth" }

func (ctrl *Controller) Handlers() []gin.HandlerFunc { return nil }

func (ctrl *Controller) Register(rg *gin.RouterGroup) error {
	rg.GET("/auth", ctrl.handleAuth)
	rg.GET("/callback", ctrl.handleCallback)
	rg.GET("/test", ctrl.handleTest)
	return nil
}

func (ctrl *Controller) configured() bool {
	return ctrl.cfg.ClientID != "" && ctrl.cfg.ClientSecret != "" && ctrl.cfg.AllowedAccount != ""
}

// handleAuth starts a fresh handshake: every callback begins a new run, no
// state survives across requests beyond the CSRF cookie.
func (ctrl *Controller) handleAuth(c *gin.Context) {
	if !ctrl.configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Re-authorization is not configured"})
		return
	}

	state := uuid.NewString()
	c.SetCookie(stateCookieName, state, stateCookieAge, "/oauth", "", false, true)

	// Offline access plus forced re-consent so Google issues a refresh
	// secret even when consent was granted before.
	url := ctrl.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.Redirect(http.StatusFound, url)
}

func (ctrl *Controller) handleCallback(c *gin.Context) {
	if !ctrl.configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Re-authorization is not configured"})
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		ctrl.log.Warnw("Consent denied or provider error on callback", "error", errParam)
		c.Redirect(http.StatusFound, pageError)
		return
	}

	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, pageNoCode)
		return
	}

	if cookie, err := c.Cookie(stateCookieName); err != nil || cookie != c.Query("state") {
		ctrl.log.Warnw("OAuth state mismatch on callback", "ip", c.ClientIP())
		c.Redirect(http.StatusFound, pageError)
		return
	}

	tok, err := ctrl.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		ctrl.log.Errorw("Authorization code exchange failed", "error", err)
		ctrl.auditor.Emit(audit.NewEvent(audit.EventReauthFailed).WithDetail("stage", "exchange"))
		c.Redirect(http.StatusFound, pageError)
		return
	}

	// Google omits the refresh secret when it considers consent already
	// granted. ApprovalForce should prevent that, but if it happens the
	// operator must revoke access and retry.
	if tok.RefreshToken == "" {
		ctrl.log.Errorw("Provider returned no refresh secret; operator must revoke prior consent and retry")
		ctrl.auditor.Emit(audit.NewEvent(audit.EventReauthFailed).WithDetail("stage", "no-refresh-secret"))
		c.Redirect(http.StatusFound, pageError)
		return
	}

	account, err := ctrl.identity(c.Request.Context(), tok)
	if err != nil {
		ctrl.log.Errorw("Cannot resolve authorized identity", "error", err)
		ctrl.auditor.Emit(audit.NewEvent(audit.EventReauthFailed).WithDetail("stage", "identity"))
		c.Redirect(http.StatusFound, pageError)
		return
	}

	if account != ctrl.cfg.AllowedAccount {
		ctrl.log.Warnw("Re-authorization attempted by non-allow-listed account", "account", account)
		ctrl.auditor.Emit(audit.NewEvent(audit.EventReauthRejected).WithDetail("account", account))
		c.Redirect(http.StatusFound, pageWrongAccount)
		return
	}

	if err := ctrl.store.Save(&credstore.Record{
		RefreshSecret: tok.RefreshToken,
		UpdatedAt:     time.Now().UTC(),
		UpdatedBy:     account,
	}); err != nil {
		ctrl.log.Errorw("Persisting refreshed credential failed", "error", err)
		ctrl.auditor.Emit(audit.NewEvent(audit.EventReauthFailed).WithDetail("stage", "persist"))
		c.Redirect(http.StatusFound, pageError)
		return
	}

	ctrl.guard.SetCredential(tok.RefreshToken)
	ctrl.auditor.Emit(audit.NewEvent(audit.EventCredentialUpdated).WithDetail("account", account))
	ctrl.log.Infow("Refresh credential replaced", "account", account)

	notify.BestEffort(c.Request.Context(), ctrl.notifier, ctrl.log,
		fmt.Sprintf("✅ *Mail credential re-authorized* by %s", notify.EscapeMarkdown(account)))

	c.Redirect(http.StatusFound, pageSuccess)
}

// handleTest forces a live probe with the current credential, bypassing the
// liveness cache. Handy right after a handshake.
func (ctrl *Controller) handleTest(c *gin.Context) {
	live := ctrl.guard.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"configured": ctrl.guard.Configured(),
		"live":       live,
	})
}

// provider returns the shared OIDC provider, initializing it on first use.
// Only a successful init is cached: re-authorization is the recovery path for
// a dead credential, so a transient discovery failure must not disable it
// until the next restart.
func (ctrl *Controller) provider(ctx context.Context) (*oidc.Provider, error) {
	ctrl.oidcMu.Lock()
	defer ctrl.oidcMu.Unlock()
	if ctrl.oidcProvider != nil {
		return ctrl.oidcProvider, nil
	}
	provider, err := ctrl.newProvider(ctx)
	if err != nil {
		return nil, err
	}
	ctrl.oidcProvider = provider
	return provider, nil
}

func (ctrl *Controller) userInfoIdentity(ctx context.Context, tok *oauth2.Token) (string, error) {
	provider, err := ctrl.provider(ctx)
	if err != nil {
		return "", fmt.Errorf("initializing OIDC provider: %w", err)
	}

	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return "", fmt.Errorf("fetching userinfo: %w", err)
	}
	return info.Email, nil
}
