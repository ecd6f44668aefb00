// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package delivery implements the credential-lifecycle and
// delivery-resilience core of the relay: the token guard that keeps the
// OAuth2 refresh credential alive, the failure classification table, and the
// engine that sends mail with bounded retry.
package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/telekom/support-relay/pkg/metrics"
	"go.uber.org/zap"
)

// livenessWindow bounds probe frequency under burst traffic: a successful
// probe is trusted for this long before the guard talks to the provider
// again.
const livenessWindow = 5 * time.Minute

// Minter exchanges the long-lived refresh secret for a short-lived access
// token. The production implementation lives in oauth.go; tests substitute
// their own.
type Minter interface {
	Mint(ctx context.Context, refreshSecret string) (string, error)
}

// Guard wraps the single refresh credential. It caches liveness, classifies
// probe failures and raises at most one escalation per failure episode.
type Guard struct {
	mu                  sync.Mutex
	minter              Minter
	refreshSecret       string
	live                bool
	lastCheckedAt       time.Time
	pendingNotification bool

	escalate func(reason string)
	window   time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger
}

// NewGuard creates a guard around the given refresh secret. An empty secret
// means credential-less mode: EnsureLive reports false until SetCredential
// installs one.
func NewGuard(minter Minter, refreshSecret string, log *zap.SugaredLogger) *Guard {
	return &Guard{
		minter:        minter,
		refreshSecret: refreshSecret,
		window:        livenessWindow,
		now:           time.Now,
		log:           log.Named("token-guard"),
	}
}

// SetEscalationHook installs the hook invoked once per failure episode when
// the credential turns out to be dead. The hook runs on its own goroutine
// and any panic or error inside it is contained: the caller's response path
// is never blocked or failed by escalation side effects.
func (g *Guard) SetEscalationHook(hook func(reason string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.escalate = hook
}

// Configured reports whether a refresh secret is installed at all.
func (g *Guard) Configured() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshSecret != ""
}

// EnsureLive reports whether the credential is currently usable. A probe
// that succeeded within the liveness window short-circuits without a network
// round trip. In credential-less mode the first blocked check raises the
// escalation (episode-gated) so the operator gets the re-authorization link,
// not just deferral notices.
func (g *Guard) EnsureLive(ctx context.Context) bool {
	g.mu.Lock()
	if g.refreshSecret == "" {
		g.escalateLocked("no mail credential configured")
		g.mu.Unlock()
		return false
	}
	if g.live && g.now().Sub(g.lastCheckedAt) < g.window {
		g.mu.Unlock()
		return true
	}
	secret := g.refreshSecret
	g.mu.Unlock()

	accessToken, err := g.minter.Mint(ctx, secret)
	if err == nil && accessToken == "" {
		err = errors.New("provider returned no access token")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastCheckedAt = g.now()
	if err == nil {
		metrics.TokenProbes.WithLabelValues("success").Inc()
		g.live = true
		g.pendingNotification = false
		return true
	}

	metrics.TokenProbes.WithLabelValues("failure").Inc()
	g.live = false
	if Classify(err) == ClassAuth {
		g.log.Errorw("Credential probe failed with auth-class error", "error", err)
		g.escalateLocked(err.Error())
	} else {
		g.log.Warnw("Credential probe failed", "error", err, "class", Classify(err))
	}
	return false
}

// AccessToken mints a fresh short-lived access token for one provider call.
func (g *Guard) AccessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	secret := g.refreshSecret
	g.mu.Unlock()
	if secret == "" {
		return "", errors.New("no refresh credential configured")
	}
	return g.minter.Mint(ctx, secret)
}

// Refresh forces a fresh probe regardless of the liveness cache. A success
// clears the notification suppression so a later failure alerts again.
func (g *Guard) Refresh(ctx context.Context) bool {
	g.mu.Lock()
	g.live = false
	g.lastCheckedAt = time.Time{}
	g.mu.Unlock()

	ok := g.EnsureLive(ctx)
	if ok {
		metrics.TokenRefreshes.WithLabelValues("success").Inc()
		g.log.Infow("Credential refreshed and verified live")
	} else {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
	}
	return ok
}

// Invalidate marks the credential dead after an auth-class send failure and
// raises the escalation (once per episode).
func (g *Guard) Invalidate(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live = false
	g.escalateLocked(reason)
}

// MarkLive records that a provider call just succeeded with this credential.
// It clears any standing notification suppression but does not count as a
// probe: lastCheckedAt moves only when the guard itself checks.
func (g *Guard) MarkLive() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live = true
	g.pendingNotification = false
}

// SetCredential installs a fresh refresh secret (from re-authorization or
// provisioning) and resets the episode state.
func (g *Guard) SetCredential(secret string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshSecret = secret
	g.live = false
	g.lastCheckedAt = time.Time{}
	g.pendingNotification = false
}

// Monitor re-checks the credential on a fixed interval until the context is
// canceled, so a dead credential is noticed (and escalated) even when no
// traffic arrives. Runs independently of the fallback drain timer.
func (g *Guard) Monitor(ctx context.Context, interval time.Duration) {
	g.log.Infow("Credential monitor started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.log.Info("Credential monitor stopped")
			return
		case <-ticker.C:
			if g.Configured() {
				g.EnsureLive(ctx)
			}
		}
	}
}

// escalateLocked fires the escalation hook unless one is already pending for
// this failure episode. Callers must hold g.mu.
func (g *Guard) escalateLocked(reason string) {
	if g.pendingNotification {
		return
	}
	g.pendingNotification = true
	metrics.TokenEscalations.Inc()

	hook := g.escalate
	if hook == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.log.Errorw("panic in escalation hook recovered", "panic", r)
			}
		}()
		hook(reason)
	}()
}

// State is a point-in-time diagnostic snapshot of the guard.
type State struct {
	Configured          bool      `json:"configured"`
	Live                bool      `json:"live"`
	LastCheckedAt       time.Time `json:"lastCheckedAt"`
	PendingNotification bool      `json:"pendingNotification"`
}

// Snapshot returns the current guard state for the status endpoint.
func (g *Guard) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		Configured:          g.refreshSecret != "",
		Live:                g.live,
		LastCheckedAt:       g.lastCheckedAt,
		PendingNotification: g.pendingNotification,
	}
}
