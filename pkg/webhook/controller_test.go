// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/support-relay/pkg/audit"
	"github.com/telekom/support-relay/pkg/delivery"
	"github.com/telekom/support-relay/pkg/fallback"
	"github.com/telekom/support-relay/pkg/notify"
	"github.com/telekom/support-relay/pkg/relay"
	"github.com/telekom/support-relay/pkg/system"
)

const testSecret = "hook-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouterWith(t *testing.T, guard *delivery.Guard, provider delivery.Provider) *gin.Engine {
	t.Helper()
	log := system.NewTestLogger()

	engine := delivery.NewEngine(guard, provider, 1, log)
	auditor := audit.NewService(log)
	queue := fallback.NewQueue(engine, func(fallback.Entry) (delivery.Message, error) {
		return delivery.Message{}, nil
	}, notify.Nop{}, auditor, log)
	svc := relay.NewService(engine, queue, notify.Nop{}, auditor, "Example", log)

	router := gin.New()
	ctrl := NewController(testSecret, svc, log)
	require.NoError(t, ctrl.Register(router.Group(ctrl.BasePath())))
	return router
}

// newTestRouter wires a credential-less guard: confirmation sends defer to
// the queue, which is exactly what the webhook path expects in the worst
// case.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newRouterWith(t, delivery.NewGuard(nil, "", system.NewTestLogger()), nil)
}

type okMinter struct{}

func (okMinter) Mint(context.Context, string) (string, error) { return "at-1", nil }

// rejectingProvider fails every send with a validation-class error.
type rejectingProvider struct{}

func (rejectingProvider) Send(context.Context, string, delivery.Message) (delivery.Receipt, error) {
	return delivery.Receipt{}, &delivery.StatusError{Code: 400, Reason: "invalid recipient"}
}

func postSupport(router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/support", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const validBody = `{"name":"Jane","email":"jane@example.com","text":"It broke","language":"en"}`

func TestWebhookAuthorization(t *testing.T) {
	router := newTestRouter(t)

	t.Run("shared secret header accepted", func(t *testing.T) {
		w := postSupport(router, validBody, map[string]string{"X-Webhook-Secret": testSecret})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		w := postSupport(router, validBody, map[string]string{"X-Webhook-Secret": "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid or missing webhook secret")
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		w := postSupport(router, validBody, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("HS256 bearer token signed with the secret accepted", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": "website-backend",
			"exp": time.Now().Add(time.Minute).Unix(),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		w := postSupport(router, validBody, map[string]string{"Authorization": "Bearer " + signed})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bearer token signed with another key rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Minute).Unix(),
		})
		signed, err := token.SignedString([]byte("other-key"))
		require.NoError(t, err)

		w := postSupport(router, validBody, map[string]string{"Authorization": "Bearer " + signed})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired bearer token rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(-time.Minute).Unix(),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		w := postSupport(router, validBody, map[string]string{"Authorization": "Bearer " + signed})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWebhookValidation(t *testing.T) {
	router := newTestRouter(t)
	auth := map[string]string{"X-Webhook-Secret": testSecret}

	t.Run("malformed JSON rejected", func(t *testing.T) {
		w := postSupport(router, `{"name":`, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Missing required fields")
	})

	t.Run("missing fields are named", func(t *testing.T) {
		w := postSupport(router, `{"name":"Jane"}`, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "email")
		assert.Contains(t, w.Body.String(), "text")
	})

	t.Run("whitespace-only fields count as missing", func(t *testing.T) {
		w := postSupport(router, `{"name":"  ","email":"jane@example.com","text":"help"}`, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "name")
	})

	t.Run("language is optional", func(t *testing.T) {
		w := postSupport(router, `{"name":"Jane","email":"jane@example.com","text":"help"}`, auth)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("authorization is checked before validation", func(t *testing.T) {
		w := postSupport(router, `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWebhookResponse(t *testing.T) {
	router := newTestRouter(t)
	auth := map[string]string{"X-Webhook-Secret": testSecret}

	post := func(r *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook/response", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("requires the webhook secret", func(t *testing.T) {
		w := post(router, `{"email":"jane@example.com","text":"Fixed it"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields are named", func(t *testing.T) {
		w := post(router, `{"name":"Jane"}`, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "email")
		assert.Contains(t, w.Body.String(), "text")
	})

	t.Run("undeliverable reply is queued and reported as accepted", func(t *testing.T) {
		// The harness guard has no credential, so the send defers to the
		// fallback queue.
		w := post(router, `{"name":"Jane","email":"jane@example.com","text":"Fixed it","language":"en"}`, auth)
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), `"queued":true`)
	})

	t.Run("invalid reply is reported as dropped, not queued", func(t *testing.T) {
		guard := delivery.NewGuard(okMinter{}, "refresh-1", system.NewTestLogger())
		rejecting := newRouterWith(t, guard, rejectingProvider{})

		w := post(rejecting, `{"name":"Jane","email":"jane@example.com","text":"Fixed it"}`, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"queued":false`)
		assert.Contains(t, w.Body.String(), "invalid recipient")
	})
}
