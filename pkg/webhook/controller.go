// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package webhook receives support requests from the website backend. The
// route answers as soon as the request is validated and handed to the relay;
// the confirmation mail is best-effort and never fails the webhook.
package webhook

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/telekom/support-relay/pkg/delivery"
	"github.com/telekom/support-relay/pkg/metrics"
	"github.com/telekom/support-relay/pkg/relay"
	"github.com/telekom/support-relay/pkg/system"
	"go.uber.org/zap"
)

type Controller struct {
	secret  string
	service *relay.Service
	log     *zap.SugaredLogger
}

func NewController(secret string, service *relay.Service, log *zap.SugaredLogger) *Controller {
	return &Controller{
		secret:  secret,
		service: service,
		log:     log.Named("webhook"),
	}
}

func (ctrl *Controller) BasePath() string { return "webhook" }

func (ctrl *Controller) Handlers() []gin.HandlerFunc { return nil }

func (ctrl *Controller) Register(rg *gin.RouterGroup) error {
	rg.POST("/support", ctrl.handleSupport)
	rg.POST("/response", ctrl.handleResponse)
	return nil
}

type supportRequestBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (ctrl *Controller) handleSupport(c *gin.Context) {
	log := system.GetReqLogger(c, ctrl.log)

	if !ctrl.authorized(c) {
		metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
		log.Warnw("Rejected webhook call with bad credentials", "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid or missing webhook secret"})
		return
	}

	var body supportRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: malformed JSON body"})
		return
	}

	var missing []string
	if strings.TrimSpace(body.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(body.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(body.Text) == "" {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	ctrl.service.HandleSupportRequest(c.Request.Context(), relay.SupportRequest{
		Name:     body.Name,
		Email:    body.Email,
		Text:     body.Text,
		Language: body.Language,
	})

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	log.Infow("Support request accepted", "email", body.Email)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type responseBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

// handleResponse relays an operator answer back to the requester. Unlike the
// intake route this waits for the send outcome: the operator wants to know
// whether the reply went out or was queued.
func (ctrl *Controller) handleResponse(c *gin.Context) {
	log := system.GetReqLogger(c, ctrl.log)

	if !ctrl.authorized(c) {
		metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
		log.Warnw("Rejected webhook call with bad credentials", "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid or missing webhook secret"})
		return
	}

	var body responseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: malformed JSON body"})
		return
	}
	var missing []string
	if strings.TrimSpace(body.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(body.Text) == "" {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	outcome := ctrl.service.SendResponse(c.Request.Context(), body.Email, body.Name, body.Text, body.Language)
	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	if outcome.OK() {
		c.JSON(http.StatusOK, gin.H{"success": true, "messageId": outcome.Sent.MessageID})
		return
	}
	// Validation failures are dropped, not queued; the caller must know the
	// reply never left.
	if outcome.Failed.Class == delivery.ClassValidation {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "queued": false, "error": outcome.Failed.Reason})
		return
	}
	// Deferred to the fallback queue; the request itself was accepted.
	c.JSON(http.StatusAccepted, gin.H{"success": false, "queued": true, "reason": outcome.Failed.Reason})
}

// authorized accepts the shared secret verbatim in X-Webhook-Secret or an
// HS256 JWT signed with the same secret as a bearer token.
func (ctrl *Controller) authorized(c *gin.Context) bool {
	if header := c.GetHeader("X-Webhook-Secret"); header != "" {
		return subtle.ConstantTimeCompare([]byte(header), []byte(ctrl.secret)) == 1
	}

	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}

	token, err := jwt.Parse(strings.TrimPrefix(auth, prefix), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(ctrl.secret), nil
	})
	return err == nil && token.Valid
}
