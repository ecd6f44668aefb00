// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package api hosts the HTTP server and the controller registration
// plumbing. Controllers register below the root group so the externally
// documented paths (/webhook/support, /oauth/callback, /token/status) stay
// stable.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/telekom/support-relay/pkg/config"
	"github.com/telekom/support-relay/pkg/metrics"
	"github.com/telekom/support-relay/pkg/ratelimit"
	"github.com/telekom/support-relay/pkg/system"
	"go.uber.org/zap"
)

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

type Server struct {
	gin     *gin.Engine
	config  config.Config
	log     *zap.Logger
	webhkRL *ratelimit.IPRateLimiter
	apiRL   *ratelimit.IPRateLimiter
}

func NewServer(log *zap.Logger, cfg config.Config, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		requestLogger(log.Sugar()),
	)

	if len(cfg.Server.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(cfg.Server.TrustedProxies)
	}

	if len(cfg.CORS.AllowOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORS.AllowOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Authorization", "Content-Type", "X-Webhook-Secret"},
			MaxAge:       12 * time.Hour,
		}))
	}

	// Result pages for the re-authorization flow.
	engine.Use(static.Serve("/pages", static.LocalFile(cfg.Server.StaticDir, false)))

	s := &Server{
		gin:     engine,
		config:  cfg,
		log:     log,
		webhkRL: ratelimit.New(ratelimit.DefaultWebhookConfig()),
		apiRL:   ratelimit.New(ratelimit.DefaultAPIConfig()),
	}

	// Health and metrics stay outside the rate-limited groups.
	engine.GET("/health", s.getHealth)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	return s
}

// requestLogger attaches a per-request sub-logger so handlers can pull it
// back out via system.GetReqLogger.
func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		system.SetReqLogger(c, log.With("path", c.FullPath(), "ip", c.ClientIP()))
		c.Next()
	}
}

func (s *Server) RegisterAll(controllers []APIController) error {
	for _, ctrl := range controllers {
		limiter := s.apiRL
		if ctrl.BasePath() == "webhook" {
			limiter = s.webhkRL
		}
		handlers := append([]gin.HandlerFunc{limiter.Middleware()}, ctrl.Handlers()...)
		if err := ctrl.Register(s.gin.Group(ctrl.BasePath(), handlers...)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Listen() error {
	if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
		return s.gin.RunTLS(s.config.Server.ListenAddress,
			s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
	}
	return s.gin.Run(s.config.Server.ListenAddress)
}

// Stop releases background resources (rate limiter cleanup goroutines).
func (s *Server) Stop() {
	s.webhkRL.Stop()
	s.apiRL.Stop()
}

// Engine exposes the underlying router for tests.
func (s *Server) Engine() *gin.Engine { return s.gin }

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": system.Version,
	})
}
