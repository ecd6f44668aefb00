// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package status exposes a diagnostic snapshot of the credential and the
// fallback queue for operators.
package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/telekom/support-relay/pkg/credstore"
	"github.com/telekom/support-relay/pkg/delivery"
	"github.com/telekom/support-relay/pkg/fallback"
	"go.uber.org/zap"
)

// probeCalls is the number of latency probe calls per status request.
const probeCalls = 5

// Prober measures provider round trips; satisfied by *mail.GmailProvider.
type Prober interface {
	Ping(ctx context.Context, accessToken string) error
}

type Controller struct {
	guard  *delivery.Guard
	store  credstore.Store
	queue  *fallback.Queue
	prober Prober
	log    *zap.SugaredLogger
}

func NewController(guard *delivery.Guard, store credstore.Store, queue *fallback.Queue,
	prober Prober, log *zap.SugaredLogger,
) *Controller {
	return &Controller{
		guard:  guard,
		store:  store,
		queue:  queue,
		prober: prober,
		log:    log.Named("status"),
	}
}

func (ctrl *Controller) BasePath() string { return "token" }

func (ctrl *Controller) Handlers() []gin.HandlerFunc { return nil }

func (ctrl *Controller) Register(rg *gin.RouterGroup) error {
	rg.GET("/status", ctrl.handleStatus)
	return nil
}

type latencyReport struct {
	Calls    int     `json:"calls"`
	Failures int     `json:"failures"`
	MinMs    float64 `json:"minMs"`
	AvgMs    float64 `json:"avgMs"`
	MaxMs    float64 `json:"maxMs"`
}

func (ctrl *Controller) handleStatus(c *gin.Context) {
	snap := ctrl.guard.Snapshot()

	resp := gin.H{
		"configured":    snap.Configured,
		"live":          snap.Live,
		"lastCheckedAt": snap.LastCheckedAt,
		"queueDepth":    ctrl.queue.Len(),
	}

	if rec, err := ctrl.store.Load(); err != nil {
		resp["credentialError"] = err.Error()
	} else if rec != nil {
		resp["credentialUpdatedAt"] = rec.UpdatedAt
		resp["credentialUpdatedBy"] = rec.UpdatedBy
		resp["credentialAge"] = time.Since(rec.UpdatedAt).Round(time.Second).String()
	}

	if ctrl.guard.EnsureLive(c.Request.Context()) {
		resp["latency"] = ctrl.measureLatency(c.Request.Context())
	}

	c.JSON(http.StatusOK, resp)
}

// measureLatency runs a short burst of authenticated profile reads and
// reports round-trip statistics.
func (ctrl *Controller) measureLatency(ctx context.Context) latencyReport {
	report := latencyReport{Calls: probeCalls}

	accessToken, err := ctrl.guard.AccessToken(ctx)
	if err != nil {
		report.Failures = probeCalls
		return report
	}

	var total, minD, maxD time.Duration
	ok := 0
	for i := 0; i < probeCalls; i++ {
		start := time.Now()
		if err := ctrl.prober.Ping(ctx, accessToken); err != nil {
			report.Failures++
			continue
		}
		d := time.Since(start)
		total += d
		if ok == 0 || d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
		ok++
	}

	if ok > 0 {
		report.MinMs = float64(minD.Microseconds()) / 1000
		report.MaxMs = float64(maxD.Microseconds()) / 1000
		report.AvgMs = float64((total / time.Duration(ok)).Microseconds()) / 1000
	}
	return report
}
