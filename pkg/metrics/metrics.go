package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Webhook intake metrics
	WebhookRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportrelay_webhook_requests_total",
		Help: "Total number of inbound support webhook requests by result",
	}, []string{"result"})

	// Delivery engine metrics
	DeliveryAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportrelay_delivery_attempts_total",
		Help: "Total number of provider send attempts (including retries)",
	})
	DeliverySent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportrelay_delivery_sent_total",
		Help: "Total number of deliveries accepted by the mail provider",
	}, []string{"kind"})
	DeliveryFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportrelay_delivery_failed_total",
		Help: "Total number of terminally failed deliveries by failure class",
	}, []string{"kind", "class"})

	// Token guard metrics
	TokenProbes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportrelay_token_probes_total",
		Help: "Total number of live credential probes by result",
	}, []string{"result"})
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportrelay_token_refreshes_total",
		Help: "Total number of explicit credential refreshes by result",
	}, []string{"result"})
	TokenEscalations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportrelay_token_escalations_total",
		Help: "Total number of re-authorization escalations raised",
	})

	// Fallback queue metrics
	FallbackEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportrelay_fallback_enqueued_total",
		Help: "Total number of deliveries deferred into the fallback queue",
	}, []string{"kind"})
	FallbackDrained = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportrelay_fallback_drained_total",
		Help: "Total number of fallback entries processed during drains by result",
	}, []string{"result"})
	FallbackDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportrelay_fallback_depth",
		Help: "Current number of entries held by the fallback queue",
	})

	// Operator notification metrics
	NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportrelay_notifications_sent_total",
		Help: "Total number of operator notifications delivered to the chat channel",
	})
	NotificationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportrelay_notifications_failed_total",
		Help: "Total number of operator notifications that could not be delivered",
	})

	// Audit metrics
	AuditEventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportrelay_audit_events_dropped_total",
		Help: "Total number of audit events dropped because a sink was unavailable or full",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(WebhookRequests)
	prometheus.MustRegister(DeliveryAttempts)
	prometheus.MustRegister(DeliverySent)
	prometheus.MustRegister(DeliveryFailed)
	prometheus.MustRegister(TokenProbes)
	prometheus.MustRegister(TokenRefreshes)
	prometheus.MustRegister(TokenEscalations)
	prometheus.MustRegister(FallbackEnqueued)
	prometheus.MustRegister(FallbackDrained)
	prometheus.MustRegister(FallbackDepth)
	prometheus.MustRegister(NotificationsSent)
	prometheus.MustRegister(NotificationsFailed)
	prometheus.MustRegister(AuditEventsDropped)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
