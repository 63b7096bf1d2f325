package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	VerdictTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_verdicts_total",
			Help: "Requests evaluated, by classification",
		},
		[]string{"classification"},
	)

	BansIssued = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "trustshield_bans_issued_total",
			Help: "Identifiers placed in the penalty box",
		},
	)

	BannedRejections = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "trustshield_banned_rejections_total",
			Help: "Requests rejected at the penalty box stage",
		},
	)

	AlertsDelivered = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_alerts_delivered_total",
			Help: "Alerts delivered per notification channel",
		},
		[]string{"channel"},
	)

	AlertsSuppressed = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "trustshield_alerts_suppressed_total",
			Help: "Alerts suppressed by the cooldown registry",
		},
	)

	AlertChannelFailures = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_alert_channel_failures_total",
			Help: "Failed deliveries per notification channel",
		},
		[]string{"channel"},
	)

	PaymentRejections = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_payment_rejections_total",
			Help: "Payment attempts rejected, by guard stage",
		},
		[]string{"stage"},
	)

	ReputationDegraded = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "trustshield_reputation_degraded_total",
			Help: "Reputation lookups that degraded to a zero contribution",
		},
	)
)

// Handler exposes the private registry for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
