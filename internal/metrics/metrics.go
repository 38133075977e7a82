package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_transfers_total",
			Help: "Transfers by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	TokensMovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_tokens_moved_total",
			Help: "Tokens moved by committed transfers",
		},
		[]string{"kind"},
	)

	MeterTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenledger_meter_ticks_total",
			Help: "Session meter passes",
		},
	)

	MeterCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_meter_calls_total",
			Help: "Per-call metering outcomes",
		},
		[]string{"outcome"},
	)

	MeterTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenledger_meter_tick_duration_seconds",
			Help:    "Duration of one metering pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	CallTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_call_transitions_total",
			Help: "Call state transitions by target state and reason",
		},
		[]string{"status", "reason"},
	)

	AuditMismatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenledger_audit_mismatches_total",
			Help: "Wallets whose balance did not match the ledger replay",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_notifications_total",
			Help: "Realtime notifications by event and delivery status",
		},
		[]string{"event", "status"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransfer(kind, outcome string, amount int64) {
	TransfersTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == "ok" {
		TokensMovedTotal.WithLabelValues(kind).Add(float64(amount))
	}
}

func RecordMeterTick(seconds float64) {
	MeterTicksTotal.Inc()
	MeterTickDuration.Observe(seconds)
}

func RecordMeterCall(outcome string) {
	MeterCallsTotal.WithLabelValues(outcome).Inc()
}

func RecordCallTransition(status, reason string) {
	CallTransitionsTotal.WithLabelValues(status, reason).Inc()
}

func RecordAuditMismatch() {
	AuditMismatchesTotal.Inc()
}

func RecordNotification(event, status string) {
	NotificationsTotal.WithLabelValues(event, status).Inc()
}
