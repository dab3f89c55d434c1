// Package obs holds the process-wide observability surface.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kakehashi_requests_in_flight",
		Help: "Auth requests currently awaiting a response.",
	})

	responsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kakehashi_responses_total",
			Help: "Auth responses delivered to callers, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	droppedResponsesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kakehashi_dropped_responses_total",
		Help: "Responses that matched no pending request (late or duplicate).",
	})

	stateUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kakehashi_auth_state_updates_total",
		Help: "Auth-state broadcasts applied to the observable cell.",
	})
)

// Init registers the collectors with the default registry.
func Init() {
	prometheus.MustRegister(requestsInFlight, responsesTotal, droppedResponsesTotal, stateUpdatesTotal)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RequestStarted marks one more request awaiting a response.
func RequestStarted() { requestsInFlight.Inc() }

// RequestFinished marks a request as no longer pending and records its
// outcome ("success", "failure", or "cancelled").
func RequestFinished(action, outcome string) {
	requestsInFlight.Dec()
	responsesTotal.WithLabelValues(action, outcome).Inc()
}

// ResponseDropped records a response that found no pending listener.
func ResponseDropped() { droppedResponsesTotal.Inc() }

// StateUpdated records one auth-state cell update.
func StateUpdated() { stateUpdatesTotal.Inc() }
