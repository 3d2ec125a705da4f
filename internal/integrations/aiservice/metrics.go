package aiservice

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_playground_aiservice_requests_total",
		Help: "Outbound AI service requests by operation and outcome",
	}, []string{
		"operation", // ask_text|generate_image|generate_story|transcribe_audio|multimodal_task
		"outcome",   // success|client_error|server_error|canceled|network_error
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_playground_aiservice_request_duration_seconds",
		Help:    "Latency of outbound AI service requests",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "status"})
)

func observeRequest(op string, status int, err error, elapsed time.Duration) {
	requestsTotal.WithLabelValues(op, outcome(status, err)).Inc()
	requestDuration.WithLabelValues(op, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func outcome(status int, err error) string {
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		return "canceled"
	case err != nil:
		return "network_error"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return "success"
	}
}
