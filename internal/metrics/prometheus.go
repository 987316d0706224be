package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions tracks the number of live interview connections.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_active_sessions",
		Help: "Number of interview sessions currently connected",
	})

	// SessionsStarted counts sessions that completed authentication.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_started_total",
		Help: "Total number of interview sessions started",
	})

	// SessionsCompleted counts sessions by terminal status.
	SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_sessions_finished_total",
		Help: "Total number of interview sessions finished, by outcome",
	}, []string{"outcome"})

	// InterventionsTriggered counts coaching interventions by type.
	InterventionsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_interventions_total",
		Help: "Total number of real-time coaching interventions, by type",
	}, []string{"type"})

	// MessagesReceived counts inbound protocol messages by type.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_messages_received_total",
		Help: "Total number of websocket messages received, by type",
	}, []string{"type"})

	// AnalysisDuration observes how long frame and chunk analysis takes.
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interview_analysis_duration_seconds",
		Help:    "Time spent analyzing a video frame or audio chunk",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"kind"})

	// SessionScore observes final overall scores of completed sessions.
	SessionScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_session_overall_score",
		Help:    "Distribution of final overall session scores",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	// LLMRequests counts language model calls by operation and result.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_llm_requests_total",
		Help: "Total number of language model requests, by operation and result",
	}, []string{"operation", "result"})
)

// Handler exposes the Prometheus scrape endpoint as a Fiber handler.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
