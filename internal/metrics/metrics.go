// internal/metrics/metrics.go
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TranslationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_translations_total",
		Help: "Translation requests by mode and outcome.",
	}, []string{"mode", "outcome"})

	TranslationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "translator_translation_duration_seconds",
		Help:    "Wall time from first model call to persistence.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"mode"})

	StreamChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_stream_chunks_total",
		Help: "Chunks relayed from the model to clients.",
	}, []string{"mode"})

	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_token_refresh_total",
		Help: "Access token refreshes by source and outcome.",
	}, []string{"source", "outcome"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "translator_rate_limited_total",
		Help: "Requests rejected by the translation rate limiter.",
	})
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeUnsaved = "unsaved"
)

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
