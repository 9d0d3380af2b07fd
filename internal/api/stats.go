package api

import (
	"net/http"

	"github.com/snarg/voicebot/internal/metrics"
	"github.com/snarg/voicebot/internal/pipeline"
)

// StatsSource exposes pipeline counters.
type StatsSource interface {
	PerformanceMetrics() pipeline.PerformanceMetrics
	RecognitionSummary() metrics.RecognitionSummary
}

type StatsResponse struct {
	Performance pipeline.PerformanceMetrics `json:"performance"`
	Recognition metrics.RecognitionSummary  `json:"recognition"`
}

type StatsHandler struct {
	src StatsSource
}

func NewStatsHandler(src StatsSource) *StatsHandler {
	return &StatsHandler{src: src}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, StatsResponse{
		Performance: h.src.PerformanceMetrics(),
		Recognition: h.src.RecognitionSummary(),
	})
}
