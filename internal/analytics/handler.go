package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves the current aggregate as {"result": true, "analytics": {...}}.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Result    bool            `json:"result"`
		Analytics AggregatedStats `json:"analytics"`
	}{Result: true, Analytics: h.aggregator.Stats()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
