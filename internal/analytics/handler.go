package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler serves the aggregated query statistics of one Aggregator.
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

// Stats serves GET /api/v1/analytics. The optional top parameter sets how
// many top and zero-score queries are listed.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := DefaultTopQueries
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxTopQueries {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("top must be an integer in 1..%d", MaxTopQueries),
			})
			return
		}
		top = n
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.StatsTop(top))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
