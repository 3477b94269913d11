package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pagedrop/pagedrop/internal/handler/dto"
	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/service"
)

// StatsReader builds a site's analytics summary.
type StatsReader interface {
	GetSiteStats(ctx context.Context, siteID string, days int) (*model.SiteStats, error)
}

// StatsHandler serves the read side of site analytics.
type StatsHandler struct {
	stats  StatsReader
	logger *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(stats StatsReader, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logger.With("component", "handler.stats"),
	}
}

// GetSiteStats handles GET /api/v1/sites/{siteId}/stats.
func (h *StatsHandler) GetSiteStats(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteId")
	if siteID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "site id is required", Code: "MISSING_SITE_ID"})
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "days must be an integer", Code: "INVALID_PERIOD"})
			return
		}
		// Only an absent parameter selects the default period.
		if n == 0 {
			n = -1
		}
		days = n
	}

	stats, err := h.stats.GetSiteStats(r.Context(), siteID, days)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, stats)
	case errors.Is(err, service.ErrInvalidPeriod):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "INVALID_PERIOD"})
	case errors.Is(err, service.ErrSiteNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "site not found", Code: "SITE_NOT_FOUND"})
	default:
		h.logger.Error("failed to get site stats", "site_id", siteID, "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to fetch stats", Code: "INTERNAL_ERROR"})
	}
}
