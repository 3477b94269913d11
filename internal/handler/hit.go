package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagedrop/pagedrop/internal/analytics"
	"github.com/pagedrop/pagedrop/internal/handler/dto"
	"github.com/pagedrop/pagedrop/internal/metrics"
	"github.com/pagedrop/pagedrop/internal/middleware"
	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/service"
)

// AdminHeader marks a hit sent from the site owner's preview.
const AdminHeader = "X-Pagedrop-Admin"

// Hit outcomes reported to metrics.
const (
	outcomeRecorded    = "recorded"
	outcomeThrottled   = "throttled"
	outcomeUnknownSite = "unknown_site"
	outcomeUntracked   = "untracked"
	outcomeAdmin       = "admin"
	outcomeInvalid     = "invalid"
	outcomeError       = "error"
	outcomePanic       = "panic"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// SiteResolver looks up the site a hit belongs to.
type SiteResolver interface {
	ResolveSite(ctx context.Context, siteID string) (*model.Site, error)
}

// HitSink receives accepted hits. Both calls must return immediately.
type HitSink interface {
	Record(record *model.AnalyticsRecord)
	IncrementCounters(siteID, sessionID string, bot bool)
}

// HitHandler ingests analytics hits from the beacon and tracking pixel.
type HitHandler struct {
	sites   SiteResolver
	sink    HitSink
	builder *analytics.RecordBuilder
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewHitHandler creates a new HitHandler.
func NewHitHandler(sites SiteResolver, sink HitSink, builder *analytics.RecordBuilder, logger *slog.Logger, recorder metrics.Recorder) *HitHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &HitHandler{
		sites:   sites,
		sink:    sink,
		builder: builder,
		logger:  logger.With("component", "handler.hit"),
		metrics: recorder,
		now:     time.Now,
	}
}

// Hit handles /api/v1/analytics/hit/{siteId}.
// Once the site id is known the caller always gets the beacon response,
// whether or not the hit was recorded.
func (h *HitHandler) Hit(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	case http.MethodOptions:
		h.preflight(w)
		return
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, dto.ErrorResponse{
			Error: "method not allowed",
			Code:  "METHOD_NOT_ALLOWED",
		})
		return
	}

	siteID := strings.TrimSpace(chi.URLParam(r, "siteId"))
	if siteID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: "site id is required",
			Code:  "MISSING_SITE_ID",
		})
		return
	}

	start := h.now()
	outcome := h.process(r, siteID, start)
	h.metrics.IncHit(outcome)
	h.metrics.ObserveHitDuration(time.Since(start))

	h.logger.Debug("hit_processed",
		"site_id", siteID,
		"outcome", outcome,
	)

	h.writeBeacon(w, r, start)
}

// process records the hit and returns its outcome. It never panics.
func (h *HitHandler) process(r *http.Request, siteID string, receivedAt time.Time) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("hit_panic",
				"site_id", siteID,
				"panic", rec,
			)
			outcome = outcomePanic
		}
	}()

	if middleware.IsThrottled(r.Context()) {
		return outcomeThrottled
	}

	site, err := h.sites.ResolveSite(r.Context(), siteID)
	if err != nil {
		if errors.Is(err, service.ErrSiteNotFound) {
			return outcomeUnknownSite
		}
		h.logger.Error("site_resolve_failed", "site_id", siteID, "error", err)
		return outcomeError
	}
	if !site.Trackable() {
		return outcomeUntracked
	}

	in, err := readHitInput(r)
	if err != nil {
		h.logger.Debug("hit_input_rejected", "site_id", siteID, "error", err)
		return outcomeInvalid
	}

	if site.ExcludesAdmin() && (in.IsAdmin() || r.Header.Get(AdminHeader) == "1") {
		return outcomeAdmin
	}

	record, err := h.builder.Build(site.ID, in, analytics.RequestMeta{
		IP:          analytics.ClientIP(r),
		UserAgent:   r.Header.Get("User-Agent"),
		CountryCode: analytics.ExtractCountryCode(r.Header.Get("CF-IPCountry")),
		ReceivedAt:  receivedAt,
	})
	if err != nil {
		h.logger.Debug("hit_build_failed", "site_id", siteID, "error", err)
		return outcomeInvalid
	}

	h.sink.Record(record)
	h.sink.IncrementCounters(record.SiteID, record.SessionID, record.IsBot)

	return outcomeRecorded
}

// readHitInput parses the query string for GET and the body for POST.
// A POST without a body falls back to its query string.
func readHitInput(r *http.Request) (analytics.HitInput, error) {
	if r.Method == http.MethodGet {
		return analytics.ParseValues(r.URL.Query()), nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return analytics.HitInput{}, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return analytics.ParseValues(r.URL.Query()), nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return analytics.HitInput{}, err
		}
		return analytics.ParseValues(values), nil
	default:
		// sendBeacon delivers JSON as text/plain.
		return analytics.ParseJSON(body)
	}
}

func (h *HitHandler) preflight(w http.ResponseWriter) {
	setBeaconCORS(w)
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// writeBeacon answers with the pixel for image requests and JSON otherwise.
func (h *HitHandler) writeBeacon(w http.ResponseWriter, r *http.Request, now time.Time) {
	if r.Method == http.MethodGet || strings.Contains(r.Header.Get("Accept"), "image/") {
		w.Header().Set("Content-Type", "image/gif")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(transparentGIF)
		return
	}

	setBeaconCORS(w)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, dto.HitResponse{
		Success:   true,
		Timestamp: now.UnixMilli(),
	})
}

func setBeaconCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
