package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pagedrop/pagedrop/internal/handler/dto"
)

func TestHandler_Info(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Info(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var info dto.InfoResponse
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Service != "pagedrop-analytics" || info.Version != Version {
		t.Errorf("info = %+v", info)
	}
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()

	h := New()
	tests := []struct {
		name       string
		serve      http.HandlerFunc
		method     string
		wantStatus int
		wantCode   string
	}{
		{"not found", h.NotFound, http.MethodGet, http.StatusNotFound, "NOT_FOUND"},
		{"method not allowed", h.MethodNotAllowed, http.MethodDelete, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			tt.serve(rec, httptest.NewRequest(tt.method, "/api/v1/sites/x", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body dto.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.wantCode || body.Error == "" {
				t.Errorf("body = %+v, want code %s", body, tt.wantCode)
			}
		})
	}
}
