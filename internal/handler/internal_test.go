package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func newInternalMux(svc *mockReportService) *http.ServeMux {
	mux := http.NewServeMux()
	h := NewInternalHandler(svc, "worker-secret", newTestLogger())
	h.RegisterRoutes(mux)
	return mux
}

func postStatus(mux *http.ServeMux, reportID, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/reports/"+reportID+"/status", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestInternalStatusRequiresToken(t *testing.T) {
	mux := newInternalMux(&mockReportService{})

	rec := postStatus(mux, uuid.NewString(), "", `{"status":"processing"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = postStatus(mux, uuid.NewString(), "wrong-token", `{"status":"processing"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestInternalStatusCompleted(t *testing.T) {
	reportID := uuid.New()
	var completedURL string
	svc := &mockReportService{
		CompleteFunc: func(ctx context.Context, gotID uuid.UUID, pdfURL string) error {
			if gotID != reportID {
				t.Errorf("report ID = %s, want %s", gotID, reportID)
			}
			completedURL = pdfURL
			return nil
		},
	}
	mux := newInternalMux(svc)

	rec := postStatus(mux, reportID.String(), "worker-secret",
		`{"status":"completed","pdf_url":"https://files.example.com/r.pdf"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusNoContent, rec.Body)
	}
	if completedURL != "https://files.example.com/r.pdf" {
		t.Errorf("completed URL = %q", completedURL)
	}
}

func TestInternalStatusCompletedRequiresURL(t *testing.T) {
	mux := newInternalMux(&mockReportService{})

	rec := postStatus(mux, uuid.NewString(), "worker-secret", `{"status":"completed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestInternalStatusUnknown(t *testing.T) {
	mux := newInternalMux(&mockReportService{})

	rec := postStatus(mux, uuid.NewString(), "worker-secret", `{"status":"exploded"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
