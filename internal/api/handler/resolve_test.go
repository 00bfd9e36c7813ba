package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/tikgrabba/internal/config"
	"github.com/iconidentify/tikgrabba/internal/domain"
	"github.com/iconidentify/tikgrabba/internal/service"
)

func newTestResolveHandler(t *testing.T, repo *mockJobRepository) *ResolveHandler {
	t.Helper()
	svc, err := service.NewResolveService(service.Config{
		Resolver: config.ResolverConfig{Flavor: "ssstik", Timeout: time.Second},
		Storage:  config.StorageConfig{OutputPath: t.TempDir()},
		Worker:   config.WorkerConfig{MaxRetries: 3},
	}, nil, repo, nil, testLogger())
	if err != nil {
		t.Fatalf("NewResolveService: %v", err)
	}
	return NewResolveHandler(svc, testLogger())
}

func routed(h *ResolveHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/jobs/{jobID}", h.GetJob)
	return r
}

func TestResolveHandler_Submit(t *testing.T) {
	repo := newMockJobRepository()
	handler := newTestResolveHandler(t, repo)

	body, _ := json.Marshal(ResolveRequest{URL: "https://www.tiktok.com/@someone/video/7300000000000000001"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", bytes.NewBuffer(body))
	w := httptest.NewRecorder()

	handler.Submit(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp service.SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.JobStatusQueued {
		t.Errorf("status = %q, want queued", resp.Status)
	}
	job, ok := repo.jobs[resp.JobID]
	if !ok {
		t.Fatalf("job %q was not enqueued", resp.JobID)
	}
	if job.Flavor != "ssstik" || job.MaxRetries != 3 {
		t.Errorf("job = %+v", job)
	}
}

func TestResolveHandler_Submit_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "invalid json"},
		{"empty url", `{"url": ""}`},
		{"non-http url", `{"url": "ftp://example.com/v"}`},
		{"unknown flavor", `{"url": "https://www.tiktok.com/@a/video/1", "flavor": "nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockJobRepository()
			handler := newTestResolveHandler(t, repo)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.Submit(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(repo.jobs) != 0 {
				t.Error("no job should be enqueued")
			}
		})
	}
}

func TestResolveHandler_Submit_EnqueueError(t *testing.T) {
	repo := newMockJobRepository()
	repo.enqueueErr = errors.New("queue full")
	handler := newTestResolveHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(`{"url": "https://www.tiktok.com/@a/video/1"}`))
	w := httptest.NewRecorder()

	handler.Submit(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestResolveHandler_GetJob(t *testing.T) {
	repo := newMockJobRepository()
	job := domain.NewJob("job_1234abcd", "https://www.tiktok.com/@a/video/1", "ssstik", 3)
	job.MarkFailed("init: token not found", false)
	job.Report = domain.NewReport(job.Reference, job.Flavor)
	repo.jobs[job.ID] = job

	handler := newTestResolveHandler(t, repo)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job_1234abcd", nil)
	w := httptest.NewRecorder()

	routed(handler).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp JobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.JobID != "job_1234abcd" || resp.Status != "failed" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Error != "init: token not found" || resp.Attempts != 1 {
		t.Errorf("error = %q, attempts = %d", resp.Error, resp.Attempts)
	}
	if resp.Report == nil || len(resp.Report.Stages) != 1 {
		t.Errorf("report = %+v", resp.Report)
	}
}

func TestResolveHandler_GetJob_NotFound(t *testing.T) {
	handler := newTestResolveHandler(t, newMockJobRepository())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job_missing", nil)
	w := httptest.NewRecorder()

	routed(handler).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestResolveHandler_History(t *testing.T) {
	handler := newTestResolveHandler(t, newMockJobRepository())

	tests := []struct {
		query     string
		wantLimit int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=abc", 50},
		{"?limit=9999", 50},
	}

	for _, tt := range tests {
		t.Run("limit"+tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/history"+tt.query, nil)
			w := httptest.NewRecorder()

			handler.History(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var resp HistoryResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", resp.Limit, tt.wantLimit)
			}
			if resp.Entries == nil {
				t.Error("entries should encode as an empty list")
			}
		})
	}
}

func TestResolveHandler_Flavors(t *testing.T) {
	handler := newTestResolveHandler(t, newMockJobRepository())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flavors", nil)
	w := httptest.NewRecorder()

	handler.Flavors(w, req)

	var resp FlavorsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Default != "ssstik" {
		t.Errorf("default = %q, want ssstik", resp.Default)
	}
	if len(resp.Flavors) != 2 || resp.Flavors[0] != "ssstik" || resp.Flavors[1] != "tikdownloader" {
		t.Errorf("flavors = %v", resp.Flavors)
	}
}
