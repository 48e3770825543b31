package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/starsort/internal/classify/decision"
	"github.com/vietddude/starsort/internal/classify/engine"
	"github.com/vietddude/starsort/internal/classify/job"
	"github.com/vietddude/starsort/internal/core/config"
	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/core/taxonomy"
	"github.com/vietddude/starsort/internal/infra/storage/memory"
)

type stubChecker struct {
	err error
}

func (s stubChecker) Health(context.Context) error { return s.err }

func newTestServer(db, cache Checker) *Server {
	store := memory.NewStorage(5)
	tax := taxonomy.New([]taxonomy.Category{{Name: "uncategorized", Subcategories: []string{"other"}}}, nil, nil)
	eng := engine.New(tax, nil, domain.ModeDefault, decision.DefaultPolicy(), 0)
	cfg := config.AppConfig{}
	cfg.ApplyDefaults()
	o := job.New(memory.NewRepoRepo(store), memory.NewTaskRepo(store), eng, nil, nil, nil, cfg.Classify)
	return NewServer(o, db, cache, 0)
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		db       Checker
		cache    Checker
		wantCode int
		want     string
	}{
		{"all healthy", stubChecker{}, stubChecker{}, http.StatusOK, "healthy"},
		{"no cache configured", stubChecker{}, nil, http.StatusOK, "healthy"},
		{"db down", stubChecker{err: errors.New("connection refused")}, nil, http.StatusServiceUnavailable, "unhealthy"},
		{"cache down", stubChecker{}, stubChecker{err: errors.New("redis gone")}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.db, tt.cache)
			rec := httptest.NewRecorder()
			s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if body.Status != tt.want {
				t.Errorf("status = %q, want %q", body.Status, tt.want)
			}
			if _, ok := body.Checks["database"]; !ok {
				t.Error("database check missing from response")
			}
		})
	}
}

func TestStatusEndpointReportsJobState(t *testing.T) {
	s := newTestServer(stubChecker{}, nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var state domain.JobState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if state.Running {
		t.Error("idle orchestrator reported as running")
	}
}
