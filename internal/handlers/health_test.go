package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

type readyzBody struct {
	Status      string   `json:"status"`
	Uptime      string   `json:"uptime"`
	GeneratedAt string   `json:"generatedAt"`
	Details     []string `json:"details"`
	Checks      map[string]struct {
		Status    string `json:"status"`
		LatencyMS int64  `json:"latencyMs"`
		Error     string `json:"error"`
	} `json:"checks"`
}

func TestHealthzReportsBuildAndUptime(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "2.4.1", CommitSHA: "f00dbeef", Environment: "staging", StartedAt: start}),
		WithHealthClock(func() time.Time { return now }),
	)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		"status":      domain.HealthStatusOK,
		"version":     "2.4.1",
		"commitSha":   "f00dbeef",
		"environment": "staging",
		"uptime":      "1m30s",
		"timestamp":   "2025-03-10T09:01:30Z",
	}
	for key, value := range want {
		if body[key] != value {
			t.Fatalf("%s = %q, want %q", key, body[key], value)
		}
	}
}

func TestHealthzDefaultsStartToConstruction(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(WithHealthClock(func() time.Time { return now }))

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["uptime"] != "0s" {
		t.Fatalf("uptime = %q, want 0s", body["uptime"])
	}
	if _, ok := body["version"]; ok {
		t.Fatalf("empty version should be omitted: %v", body)
	}
}

func TestReadyz(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)

	cases := []struct {
		name        string
		svc         services.SystemService
		wantStatus  int
		wantBody    string
		wantDetails []string
		check       func(t *testing.T, body readyzBody)
	}{
		{
			name:       "no system service",
			wantStatus: http.StatusOK,
			wantBody:   domain.HealthStatusOK,
		},
		{
			name: "all dependencies healthy",
			svc: &stubSystemService{report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				Uptime:      5 * time.Minute,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond, CheckedAt: now},
					"redis":     {Status: domain.HealthStatusOK, Latency: time.Millisecond, CheckedAt: now},
				},
			}},
			wantStatus: http.StatusOK,
			wantBody:   domain.HealthStatusOK,
			check: func(t *testing.T, body readyzBody) {
				if body.Uptime != "5m0s" {
					t.Fatalf("uptime = %q", body.Uptime)
				}
				if body.Checks["firestore"].LatencyMS != 12 {
					t.Fatalf("firestore latency = %d", body.Checks["firestore"].LatencyMS)
				}
				if len(body.Checks) != 2 {
					t.Fatalf("checks = %v", body.Checks)
				}
			},
		},
		{
			name: "degraded cache answers 503 with details",
			svc: &stubSystemService{report: services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"redis":     {Status: domain.HealthStatusDegraded, Error: "timeout"},
					"firestore": {Status: domain.HealthStatusOK},
					"storage":   {Status: domain.HealthStatusError},
				},
			}},
			wantStatus:  http.StatusServiceUnavailable,
			wantBody:    domain.HealthStatusDegraded,
			wantDetails: []string{"redis: timeout", "storage: error"},
			check: func(t *testing.T, body readyzBody) {
				if body.GeneratedAt != "2025-03-10T09:05:00Z" {
					t.Fatalf("generatedAt = %q, want clock fallback", body.GeneratedAt)
				}
			},
		},
		{
			name:       "empty status counts as ok",
			svc:        &stubSystemService{report: services.SystemHealthReport{}},
			wantStatus: http.StatusOK,
			wantBody:   domain.HealthStatusOK,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := []HealthOption{WithHealthClock(func() time.Time { return now })}
			if tc.svc != nil {
				opts = append(opts, WithHealthSystemService(tc.svc))
			}
			rr := httptest.NewRecorder()
			NewHealthHandlers(opts...).Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tc.wantStatus, rr.Body.String())
			}
			var body readyzBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.wantBody {
				t.Fatalf("body status = %q, want %q", body.Status, tc.wantBody)
			}
			if len(body.Details) != len(tc.wantDetails) {
				t.Fatalf("details = %v, want %v", body.Details, tc.wantDetails)
			}
			for i := range tc.wantDetails {
				if body.Details[i] != tc.wantDetails[i] {
					t.Fatalf("details[%d] = %q, want %q", i, body.Details[i], tc.wantDetails[i])
				}
			}
			if tc.check != nil {
				tc.check(t, body)
			}
		})
	}
}

func TestReadyzServiceFailureWritesEnvelope(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{err: errors.New("firestore down")}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "health_unavailable" {
		t.Fatalf("error = %v", body["error"])
	}
}

var _ services.SystemService = (*stubSystemService)(nil)
