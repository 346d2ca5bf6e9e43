package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthy(ctx context.Context) (HealthStatus, error) { return StatusHealthy, nil }

func TestHealthChecker_RegisterCheck(t *testing.T) {
	checker := NewHealthChecker("test-service", "1.0.0")

	if err := checker.RegisterCheck(&HealthCheck{Name: "ok", CheckFunc: healthy}); err != nil {
		t.Fatalf("Expected no error registering check, got %v", err)
	}
	check, exists := checker.GetCheck("ok")
	if !exists {
		t.Fatal("Expected to find registered check")
	}
	if check.Timeout != 5*time.Second {
		t.Errorf("Expected default timeout, got %v", check.Timeout)
	}

	if err := checker.RegisterCheck(nil); err == nil {
		t.Error("Expected error for nil check")
	}
	if err := checker.RegisterCheck(&HealthCheck{CheckFunc: healthy}); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := checker.RegisterCheck(&HealthCheck{Name: "nofunc"}); err == nil {
		t.Error("Expected error for nil check function")
	}
}

func TestHealthChecker_OverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks []*HealthCheck
		want   HealthStatus
	}{
		{"no checks", nil, StatusUnknown},
		{"all healthy", []*HealthCheck{
			RepositoryHealthCheck("store", func(context.Context) error { return nil }),
		}, StatusHealthy},
		{"critical failure", []*HealthCheck{
			RepositoryHealthCheck("store", func(context.Context) error { return errors.New("down") }),
		}, StatusUnhealthy},
		{"non-critical degraded", []*HealthCheck{
			RepositoryHealthCheck("store", func(context.Context) error { return nil }),
			SessionCapacityHealthCheck("sessions", func() int { return 10 }, 10),
		}, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker("rxseal", "test")
			for _, c := range tt.checks {
				if err := checker.RegisterCheck(c); err != nil {
					t.Fatal(err)
				}
			}
			report := checker.CheckHealth(context.Background())
			if report.Status != tt.want {
				t.Errorf("Expected status %s, got %s", tt.want, report.Status)
			}
			if report.Summary.Total != len(tt.checks) {
				t.Errorf("Expected %d results, got %d", len(tt.checks), report.Summary.Total)
			}
		})
	}
}

func TestHealthChecker_ErrorDowngradesHealthy(t *testing.T) {
	checker := NewHealthChecker("rxseal", "test")
	checker.RegisterCheck(&HealthCheck{
		Name:     "liar",
		Critical: true,
		CheckFunc: func(ctx context.Context) (HealthStatus, error) {
			return StatusHealthy, errors.New("actually broken")
		},
	})
	report := checker.CheckHealth(context.Background())
	if report.Results["liar"].Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", report.Results["liar"].Status)
	}
	if report.Summary.CriticalFailed != 1 {
		t.Errorf("Expected 1 critical failure, got %d", report.Summary.CriticalFailed)
	}
}

func TestSessionCapacityHealthCheck_ZeroLimit(t *testing.T) {
	check := SessionCapacityHealthCheck("sessions", func() int { return 1000 }, 0)
	status, err := check.CheckFunc(context.Background())
	if status != StatusHealthy || err != nil {
		t.Errorf("Expected healthy with no limit, got %s %v", status, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	var failing bool
	checker := NewHealthChecker("rxseal", "test")
	checker.RegisterCheck(CipherSelfTestHealthCheck("cipher", func() error {
		if failing {
			return errors.New("self test failed")
		}
		return nil
	}))
	endpoint := NewHealthEndpoint(checker, "/healthz")

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		endpoint.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if report.Status != StatusHealthy || report.ServiceName != "rxseal" {
		t.Errorf("Unexpected report: %+v", report)
	}

	if rec := get("/healthz/live"); rec.Code != http.StatusOK {
		t.Errorf("Expected liveness 200, got %d", rec.Code)
	}
	if rec := get("/healthz/ready"); rec.Code != http.StatusOK {
		t.Errorf("Expected readiness 200, got %d", rec.Code)
	}

	failing = true
	if rec := get("/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
	rec = get("/healthz/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected readiness 503, got %d", rec.Code)
	}
	var ready map[string]any
	json.NewDecoder(rec.Body).Decode(&ready)
	if ready["status"] != "not_ready" {
		t.Errorf("Expected not_ready, got %v", ready["status"])
	}
	if rec := get("/healthz/live"); rec.Code != http.StatusOK {
		t.Errorf("Liveness must not depend on checks, got %d", rec.Code)
	}
}

func TestHealthEndpoint_Metrics(t *testing.T) {
	checker := NewHealthChecker("rxseal", "test")
	endpoint := NewHealthEndpoint(checker, "/healthz").WithMetrics(func() map[string]float64 {
		return map[string]float64{"rxseal.operation,operation=write": 2}
	})

	rec := httptest.NewRecorder()
	endpoint.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Metrics map[string]float64 `json:"metrics"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode metrics: %v", err)
	}
	if body.Metrics["rxseal.operation,operation=write"] != 2 {
		t.Errorf("Unexpected metrics: %v", body.Metrics)
	}

	rec = httptest.NewRecorder()
	NewHealthEndpoint(checker, "/healthz").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without metrics, got %d", rec.Code)
	}
}
