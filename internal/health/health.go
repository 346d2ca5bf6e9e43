package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnknown   HealthStatus = "unknown"
)

// HealthCheck represents a health check for a component
type HealthCheck struct {
	Name        string                                      `json:"name"`
	Description string                                      `json:"description"`
	CheckFunc   func(context.Context) (HealthStatus, error) `json:"-"`
	Timeout     time.Duration                               `json:"timeout"`
	Critical    bool                                        `json:"critical"`
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Critical  bool          `json:"critical"`
}

// HealthReport represents the overall health status of the system
type HealthReport struct {
	Status      HealthStatus             `json:"status"`
	Timestamp   time.Time                `json:"timestamp"`
	Duration    time.Duration            `json:"duration"`
	Version     string                   `json:"version,omitempty"`
	ServiceName string                   `json:"service_name,omitempty"`
	Results     map[string]*HealthResult `json:"results"`
	Summary     *HealthSummary           `json:"summary"`
}

// HealthSummary provides a summary of health check results
type HealthSummary struct {
	Total          int `json:"total"`
	Healthy        int `json:"healthy"`
	Unhealthy      int `json:"unhealthy"`
	Degraded       int `json:"degraded"`
	Unknown        int `json:"unknown"`
	CriticalFailed int `json:"critical_failed"`
}

// HealthChecker manages and executes health checks
type HealthChecker struct {
	checks      map[string]*HealthCheck
	mutex       sync.RWMutex
	version     string
	serviceName string
	timeout     time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(serviceName, version string) *HealthChecker {
	return &HealthChecker{
		checks:      make(map[string]*HealthCheck),
		serviceName: serviceName,
		version:     version,
		timeout:     5 * time.Second,
	}
}

// RegisterCheck registers a health check
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) error {
	if check == nil {
		return fmt.Errorf("health check cannot be nil")
	}
	if check.Name == "" {
		return fmt.Errorf("health check name cannot be empty")
	}
	if check.CheckFunc == nil {
		return fmt.Errorf("health check function cannot be nil")
	}

	hc.mutex.Lock()
	defer hc.mutex.Unlock()
	if check.Timeout == 0 {
		check.Timeout = hc.timeout
	}
	hc.checks[check.Name] = check
	return nil
}

// GetCheck returns a health check by name
func (hc *HealthChecker) GetCheck(name string) (*HealthCheck, bool) {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()
	check, exists := hc.checks[name]
	return check, exists
}

// CheckHealth executes all registered health checks concurrently
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthReport {
	startTime := time.Now()

	hc.mutex.RLock()
	checks := make(map[string]*HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		checks[name] = check
	}
	hc.mutex.RUnlock()

	results := make(map[string]*HealthResult, len(checks))
	var (
		wg          sync.WaitGroup
		resultMutex sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check *HealthCheck) {
			defer wg.Done()
			result := executeCheck(ctx, name, check)
			resultMutex.Lock()
			results[name] = result
			resultMutex.Unlock()
		}(name, check)
	}
	wg.Wait()

	return &HealthReport{
		Status:      overallStatus(results),
		Timestamp:   time.Now(),
		Duration:    time.Since(startTime),
		Version:     hc.version,
		ServiceName: hc.serviceName,
		Results:     results,
		Summary:     summarize(results),
	}
}

func executeCheck(ctx context.Context, name string, check *HealthCheck) *HealthResult {
	startTime := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	result := &HealthResult{
		Name:      name,
		Timestamp: startTime,
		Critical:  check.Critical,
	}

	status, err := check.CheckFunc(checkCtx)
	result.Duration = time.Since(startTime)
	result.Status = status
	if err != nil {
		result.Error = err.Error()
		result.Message = fmt.Sprintf("Health check failed: %v", err)
		if result.Status == StatusHealthy {
			result.Status = StatusUnhealthy
		}
	}
	return result
}

func summarize(results map[string]*HealthResult) *HealthSummary {
	summary := &HealthSummary{}
	for _, result := range results {
		summary.Total++
		switch result.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusUnhealthy:
			summary.Unhealthy++
			if result.Critical {
				summary.CriticalFailed++
			}
		case StatusDegraded:
			summary.Degraded++
		default:
			summary.Unknown++
		}
	}
	return summary
}

// overallStatus is unhealthy when a critical check fails, degraded when any
// other check is not healthy.
func overallStatus(results map[string]*HealthResult) HealthStatus {
	if len(results) == 0 {
		return StatusUnknown
	}

	var degraded bool
	for _, result := range results {
		switch result.Status {
		case StatusHealthy:
		case StatusDegraded:
			degraded = true
		default:
			if result.Critical {
				return StatusUnhealthy
			}
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// HealthEndpoint serves the health report, liveness and readiness checks
// under a common prefix.
type HealthEndpoint struct {
	checker *HealthChecker
	prefix  string
	mux     *http.ServeMux
}

// NewHealthEndpoint mounts the endpoints under prefix, for example "/healthz".
func NewHealthEndpoint(checker *HealthChecker, prefix string) *HealthEndpoint {
	he := &HealthEndpoint{
		checker: checker,
		prefix:  prefix,
		mux:     http.NewServeMux(),
	}
	he.mux.HandleFunc("GET "+prefix, he.handleHealth)
	he.mux.HandleFunc("GET "+prefix+"/live", he.handleLiveness)
	he.mux.HandleFunc("GET "+prefix+"/ready", he.handleReadiness)
	return he
}

// WithMetrics serves snapshot under prefix+"/metrics".
func (he *HealthEndpoint) WithMetrics(snapshot func() map[string]float64) *HealthEndpoint {
	he.mux.HandleFunc("GET "+he.prefix+"/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"timestamp": time.Now(),
			"metrics":   snapshot(),
		})
	})
	return he
}

func (he *HealthEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	he.mux.ServeHTTP(w, r)
}

func (he *HealthEndpoint) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := he.checker.CheckHealth(r.Context())

	status := http.StatusOK
	if report.Status == StatusUnhealthy || report.Status == StatusUnknown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (he *HealthEndpoint) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
		"message":   "Service is alive",
	})
}

func (he *HealthEndpoint) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := he.checker.CheckHealth(r.Context())

	criticalHealthy := true
	for _, result := range report.Results {
		if result.Critical && result.Status != StatusHealthy {
			criticalHealthy = false
			break
		}
	}

	response := map[string]any{
		"timestamp":               time.Now(),
		"critical_checks_passing": criticalHealthy,
	}
	if criticalHealthy {
		response["status"] = "ready"
		writeJSON(w, http.StatusOK, response)
		return
	}
	response["status"] = "not_ready"
	writeJSON(w, http.StatusServiceUnavailable, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RepositoryHealthCheck pings the prescription store.
func RepositoryHealthCheck(name string, ping func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:        name,
		Description: "Prescription store connectivity",
		Critical:    true,
		Timeout:     5 * time.Second,
		CheckFunc: func(ctx context.Context) (HealthStatus, error) {
			if err := ping(ctx); err != nil {
				return StatusUnhealthy, err
			}
			return StatusHealthy, nil
		},
	}
}

// CipherSelfTestHealthCheck runs an encrypt, decrypt and sign round trip
// under the static keys.
func CipherSelfTestHealthCheck(name string, selfTest func() error) *HealthCheck {
	return &HealthCheck{
		Name:        name,
		Description: "Field cipher and signer self test",
		Critical:    true,
		Timeout:     time.Second,
		CheckFunc: func(ctx context.Context) (HealthStatus, error) {
			if err := selfTest(); err != nil {
				return StatusUnhealthy, err
			}
			return StatusHealthy, nil
		},
	}
}

// SessionCapacityHealthCheck reports degraded once the number of live key
// exchange sessions reaches limit. A zero limit disables the threshold.
func SessionCapacityHealthCheck(name string, active func() int, limit int) *HealthCheck {
	return &HealthCheck{
		Name:        name,
		Description: "Key exchange session store capacity",
		Critical:    false,
		Timeout:     time.Second,
		CheckFunc: func(ctx context.Context) (HealthStatus, error) {
			n := active()
			if limit > 0 && n >= limit {
				return StatusDegraded, fmt.Errorf("%d active sessions, limit %d", n, limit)
			}
			return StatusHealthy, nil
		},
	}
}
