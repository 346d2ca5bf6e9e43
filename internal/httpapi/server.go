// Package httpapi serves the key exchange and prescription endpoints over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hengadev/rxseal"
	"github.com/hengadev/rxseal/internal/auth"
	"github.com/hengadev/rxseal/internal/health"
	"github.com/hengadev/rxseal/internal/monitoring"
)

const (
	// HeaderSessionID selects the key exchange session whose key protects the
	// request's prescription fields.
	HeaderSessionID = "X-Session-ID"
	HeaderRequestID = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// Server routes requests to an rxseal.Service.
type Server struct {
	svc     *rxseal.Service
	logger  *monitoring.StructuredLogger
	handler http.Handler
}

// New builds the route table. Key exchange and health endpoints are public;
// everything under /api/appointments and /api/admin needs a bearer token.
func New(svc *rxseal.Service) *Server {
	s := &Server{svc: svc, logger: svc.Logger()}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/appointments/book", s.handleBook)
	protected.HandleFunc("PUT /api/appointments/cancel/{id}", s.handleCancel)
	protected.HandleFunc("POST /api/appointments/prescription/{id}", s.handleWritePrescription)
	protected.HandleFunc("GET /api/appointments/prescription/{id}", s.handleReadPrescription)
	protected.HandleFunc("GET /api/appointments/prescription/{id}/document", s.handleDocument)
	protected.HandleFunc("GET /api/appointments/patient/{email}", s.handleListByPatient)
	protected.HandleFunc("GET /api/appointments/doctor/{id}", s.handleListByDoctor)
	protected.HandleFunc("PUT /api/admin/prescription/revoke/{id}", s.handleRevoke)
	protected.HandleFunc("GET /api/admin/prescriptions", s.handleAudit)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/crypto/key-exchange/init", s.handleInitKeyExchange)
	mux.HandleFunc("POST /api/crypto/key-exchange/complete", s.handleCompleteKeyExchange)
	mux.HandleFunc("DELETE /api/crypto/key-exchange/{id}", s.handleEndKeyExchange)
	authed := auth.Middleware(svc.Verifier(), s.writeError)(protected)
	mux.Handle("/api/appointments/", authed)
	mux.Handle("/api/admin/", authed)

	healthz := health.NewHealthEndpoint(svc.HealthChecker(), "/healthz").WithMetrics(svc.MetricsSnapshot)
	mux.Handle("/healthz", healthz)
	mux.Handle("/healthz/", healthz)

	s.handler = s.withRequestID(mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HTTPServer wraps the handler with the timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(monitoring.ContextWithRequestID(r.Context(), id)))
	})
}

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, envelope{"success": false, "message": message})
}

// classify maps service errors to a status code and a client-safe message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rxseal.ErrRevokedRecord):
		return http.StatusConflict, "Prescription revoked by admin"
	case errors.Is(err, rxseal.ErrTooManySessions):
		return http.StatusServiceUnavailable, "Too many key exchange sessions, retry later"
	case errors.Is(err, rxseal.ErrNotInitialized):
		return http.StatusConflict, "Key exchange not initialized"
	case errors.Is(err, rxseal.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, rxseal.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case rxseal.IsAuthError(err):
		return http.StatusUnauthorized, "Unauthorized"
	case rxseal.IsCryptoError(err):
		return http.StatusUnprocessableEntity, err.Error()
	case rxseal.IsClientError(err):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rxseal.ErrInvalidPayload, err)
	}
	return body, nil
}
