package rxseal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hengadev/rxseal/internal/auth"
	"github.com/hengadev/rxseal/internal/crypto"
	"github.com/hengadev/rxseal/internal/fieldcipher"
	"github.com/hengadev/rxseal/internal/health"
	"github.com/hengadev/rxseal/internal/kex"
	"github.com/hengadev/rxseal/internal/monitoring"
	"github.com/hengadev/rxseal/internal/prescription"
	"github.com/hengadev/rxseal/internal/security"
	"github.com/hengadev/rxseal/internal/store"
	"github.com/hengadev/rxseal/internal/validation"
)

const selfTestPlaintext = "rxseal-self-test"

// AuditExporter publishes an audit report, for example to object storage.
// It returns where the report was written.
type AuditExporter interface {
	Export(ctx context.Context, entries []prescription.AuditEntry, at time.Time) (string, error)
}

// Service ties key exchange, field encryption, signing and the prescription
// store together. It is safe for concurrent use.
type Service struct {
	cfg Config

	repo      prescription.Repository
	sessions  *kex.Store
	fields    *fieldcipher.Facade
	signer    *crypto.Signer
	manager   *prescription.Manager
	verifier  *auth.Verifier
	validator *validation.Validator
	health    *health.HealthChecker
	staticKey crypto.Key

	logger   *monitoring.StructuredLogger
	metrics  monitoring.MetricsCollector
	observer monitoring.Observer
	random   io.Reader
	now      func() time.Time
}

// NewService validates cfg, loads secrets from provider and opens the
// configured store.
func NewService(ctx context.Context, cfg Config, provider SecretProvider, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: secret provider is required", ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if s.logger == nil {
		s.logger = monitoring.NewStructuredLogger(cfg.loggerConfig())
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewInMemoryMetricsCollector()
	}
	s.observer = monitoring.NewObserver(s.logger, s.metrics)

	secrets, defaulted, err := loadSecrets(ctx, provider, cfg.InsecureDefaults)
	if err != nil {
		return nil, err
	}
	for _, name := range defaulted {
		s.logger.Warn("Using built-in development value for secret %s", name)
	}

	s.staticKey = crypto.DeriveKey(secrets.passphrase)
	s.signer, err = crypto.NewSigner(secrets.signingSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	authOpts := []auth.Option{auth.WithClock(s.now)}
	if cfg.JWTIssuer != "" {
		authOpts = append(authOpts, auth.WithIssuer(cfg.JWTIssuer))
	}
	s.verifier, err = auth.NewVerifier(secrets.jwtSecret, authOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	security.ZeroBytes(secrets.signingSecret)
	security.ZeroBytes(secrets.jwtSecret)

	group, err := kex.GroupByName(cfg.KexGroup)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	kdf, err := kex.ParseKDF(cfg.KexKDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	storeOpts := []kex.StoreOption{
		kex.WithTTL(cfg.SessionTTL),
		kex.WithKDF(kdf),
		kex.WithMaxSessions(cfg.MaxSessions),
		kex.WithClock(s.now),
	}
	if s.random != nil {
		storeOpts = append(storeOpts, kex.WithRandom(s.random))
	}
	s.sessions = kex.NewStore(group, storeOpts...)

	s.fields = fieldcipher.New(crypto.NewSymmetricCipher(s.random), s.staticKey)

	s.validator, err = validation.New()
	if err != nil {
		return nil, err
	}

	if s.repo == nil {
		s.repo, err = store.Open(ctx, cfg.StoreDriver, cfg.StorePath)
		if err != nil {
			return nil, err
		}
	}
	s.manager = prescription.NewManager(s.repo, s.fields, s.signer, prescription.WithNow(s.now))

	if err := s.registerHealthChecks(); err != nil {
		s.repo.Close()
		return nil, err
	}

	s.logger.WithFields(map[string]any{
		"store":     cfg.StoreDriver,
		"kex_group": group.Name(),
		"kdf":       string(kdf),
	}).Info("Service started")
	return s, nil
}

func (s *Service) registerHealthChecks() error {
	s.health = health.NewHealthChecker("rxseal", Version)
	checks := []*health.HealthCheck{
		health.RepositoryHealthCheck("store", s.repo.Ping),
		health.CipherSelfTestHealthCheck("cipher", s.SelfTest),
		health.SessionCapacityHealthCheck("sessions", s.sessions.Len, s.cfg.MaxSessions),
	}
	for _, check := range checks {
		if err := s.health.RegisterCheck(check); err != nil {
			return fmt.Errorf("register health check %s: %w", check.Name, err)
		}
	}
	return nil
}

// Config returns the validated configuration.
func (s *Service) Config() Config { return s.cfg }

// Verifier authenticates bearer tokens.
func (s *Service) Verifier() *auth.Verifier { return s.verifier }

// Validator checks request payloads against the embedded JSON schemas.
func (s *Service) Validator() *validation.Validator { return s.validator }

// HealthChecker reports store, cipher and session health.
func (s *Service) HealthChecker() *health.HealthChecker { return s.health }

// Logger returns the service logger.
func (s *Service) Logger() *monitoring.StructuredLogger { return s.logger }

// MetricsSnapshot returns the collector's counters and gauges, or nil when the
// configured collector cannot report them.
func (s *Service) MetricsSnapshot() map[string]float64 {
	if snap, ok := s.metrics.(interface{ Snapshot() map[string]float64 }); ok {
		return snap.Snapshot()
	}
	return nil
}

// ActiveSessions is the number of tracked key exchange sessions.
func (s *Service) ActiveSessions() int { return s.sessions.Len() }

// InitKeyExchange starts or restarts the exchange for sessionID; an empty id
// allocates one. An empty group uses the configured default.
func (s *Service) InitKeyExchange(ctx context.Context, sessionID, group string) (string, kex.Params, error) {
	var g kex.Group
	if group != "" {
		var err error
		if g, err = kex.GroupByName(group); err != nil {
			s.observer.OnKeyExchange(ctx, "init", sessionID, "unknown", err)
			return "", kex.Params{}, err
		}
	}

	id, params, err := s.sessions.InitGroup(ctx, sessionID, g)
	s.observer.OnKeyExchange(ctx, "init", id, params.Group, err)
	if err != nil {
		return "", kex.Params{}, err
	}
	return id, params, nil
}

// CompleteKeyExchange derives the session key from the client's public value.
// The key is kept server side only.
func (s *Service) CompleteKeyExchange(ctx context.Context, sessionID, clientPublic string) error {
	if clientPublic == "" {
		return fmt.Errorf("%w: clientPublicKey", ErrMissingField)
	}
	group := s.sessions.GroupName(sessionID)
	err := s.sessions.Complete(ctx, sessionID, clientPublic)
	s.observer.OnKeyExchange(ctx, "complete", sessionID, group, err)
	return err
}

// EndKeyExchange forgets sessionID and wipes its key.
func (s *Service) EndKeyExchange(sessionID string) {
	s.sessions.Drop(sessionID)
}

// CipherContextFor returns the session context when sessionID has an
// established key and the static context otherwise.
func (s *Service) CipherContextFor(sessionID string) fieldcipher.CipherContext {
	if sessionID == "" {
		return fieldcipher.Static()
	}
	key, ok := s.sessions.Key(sessionID)
	if !ok {
		s.logger.Debug("No established key for session %s, using static key", sessionID)
		return fieldcipher.Static()
	}
	return fieldcipher.Session(key)
}

// Book creates an appointment that can later receive a prescription.
func (s *Service) Book(ctx context.Context, req prescription.BookRequest) (*prescription.Appointment, error) {
	start := s.now()
	a, err := s.manager.Book(ctx, req)
	id := ""
	if a != nil {
		id = a.ID
	}
	s.observer.OnPrescription(ctx, "book", id, req.DoctorID, "", s.now().Sub(start), err)
	return a, err
}

// CancelAppointment marks an appointment Cancelled.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID string, actor prescription.Actor) error {
	start := s.now()
	err := s.manager.Cancel(ctx, appointmentID, actor)
	s.observer.OnPrescription(ctx, "cancel", appointmentID, actor.ID, string(actor.Role), s.now().Sub(start), err)
	return err
}

// WritePrescription signs and encrypts a prescription under the cipher
// context of sessionID.
func (s *Service) WritePrescription(ctx context.Context, sessionID string, req prescription.WriteRequest) error {
	start := s.now()
	err := s.manager.Write(ctx, s.CipherContextFor(sessionID), req)
	s.observer.OnPrescription(ctx, "write", req.AppointmentID, req.Actor.ID, string(req.Actor.Role), s.now().Sub(start), err)
	return err
}

// ReadPrescription returns viewer's projection of one prescription.
func (s *Service) ReadPrescription(ctx context.Context, sessionID, appointmentID string, viewer prescription.Actor) (prescription.View, error) {
	start := s.now()
	v, err := s.manager.Read(ctx, s.CipherContextFor(sessionID), appointmentID, viewer)
	s.observer.OnPrescription(ctx, "read", appointmentID, viewer.ID, string(viewer.Role), s.now().Sub(start), err)
	if err == nil {
		s.reportView(ctx, appointmentID, v)
	}
	return v, err
}

// ListPrescriptions returns the appointments matching filter with their
// prescription projections.
func (s *Service) ListPrescriptions(ctx context.Context, sessionID string, filter prescription.Filter, viewer prescription.Actor) ([]prescription.Entry, error) {
	start := s.now()
	entries, err := s.manager.ReadAll(ctx, s.CipherContextFor(sessionID), filter, viewer)
	s.observer.OnPrescription(ctx, "list", "", viewer.ID, string(viewer.Role), s.now().Sub(start), err)
	for _, e := range entries {
		if e.Prescription != nil {
			s.reportView(ctx, e.AppointmentID, *e.Prescription)
		}
	}
	return entries, err
}

// OpenPrescription returns verified plaintext for document rendering.
func (s *Service) OpenPrescription(ctx context.Context, sessionID, appointmentID string) (prescription.Plaintext, error) {
	p, err := s.manager.Open(ctx, s.CipherContextFor(sessionID), appointmentID)
	switch {
	case errors.Is(err, ErrDecryptionFailure):
		s.observer.OnReadOutcome(ctx, appointmentID, true, false)
	case errors.Is(err, ErrInvalidSignature):
		s.observer.OnReadOutcome(ctx, appointmentID, false, true)
	}
	return p, err
}

// RevokePrescription permanently revokes a prescription.
func (s *Service) RevokePrescription(ctx context.Context, appointmentID string, actor prescription.Actor) error {
	start := s.now()
	err := s.manager.Revoke(ctx, appointmentID, actor)
	s.observer.OnPrescription(ctx, "revoke", appointmentID, actor.ID, string(actor.Role), s.now().Sub(start), err)
	return err
}

// Audit lists every issued prescription for an admin.
func (s *Service) Audit(ctx context.Context, actor prescription.Actor) ([]prescription.AuditEntry, error) {
	start := s.now()
	entries, err := s.manager.Audit(ctx, actor)
	s.observer.OnPrescription(ctx, "audit", "", actor.ID, string(actor.Role), s.now().Sub(start), err)
	return entries, err
}

// ExportAudit runs Audit and hands the report to exporter.
func (s *Service) ExportAudit(ctx context.Context, actor prescription.Actor, exporter AuditExporter) (string, error) {
	entries, err := s.Audit(ctx, actor)
	if err != nil {
		return "", err
	}
	location, err := exporter.Export(ctx, entries, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("export audit: %w", err)
	}
	s.logger.WithContext(ctx).Info("Exported audit report with %d entries to %s", len(entries), location)
	return location, nil
}

// SelfTest encrypts, decrypts and signs a fixed value under the static key.
func (s *Service) SelfTest() error {
	cc := fieldcipher.Static()
	ct, err := s.fields.EncryptField(cc, selfTestPlaintext)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	field := s.fields.DecryptField(cc, ct)
	if field.Unreadable {
		return fmt.Errorf("%w: %v", ErrDecryptionFailure, field.Err)
	}
	if field.Text != selfTestPlaintext {
		return fmt.Errorf("%w: round trip mismatch", ErrDecryptionFailure)
	}
	if !s.signer.Verify(selfTestPlaintext, s.signer.Sign(selfTestPlaintext)) {
		return ErrInvalidSignature
	}
	return nil
}

// Run sweeps expired key exchange sessions until ctx is done.
func (s *Service) Run(ctx context.Context) {
	interval := time.Minute
	if ttl := s.cfg.SessionTTL; ttl > 0 && ttl/2 < interval {
		interval = ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepSessions(ctx)
		}
	}
}

// SweepSessions drops expired sessions and returns how many were removed.
func (s *Service) SweepSessions(ctx context.Context) int {
	expired := s.sessions.Sweep(s.now())
	s.observer.OnSessionsSwept(ctx, expired, s.sessions.Len())
	return expired
}

// Close releases the store.
func (s *Service) Close() error {
	security.ZeroKey((*[32]byte)(&s.staticKey))
	if err := s.repo.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func (s *Service) reportView(ctx context.Context, appointmentID string, v prescription.View) {
	if v.IsRevoked {
		return
	}
	s.observer.OnReadOutcome(ctx, appointmentID, v.Unreadable, !v.Unreadable && !v.Valid())
}
