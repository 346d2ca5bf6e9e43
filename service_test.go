package rxseal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/rxseal/internal/fieldcipher"
	"github.com/hengadev/rxseal/internal/health"
	"github.com/hengadev/rxseal/internal/kex"
	"github.com/hengadev/rxseal/internal/monitoring"
	"github.com/hengadev/rxseal/internal/prescription"
)

var (
	testDoctor  = prescription.Actor{ID: "doc-1", Role: prescription.RoleDoctor}
	testPatient = prescription.Actor{ID: "pat-1", Role: prescription.RolePatient}
	testAdmin   = prescription.Actor{ID: "adm-1", Role: prescription.RoleAdmin}
)

type serviceFixture struct {
	svc     *Service
	metrics *monitoring.InMemoryMetricsCollector
	now     time.Time
}

func testSecrets(t *testing.T) *InMemorySecretStore {
	t.Helper()
	ctx := context.Background()
	store := NewInMemorySecretStore()
	require.NoError(t, store.StoreSecret(ctx, SecretEncryptionPassphrase, []byte("medicare-secret-key")))
	require.NoError(t, store.StoreSecret(ctx, SecretSigningSecret, []byte("medicare-sign-key")))
	require.NoError(t, store.StoreSecret(ctx, SecretJWTSecret, []byte("jwt-test-secret")))
	return store
}

func newServiceFixture(t *testing.T, cfg Config) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		metrics: monitoring.NewInMemoryMetricsCollector(),
		now:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	cfg.StoreDriver = "memory"
	svc, err := NewService(context.Background(), cfg, testSecrets(t),
		WithRepository(prescription.NewMemoryRepository()),
		WithLogger(monitoring.NewNopLogger()),
		WithMetrics(f.metrics),
		WithClock(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	f.svc = svc
	return f
}

func (f *serviceFixture) book(t *testing.T) string {
	t.Helper()
	a, err := f.svc.Book(context.Background(), prescription.BookRequest{
		PatientName:  "Jane Roe",
		PatientEmail: "jane@example.com",
		DoctorID:     testDoctor.ID,
		Date:         "2024-03-01",
		Time:         "10:00",
	})
	require.NoError(t, err)
	return a.ID
}

// establish runs the client side of a key exchange against the service.
func (f *serviceFixture) establish(t *testing.T, groupName string) string {
	t.Helper()
	ctx := context.Background()
	sessionID, params, err := f.svc.InitKeyExchange(ctx, "", groupName)
	require.NoError(t, err)

	group, err := kex.GroupByName(params.Group)
	require.NoError(t, err)
	pair, err := group.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.CompleteKeyExchange(ctx, sessionID, pair.PublicKey()))
	return sessionID
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, Config{KexGroup: kex.GroupX25519})
	id := f.book(t)
	sessionID := f.establish(t, "")

	assert.Equal(t, fieldcipher.ModeSession, f.svc.CipherContextFor(sessionID).Mode())
	assert.Equal(t, int64(1), f.metrics.GetCounter(monitoring.MetricKeyExchangeComplete, map[string]string{"group": kex.GroupX25519}))

	require.NoError(t, f.svc.WritePrescription(ctx, sessionID, prescription.WriteRequest{
		AppointmentID: id,
		Diagnosis:     "flu",
		Medicines:     "paracetamol",
		Advice:        "rest",
		Actor:         testDoctor,
	}))

	view, err := f.svc.ReadPrescription(ctx, sessionID, id, testPatient)
	require.NoError(t, err)
	assert.True(t, view.Valid())
	assert.Equal(t, "flu", view.Diagnosis)
	assert.Nil(t, view.IsEditable)

	doctorView, err := f.svc.ReadPrescription(ctx, sessionID, id, testDoctor)
	require.NoError(t, err)
	assert.True(t, doctorView.Editable())

	// Without the session key the record does not verify.
	static, err := f.svc.ReadPrescription(ctx, "", id, testPatient)
	require.NoError(t, err)
	assert.False(t, static.Valid())

	require.NoError(t, f.svc.RevokePrescription(ctx, id, testAdmin))

	redacted, err := f.svc.ReadPrescription(ctx, sessionID, id, testPatient)
	require.NoError(t, err)
	assert.Equal(t, prescription.View{IsRevoked: true}, redacted)

	err = f.svc.WritePrescription(ctx, sessionID, prescription.WriteRequest{
		AppointmentID: id,
		Diagnosis:     "cold",
		Medicines:     "tea",
		Actor:         testDoctor,
	})
	assert.ErrorIs(t, err, ErrRevokedRecord)
	assert.True(t, IsClientError(err))

	_, err = f.svc.OpenPrescription(ctx, sessionID, id)
	assert.ErrorIs(t, err, ErrRevokedRecord)

	assert.Equal(t, int64(1), f.metrics.GetCounter(monitoring.MetricOperation, map[string]string{"operation": "revoke"}))
	assert.Equal(t, int64(1), f.metrics.GetCounter(monitoring.MetricOperationFailed, map[string]string{"operation": "write"}))
}

func TestService_StaticFallback(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, Config{})
	id := f.book(t)

	require.NoError(t, f.svc.WritePrescription(ctx, "", prescription.WriteRequest{
		AppointmentID: id,
		Diagnosis:     "flu",
		Medicines:     "paracetamol",
		Actor:         testDoctor,
	}))

	// An id with no established key falls back to the static key.
	view, err := f.svc.ReadPrescription(ctx, uuid.NewString(), id, testPatient)
	require.NoError(t, err)
	assert.True(t, view.Valid())
	assert.Equal(t, "paracetamol", view.Medicines)

	plain, err := f.svc.OpenPrescription(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, "flu", plain.Diagnosis)
	assert.Equal(t, testDoctor.ID, plain.SignedBy)
}

func TestService_KeyExchangeErrors(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, Config{})

	err := f.svc.CompleteKeyExchange(ctx, uuid.NewString(), "abcd")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = f.svc.CompleteKeyExchange(ctx, uuid.NewString(), "")
	assert.ErrorIs(t, err, ErrMissingField)

	_, _, err = f.svc.InitKeyExchange(ctx, "", "ffdhe9000")
	assert.ErrorIs(t, err, ErrUnknownGroup)

	_, _, err = f.svc.InitKeyExchange(ctx, "not-a-uuid", "")
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	sessionID, params, err := f.svc.InitKeyExchange(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, kex.GroupMODP2048, params.Group)
	assert.NotEmpty(t, params.Prime)
	assert.Equal(t, "02", params.Generator)

	err = f.svc.CompleteKeyExchange(ctx, sessionID, "01")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
	assert.Equal(t, fieldcipher.ModeStatic, f.svc.CipherContextFor(sessionID).Mode())
	assert.Equal(t, int64(1), f.metrics.GetCounter(monitoring.MetricKeyExchangeFailed, map[string]string{"group": kex.GroupMODP2048, "step": "complete"}))
}

func TestService_SessionExpiry(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, Config{KexGroup: kex.GroupP256, SessionTTL: time.Minute})
	sessionID := f.establish(t, "")
	require.Equal(t, fieldcipher.ModeSession, f.svc.CipherContextFor(sessionID).Mode())

	f.now = f.now.Add(2 * time.Minute)
	assert.Equal(t, fieldcipher.ModeStatic, f.svc.CipherContextFor(sessionID).Mode())

	// Expiry keeps reporting until the sweeper removes the session.
	err := f.svc.CompleteKeyExchange(ctx, sessionID, "abcd")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, f.svc.CompleteKeyExchange(ctx, sessionID, "abcd"), ErrSessionExpired)

	f.establish(t, "")
	f.now = f.now.Add(2 * time.Minute)
	assert.Equal(t, 2, f.svc.SweepSessions(ctx))
	assert.Equal(t, 0, f.svc.ActiveSessions())
	assert.Equal(t, int64(2), f.metrics.GetCounter(monitoring.MetricSessionsExpired, nil))
}

func TestService_MaxSessions(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, Config{KexGroup: kex.GroupX25519, MaxSessions: 2})

	f.establish(t, "")
	f.establish(t, "")
	_, _, err := f.svc.InitKeyExchange(ctx, "", "")
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 2, f.svc.ActiveSessions())

	report := f.svc.HealthChecker().CheckHealth(ctx)
	assert.Equal(t, health.StatusDegraded, report.Status)
}

func TestService_CancelAppointment(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, Config{})
	id := f.book(t)
	kept := f.book(t)

	require.NoError(t, f.svc.CancelAppointment(ctx, id, testPatient))
	entries, err := f.svc.ListPrescriptions(ctx, "", prescription.Filter{PatientEmail: "jane@example.com", ExcludeCancelled: true}, testPatient)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, kept, entries[0].AppointmentID)
	assert.Equal(t, int64(1), f.metrics.GetCounter(monitoring.MetricOperation, map[string]string{"operation": "cancel"}))

	assert.ErrorIs(t, f.svc.CancelAppointment(ctx, uuid.NewString(), testPatient), ErrNotFound)
}

func TestService_MetricsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, Config{KexGroup: kex.GroupX25519})
	f.establish(t, "")

	_, _, err := f.svc.InitKeyExchange(ctx, "", "made-up-group")
	require.ErrorIs(t, err, ErrUnknownGroup)

	snap := f.svc.MetricsSnapshot()
	assert.Equal(t, 1.0, snap[monitoring.MetricKeyExchangeComplete+",group="+kex.GroupX25519])
	assert.Equal(t, 1.0, snap[monitoring.MetricKeyExchangeFailed+",group=unknown,step=init"])
	for key := range snap {
		assert.NotContains(t, key, "made-up-group")
	}

	svc, err := NewService(ctx, Config{StoreDriver: "memory"}, testSecrets(t),
		WithLogger(monitoring.NewNopLogger()),
		WithMetrics(&monitoring.NoOpMetricsCollector{}),
	)
	require.NoError(t, err)
	defer svc.Close()
	assert.Nil(t, svc.MetricsSnapshot())
}

func TestService_Health(t *testing.T) {
	f := newServiceFixture(t, Config{})
	require.NoError(t, f.svc.SelfTest())

	report := f.svc.HealthChecker().CheckHealth(context.Background())
	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Len(t, report.Results, 3)
}

func TestService_Secrets(t *testing.T) {
	ctx := context.Background()
	cfg := Config{StoreDriver: "memory"}

	_, err := NewService(ctx, cfg, NewInMemorySecretStore(), WithLogger(monitoring.NewNopLogger()))
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.True(t, IsConfigurationError(err))

	cfg.InsecureDefaults = true
	svc, err := NewService(ctx, cfg, NewInMemorySecretStore(), WithLogger(monitoring.NewNopLogger()))
	require.NoError(t, err)
	defer svc.Close()
	assert.NoError(t, svc.SelfTest())

	_, err = NewService(ctx, cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) Export(ctx context.Context, entries []prescription.AuditEntry, at time.Time) (string, error) {
	args := m.Called(ctx, entries, at)
	return args.String(0), args.Error(1)
}

func TestService_ExportAudit(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, Config{})
	id := f.book(t)
	require.NoError(t, f.svc.WritePrescription(ctx, "", prescription.WriteRequest{
		AppointmentID: id,
		Diagnosis:     "flu",
		Medicines:     "paracetamol",
		Actor:         testDoctor,
	}))

	exporter := &mockExporter{}
	exporter.On("Export", mock.Anything, mock.MatchedBy(func(entries []prescription.AuditEntry) bool {
		return len(entries) == 1 && entries[0].AppointmentID == id && entries[0].HasSignature
	}), f.now).Return("s3://bucket/audits/report.json", nil)

	location, err := f.svc.ExportAudit(ctx, testAdmin, exporter)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/audits/report.json", location)
	exporter.AssertExpectations(t)

	_, err = f.svc.ExportAudit(ctx, testDoctor, exporter)
	assert.ErrorIs(t, err, ErrForbidden)
	exporter.AssertNumberOfCalls(t, "Export", 1)
}
