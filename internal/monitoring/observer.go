package monitoring

import (
	"context"
	"time"
)

// Observer receives lifecycle and key exchange outcomes from the service.
type Observer interface {
	OnKeyExchange(ctx context.Context, step, sessionID, group string, err error)
	OnPrescription(ctx context.Context, operation, appointmentID, actorID, role string, duration time.Duration, err error)
	OnReadOutcome(ctx context.Context, appointmentID string, unreadable, invalidSignature bool)
	OnSessionsSwept(ctx context.Context, expired, active int)
}

// NoOpObserver ignores everything.
type NoOpObserver struct{}

func (NoOpObserver) OnKeyExchange(context.Context, string, string, string, error) {}
func (NoOpObserver) OnPrescription(context.Context, string, string, string, string, time.Duration, error) {
}
func (NoOpObserver) OnReadOutcome(context.Context, string, bool, bool) {}
func (NoOpObserver) OnSessionsSwept(context.Context, int, int)         {}

// StandardObserver logs through a StructuredLogger and counts through a
// MetricsCollector.
type StandardObserver struct {
	logger  *StructuredLogger
	metrics MetricsCollector
}

// NewObserver wires logger and metrics; nil arguments become no-ops.
func NewObserver(logger *StructuredLogger, metrics MetricsCollector) *StandardObserver {
	if logger == nil {
		logger = NewNopLogger()
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &StandardObserver{logger: logger, metrics: metrics}
}

func (o *StandardObserver) OnKeyExchange(ctx context.Context, step, sessionID, group string, err error) {
	o.logger.LogKeyExchange(ctx, step, sessionID, group, err)
	tags := map[string]string{"group": group}
	if err != nil {
		tags["step"] = step
		o.metrics.IncrementCounter(MetricKeyExchangeFailed, tags)
		return
	}
	switch step {
	case "init":
		o.metrics.IncrementCounter(MetricKeyExchangeInit, tags)
	case "complete":
		o.metrics.IncrementCounter(MetricKeyExchangeComplete, tags)
	}
}

func (o *StandardObserver) OnPrescription(ctx context.Context, operation, appointmentID, actorID, role string, duration time.Duration, err error) {
	o.logger.LogPrescriptionEvent(ctx, operation, appointmentID, actorID, role, duration, err)
	tags := map[string]string{"operation": operation}
	o.metrics.RecordTiming(MetricOperationDuration, duration, tags)
	if err != nil {
		o.metrics.IncrementCounter(MetricOperationFailed, tags)
		return
	}
	o.metrics.IncrementCounter(MetricOperation, tags)

	if operation == "revoke" {
		o.logger.LogSecurityEvent(ctx, "prescription_revoked", "medium", map[string]any{
			"appointment_id": appointmentID,
			"actor_id":       actorID,
		})
	}
}

func (o *StandardObserver) OnReadOutcome(ctx context.Context, appointmentID string, unreadable, invalidSignature bool) {
	if unreadable {
		o.metrics.IncrementCounter(MetricUnreadableRecords, nil)
		o.logger.LogSecurityEvent(ctx, "prescription_unreadable", "medium", map[string]any{
			"appointment_id": appointmentID,
		})
		return
	}
	if invalidSignature {
		o.metrics.IncrementCounter(MetricInvalidSignatures, nil)
		o.logger.LogSecurityEvent(ctx, "prescription_signature_mismatch", "high", map[string]any{
			"appointment_id": appointmentID,
		})
	}
}

func (o *StandardObserver) OnSessionsSwept(ctx context.Context, expired, active int) {
	o.metrics.SetGauge(MetricSessionsActive, float64(active), nil)
	if expired > 0 {
		o.metrics.IncrementCounterBy(MetricSessionsExpired, int64(expired), nil)
		o.logger.WithContext(ctx).Debug("Swept %d expired key exchange sessions", expired)
	}
}
