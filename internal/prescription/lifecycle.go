package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"

	"github.com/hengadev/rxseal/internal/crypto"
	"github.com/hengadev/rxseal/internal/fieldcipher"
)

// WriteRequest is a doctor's create-or-replace of a prescription.
type WriteRequest struct {
	AppointmentID string
	Diagnosis     string
	Medicines     string
	Advice        string
	Actor         Actor
}

// BookRequest carries what the booking collaborator supplies.
type BookRequest struct {
	PatientName  string
	PatientEmail string
	DoctorID     string
	DoctorEmail  string
	Date         string
	Time         string
	Disease      string
}

// Manager runs the prescription lifecycle: sign and encrypt on write, decrypt
// and verify on read, and the one-way revoke.
type Manager struct {
	repo   Repository
	fields *fieldcipher.Facade
	signer *crypto.Signer
	now    func() time.Time
}

type ManagerOption func(*Manager)

// WithNow overrides the clock.
func WithNow(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager wires a Manager.
func NewManager(repo Repository, fields *fieldcipher.Facade, signer *crypto.Signer, opts ...ManagerOption) *Manager {
	m := &Manager{repo: repo, fields: fields, signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Book creates a new appointment without a prescription.
func (m *Manager) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	var errs errsx.Map
	required := []struct{ name, value string }{
		{"patientName", req.PatientName},
		{"patientEmail", req.PatientEmail},
		{"doctorId", req.DoctorID},
		{"date", req.Date},
		{"time", req.Time},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs.Set(f.name, newMissingFieldError(f.name))
		}
	}
	if !errs.IsEmpty() {
		return nil, fmt.Errorf("%w: %w", ErrMissingField, errs.AsError())
	}

	now := m.now().UTC()
	a := &Appointment{
		ID:           uuid.NewString(),
		PatientName:  req.PatientName,
		PatientEmail: req.PatientEmail,
		DoctorID:     req.DoctorID,
		DoctorEmail:  req.DoctorEmail,
		Date:         req.Date,
		Time:         req.Time,
		Disease:      req.Disease,
		Status:       StatusBooked,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Cancel marks an appointment Cancelled. Cancelled appointments drop out of
// the patient's listing; a prescription already on it is kept. Cancelling
// twice is not an error.
func (m *Manager) Cancel(ctx context.Context, appointmentID string, actor Actor) error {
	if !actor.Role.Valid() {
		return newForbiddenError(actor, "cancel appointments")
	}
	now := m.now().UTC()
	return m.repo.Update(ctx, appointmentID, func(a *Appointment) error {
		if a.Status == StatusCancelled {
			return nil
		}
		a.Status = StatusCancelled
		a.UpdatedAt = now
		return nil
	})
}

// Write signs the plaintext, encrypts each field and stores the prescription.
// Required fields are checked before any cryptography runs, and a revoked
// prescription is rejected inside the atomic update.
func (m *Manager) Write(ctx context.Context, cc fieldcipher.CipherContext, req WriteRequest) error {
	if req.Actor.Role != RoleDoctor {
		return newForbiddenError(req.Actor, "write prescriptions")
	}

	var errs errsx.Map
	if strings.TrimSpace(req.Diagnosis) == "" {
		errs.Set("diagnosis", newMissingFieldError("diagnosis"))
	}
	if strings.TrimSpace(req.Medicines) == "" {
		errs.Set("medicines", newMissingFieldError("medicines"))
	}
	if !errs.IsEmpty() {
		return fmt.Errorf("%w: %w", ErrMissingField, errs.AsError())
	}

	signature := m.signer.Sign(crypto.PrescriptionPayload(req.Diagnosis, req.Medicines, req.Advice, req.AppointmentID))

	diagnosis, err := m.fields.EncryptField(cc, req.Diagnosis)
	if err != nil {
		return fmt.Errorf("encrypt diagnosis: %w", err)
	}
	medicines, err := m.fields.EncryptField(cc, req.Medicines)
	if err != nil {
		return fmt.Errorf("encrypt medicines: %w", err)
	}
	advice, err := m.fields.EncryptField(cc, req.Advice)
	if err != nil {
		return fmt.Errorf("encrypt advice: %w", err)
	}

	now := m.now().UTC()
	return m.repo.Update(ctx, req.AppointmentID, func(a *Appointment) error {
		if a.Prescription != nil && a.Prescription.IsRevoked {
			return ErrRevokedRecord
		}
		a.Prescription = &Record{
			Diagnosis: diagnosis,
			Medicines: medicines,
			Advice:    advice,
			Signature: signature,
			SignedBy:  req.Actor.ID,
			CreatedAt: now,
		}
		a.Status = StatusCompleted
		a.UpdatedAt = now
		return nil
	})
}

// Read returns the projection of one appointment's prescription for viewer.
func (m *Manager) Read(ctx context.Context, cc fieldcipher.CipherContext, appointmentID string, viewer Actor) (View, error) {
	a, err := m.repo.Get(ctx, appointmentID)
	if err != nil {
		return View{}, err
	}
	if a.Prescription == nil {
		return View{}, newNotFoundError("prescription", appointmentID)
	}
	return m.project(cc, a, viewer.Role), nil
}

// ReadAll lists appointments matching filter with their prescription
// projections. An unreadable record only marks its own entry.
func (m *Manager) ReadAll(ctx context.Context, cc fieldcipher.CipherContext, filter Filter, viewer Actor) ([]Entry, error) {
	items, err := m.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, a := range items {
		e := Entry{
			AppointmentID: a.ID,
			PatientName:   a.PatientName,
			PatientEmail:  a.PatientEmail,
			DoctorID:      a.DoctorID,
			Date:          a.Date,
			Time:          a.Time,
			Status:        a.Status,
		}
		if a.Prescription != nil {
			v := m.project(cc, a, viewer.Role)
			e.Prescription = &v
		}
		out = append(out, e)
	}
	return out, nil
}

// Open returns the verified plaintext for collaborators that must not render
// revoked, unreadable or tampered prescriptions.
func (m *Manager) Open(ctx context.Context, cc fieldcipher.CipherContext, appointmentID string) (Plaintext, error) {
	a, err := m.repo.Get(ctx, appointmentID)
	if err != nil {
		return Plaintext{}, err
	}
	p := a.Prescription
	if p == nil {
		return Plaintext{}, newNotFoundError("prescription", appointmentID)
	}
	if p.IsRevoked {
		return Plaintext{}, ErrRevokedRecord
	}
	diagnosis, medicines, advice, ok := m.decrypt(cc, p)
	if !ok {
		return Plaintext{}, ErrDecryptionFailure
	}
	if !m.signer.Verify(crypto.PrescriptionPayload(diagnosis, medicines, advice, a.ID), p.Signature) {
		return Plaintext{}, ErrInvalidSignature
	}
	return Plaintext{
		AppointmentID: a.ID,
		PatientName:   a.PatientName,
		DoctorID:      a.DoctorID,
		Diagnosis:     diagnosis,
		Medicines:     medicines,
		Advice:        advice,
		SignedBy:      p.SignedBy,
		CreatedAt:     p.CreatedAt,
	}, nil
}

// Revoke permanently revokes a prescription. Only admins may revoke; a
// missing or already revoked prescription reports ErrNotFound.
func (m *Manager) Revoke(ctx context.Context, appointmentID string, actor Actor) error {
	if actor.Role != RoleAdmin {
		return newForbiddenError(actor, "revoke prescriptions")
	}
	now := m.now().UTC()
	return m.repo.Update(ctx, appointmentID, func(a *Appointment) error {
		if a.Prescription == nil || a.Prescription.IsRevoked {
			return fmt.Errorf("%w: prescription not found or already revoked", ErrNotFound)
		}
		a.Prescription.IsRevoked = true
		a.Prescription.Signature = ""
		a.Prescription.RevokedBy = actor.ID
		a.Prescription.RevokedAt = &now
		a.UpdatedAt = now
		return nil
	})
}

// Audit lists every appointment holding a prescription for admins.
func (m *Manager) Audit(ctx context.Context, actor Actor) ([]AuditEntry, error) {
	if actor.Role != RoleAdmin {
		return nil, newForbiddenError(actor, "audit prescriptions")
	}
	items, err := m.repo.List(ctx, Filter{WithPrescription: true})
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(items))
	for _, a := range items {
		out = append(out, AuditEntry{
			AppointmentID: a.ID,
			PatientName:   a.PatientName,
			DoctorID:      a.DoctorID,
			Date:          a.CreatedAt,
			HasSignature:  a.Prescription.Signature != "",
			IsRevoked:     a.Prescription.IsRevoked,
		})
	}
	return out, nil
}

func (m *Manager) project(cc fieldcipher.CipherContext, a *Appointment, role Role) View {
	p := a.Prescription
	staff := role == RoleDoctor || role == RoleAdmin

	if p.IsRevoked {
		v := View{IsRevoked: true}
		if staff {
			v.IsEditable = boolPtr(false)
		}
		return v
	}

	diagnosis, medicines, advice, ok := m.decrypt(cc, p)
	valid := ok && m.signer.Verify(crypto.PrescriptionPayload(diagnosis, medicines, advice, a.ID), p.Signature)
	created := p.CreatedAt

	v := View{
		Diagnosis:  diagnosis,
		Medicines:  medicines,
		Advice:     advice,
		SignedBy:   p.SignedBy,
		CreatedAt:  &created,
		IsValid:    boolPtr(valid),
		Unreadable: !ok,
	}
	if role == RoleDoctor {
		v.IsEditable = boolPtr(true)
	}
	return v
}

// decrypt recovers the three fields; ok is false if any could not be read.
func (m *Manager) decrypt(cc fieldcipher.CipherContext, p *Record) (diagnosis, medicines, advice string, ok bool) {
	d := m.fields.DecryptField(cc, p.Diagnosis)
	md := m.fields.DecryptField(cc, p.Medicines)
	ad := m.fields.DecryptOptional(cc, p.Advice)
	return d.Text, md.Text, ad.Text, !(d.Unreadable || md.Unreadable || ad.Unreadable)
}
