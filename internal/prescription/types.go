package prescription

import "time"

// Role is the caller's role as asserted by the authentication layer.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Actor identifies who performs an operation.
type Actor struct {
	ID   string
	Role Role
}

// Status of the owning appointment.
type Status string

const (
	StatusBooked    Status = "Booked"
	StatusCancelled Status = "Cancelled"
	StatusCompleted Status = "Completed"
)

// Record is a prescription as stored: three independently encrypted fields
// and an HMAC over their plaintext plus the appointment id.
type Record struct {
	Diagnosis string     `json:"diagnosis"`
	Medicines string     `json:"medicines"`
	Advice    string     `json:"advice,omitempty"`
	Signature string     `json:"signature,omitempty"`
	SignedBy  string     `json:"signedBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	IsRevoked bool       `json:"isRevoked"`
	RevokedBy string     `json:"revokedBy,omitempty"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Appointment owns at most one prescription.
type Appointment struct {
	ID           string    `json:"id"`
	PatientName  string    `json:"patientName"`
	PatientEmail string    `json:"patientEmail"`
	DoctorID     string    `json:"doctorId"`
	DoctorEmail  string    `json:"doctorEmail,omitempty"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Disease      string    `json:"disease,omitempty"`
	Status       Status    `json:"status"`
	Prescription *Record   `json:"prescription,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	c := *a
	if a.Prescription != nil {
		p := *a.Prescription
		if a.Prescription.RevokedAt != nil {
			t := *a.Prescription.RevokedAt
			p.RevokedAt = &t
		}
		c.Prescription = &p
	}
	return &c
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	PatientEmail     string
	DoctorID         string
	WithPrescription bool
	ExcludeCancelled bool
}

// Match reports whether a satisfies the filter.
func (f Filter) Match(a *Appointment) bool {
	if f.PatientEmail != "" && a.PatientEmail != f.PatientEmail {
		return false
	}
	if f.DoctorID != "" && a.DoctorID != f.DoctorID {
		return false
	}
	if f.WithPrescription && a.Prescription == nil {
		return false
	}
	if f.ExcludeCancelled && a.Status == StatusCancelled {
		return false
	}
	return true
}

// View is the read projection of a prescription. Revoked prescriptions carry
// only IsRevoked (and IsEditable for staff).
type View struct {
	Diagnosis  string     `json:"diagnosis,omitempty"`
	Medicines  string     `json:"medicines,omitempty"`
	Advice     string     `json:"advice,omitempty"`
	SignedBy   string     `json:"signedBy,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	IsValid    *bool      `json:"isValid,omitempty"`
	IsRevoked  bool       `json:"isRevoked,omitempty"`
	IsEditable *bool      `json:"isEditable,omitempty"`
	Unreadable bool       `json:"unreadable,omitempty"`
}

// Valid reports the integrity flag, false when absent.
func (v View) Valid() bool { return v.IsValid != nil && *v.IsValid }

// Editable reports the editability flag, false when absent.
func (v View) Editable() bool { return v.IsEditable != nil && *v.IsEditable }

// Entry is one appointment in a listing with its prescription projection.
type Entry struct {
	AppointmentID string `json:"id"`
	PatientName   string `json:"patientName"`
	PatientEmail  string `json:"patientEmail"`
	DoctorID      string `json:"doctorId"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        Status `json:"status"`
	Prescription  *View  `json:"prescription,omitempty"`
}

// AuditEntry is the admin overview of one issued prescription.
type AuditEntry struct {
	AppointmentID string    `json:"id"`
	PatientName   string    `json:"patientName"`
	DoctorID      string    `json:"doctorId"`
	Date          time.Time `json:"date"`
	HasSignature  bool      `json:"hasSignature"`
	IsRevoked     bool      `json:"isRevoked"`
}

// Plaintext is a fully verified prescription handed to collaborators such as
// document renderers.
type Plaintext struct {
	AppointmentID string
	PatientName   string
	DoctorID      string
	Diagnosis     string
	Medicines     string
	Advice        string
	SignedBy      string
	CreatedAt     time.Time
}

func boolPtr(b bool) *bool { return &b }
