package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hengadev/rxseal/internal/prescription"
)

const timeLayout = time.RFC3339Nano

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		patient_name TEXT NOT NULL,
		patient_email TEXT NOT NULL,
		doctor_id TEXT NOT NULL,
		doctor_email TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		disease TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		has_prescription BOOLEAN NOT NULL DEFAULT FALSE,
		rx_diagnosis TEXT,
		rx_medicines TEXT,
		rx_advice TEXT,
		rx_signature TEXT,
		rx_signed_by TEXT,
		rx_created_at TEXT,
		rx_is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
		rx_revoked_by TEXT,
		rx_revoked_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments(patient_email);
	CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments(doctor_id);
`

const selectColumns = `id, patient_name, patient_email, doctor_id, doctor_email, date, time, disease,
	status, created_at, updated_at, has_prescription, rx_diagnosis, rx_medicines, rx_advice,
	rx_signature, rx_signed_by, rx_created_at, rx_is_revoked, rx_revoked_by, rx_revoked_at`

// SQLiteRepository stores appointments in a SQLite database. Updates run in
// immediate transactions so concurrent writers serialize on the database lock.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at '%s': %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection test failed for '%s': %w", path, err)
	}
	repo, err := NewSQLiteRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLiteRepository wraps an open database and applies the schema.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, a *prescription.Appointment) error {
	if err := insertAppointment(ctx, r.db, a); err != nil {
		if isUniqueViolation(err) {
			return prescription.ErrAppointmentExists
		}
		return fmt.Errorf("failed to insert appointment '%s': %w", a.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*prescription.Appointment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = ?`, id)
	return scanAppointment(row, id)
}

// Update runs fn inside a transaction and writes the result back.
func (r *SQLiteRepository) Update(ctx context.Context, id string, fn func(a *prescription.Appointment) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row, id)
	if err != nil {
		return err
	}
	if err = fn(a); err != nil {
		return err
	}
	a.ID = id
	if err = updateAppointment(ctx, tx, a); err != nil {
		return fmt.Errorf("failed to update appointment '%s': %w", id, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, filter prescription.Filter) ([]*prescription.Appointment, error) {
	var (
		where []string
		args  []any
	)
	if filter.PatientEmail != "" {
		where = append(where, "patient_email = ?")
		args = append(args, filter.PatientEmail)
	}
	if filter.DoctorID != "" {
		where = append(where, "doctor_id = ?")
		args = append(args, filter.DoctorID)
	}
	if filter.WithPrescription {
		where = append(where, "has_prescription = TRUE")
	}
	if filter.ExcludeCancelled {
		where = append(where, "status != ?")
		args = append(args, string(prescription.StatusCancelled))
	}

	query := `SELECT ` + selectColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var out []*prescription.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	prescription.SortNewestFirst(out)
	return out, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func insertAppointment(ctx context.Context, db execer, a *prescription.Appointment) error {
	cols := appointmentArgs(a)
	_, err := db.ExecContext(ctx, `
		INSERT INTO appointments (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cols...)
	return err
}

func updateAppointment(ctx context.Context, db execer, a *prescription.Appointment) error {
	cols := appointmentArgs(a)
	_, err := db.ExecContext(ctx, `
		UPDATE appointments SET
			patient_name = ?, patient_email = ?, doctor_id = ?, doctor_email = ?, date = ?,
			time = ?, disease = ?, status = ?, created_at = ?, updated_at = ?,
			has_prescription = ?, rx_diagnosis = ?, rx_medicines = ?, rx_advice = ?,
			rx_signature = ?, rx_signed_by = ?, rx_created_at = ?, rx_is_revoked = ?,
			rx_revoked_by = ?, rx_revoked_at = ?
		WHERE id = ?
	`, append(cols[1:], a.ID)...)
	return err
}

func appointmentArgs(a *prescription.Appointment) []any {
	args := []any{
		a.ID, a.PatientName, a.PatientEmail, a.DoctorID, a.DoctorEmail, a.Date, a.Time,
		a.Disease, string(a.Status), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	}
	p := a.Prescription
	if p == nil {
		return append(args, false, nil, nil, nil, nil, nil, nil, false, nil, nil)
	}
	var revokedAt any
	if p.RevokedAt != nil {
		revokedAt = formatTime(*p.RevokedAt)
	}
	return append(args, true, p.Diagnosis, p.Medicines, p.Advice, p.Signature, p.SignedBy,
		formatTime(p.CreatedAt), p.IsRevoked, p.RevokedBy, revokedAt)
}

func scanAppointment(row scanner, id string) (*prescription.Appointment, error) {
	var (
		a                              prescription.Appointment
		status, createdAt, updatedAt   string
		hasRx, isRevoked               bool
		diagnosis, medicines, advice   sql.NullString
		signature, signedBy, rxCreated sql.NullString
		revokedBy, revokedAt           sql.NullString
	)
	err := row.Scan(&a.ID, &a.PatientName, &a.PatientEmail, &a.DoctorID, &a.DoctorEmail, &a.Date,
		&a.Time, &a.Disease, &status, &createdAt, &updatedAt, &hasRx, &diagnosis, &medicines,
		&advice, &signature, &signedBy, &rxCreated, &isRevoked, &revokedBy, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: appointment '%s'", prescription.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}

	a.Status = prescription.Status(status)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if !hasRx {
		return &a, nil
	}

	p := &prescription.Record{
		Diagnosis: diagnosis.String,
		Medicines: medicines.String,
		Advice:    advice.String,
		Signature: signature.String,
		SignedBy:  signedBy.String,
		IsRevoked: isRevoked,
		RevokedBy: revokedBy.String,
	}
	if p.CreatedAt, err = parseTime(rxCreated.String); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t, err := parseTime(revokedAt.String)
		if err != nil {
			return nil, err
		}
		p.RevokedAt = &t
	}
	a.Prescription = p
	return &a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time '%s': %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
