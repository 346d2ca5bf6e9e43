// Package validation checks request payloads against embedded JSON schemas
// before they reach the lifecycle.
package validation

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hengadev/errsx"
	"github.com/xeipuuv/gojsonschema"

	"github.com/hengadev/rxseal/internal/prescription"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var ErrInvalidPayload = errors.New("invalid payload")

// Schema names.
const (
	SchemaPrescriptionWrite   = "prescription_write"
	SchemaKeyExchangeComplete = "key_exchange_complete"
	SchemaAppointmentBook     = "appointment_book"
)

// WritePayload is the body of a prescription write.
type WritePayload struct {
	Diagnosis string `json:"diagnosis"`
	Medicines string `json:"medicines"`
	Advice    string `json:"advice"`
}

// BookPayload is the body of an appointment booking.
type BookPayload struct {
	PatientName  string `json:"patientName"`
	PatientEmail string `json:"patientEmail"`
	DoctorID     string `json:"doctorId"`
	DoctorEmail  string `json:"doctorEmail"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Disease      string `json:"disease"`
}

// CompletePayload is the body of a key exchange completion.
type CompletePayload struct {
	SessionID       string `json:"sessionId"`
	ClientPublicKey string `json:"clientPublicKey"`
}

// Validator holds compiled schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	for _, name := range []string{SchemaPrescriptionWrite, SchemaKeyExchangeComplete, SchemaAppointmentBook} {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read schema '%s': %w", name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema '%s': %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks payload against the named schema. Absent or empty required
// fields are reported as prescription.ErrMissingField, anything else as
// ErrInvalidPayload.
func (v *Validator) Validate(name string, payload []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema '%s'", name)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: body is not valid JSON", ErrInvalidPayload)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if result.Valid() {
		return nil
	}

	var (
		missing errsx.Map
		other   []string
	)
	for _, e := range result.Errors() {
		switch e.Type() {
		case "required":
			field, _ := e.Details()["property"].(string)
			missing.Set(field, fmt.Errorf("'%s' is required", field))
		case "string_gte":
			missing.Set(e.Field(), fmt.Errorf("'%s' is required", e.Field()))
		default:
			other = append(other, e.String())
		}
	}
	if !missing.IsEmpty() {
		return fmt.Errorf("%w: %w", prescription.ErrMissingField, missing.AsError())
	}
	sort.Strings(other)
	return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(other, "; "))
}

// DecodeWrite validates and decodes a prescription write body.
func (v *Validator) DecodeWrite(payload []byte) (WritePayload, error) {
	var p WritePayload
	if err := v.Validate(SchemaPrescriptionWrite, payload); err != nil {
		return p, err
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p, nil
}

// DecodeComplete validates and decodes a key exchange completion body.
func (v *Validator) DecodeComplete(payload []byte) (CompletePayload, error) {
	var p CompletePayload
	if err := v.Validate(SchemaKeyExchangeComplete, payload); err != nil {
		return p, err
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p, nil
}

// DecodeBook validates and decodes an appointment booking body.
func (v *Validator) DecodeBook(payload []byte) (BookPayload, error) {
	var p BookPayload
	if err := v.Validate(SchemaAppointmentBook, payload); err != nil {
		return p, err
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p, nil
}
