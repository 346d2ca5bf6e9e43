package httpapi

import (
	"errors"
	"net/http"

	"github.com/hengadev/rxseal"
	"github.com/hengadev/rxseal/internal/auth"
	"github.com/hengadev/rxseal/internal/prescription"
)

func (s *Server) handleInitKeyExchange(w http.ResponseWriter, r *http.Request) {
	sessionID, params, err := s.svc.InitKeyExchange(r.Context(), r.Header.Get(HeaderSessionID), r.URL.Query().Get("group"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body := envelope{
		"success":         true,
		"sessionId":       sessionID,
		"group":           params.Group,
		"serverPublicKey": params.ServerPublicKey,
	}
	if params.Prime != "" {
		body["prime"] = params.Prime
		body["generator"] = params.Generator
	}
	w.Header().Set(HeaderSessionID, sessionID)
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCompleteKeyExchange(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payload, err := s.svc.Validator().DecodeComplete(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = r.Header.Get(HeaderSessionID)
	}
	if err := s.svc.CompleteKeyExchange(r.Context(), sessionID, payload.ClientPublicKey); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Key exchange completed"})
}

func (s *Server) handleEndKeyExchange(w http.ResponseWriter, r *http.Request) {
	s.svc.EndKeyExchange(r.PathValue("id"))
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Key exchange session ended"})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payload, err := s.svc.Validator().DecodeBook(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	appointment, err := s.svc.Book(r.Context(), prescription.BookRequest{
		PatientName:  payload.PatientName,
		PatientEmail: payload.PatientEmail,
		DoctorID:     payload.DoctorID,
		DoctorEmail:  payload.DoctorEmail,
		Date:         payload.Date,
		Time:         payload.Time,
		Disease:      payload.Disease,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"success": true, "message": "Appointment booked", "appointment": appointment})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := s.svc.CancelAppointment(r.Context(), r.PathValue("id"), actor); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Appointment cancelled"})
}

func (s *Server) handleWritePrescription(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	raw, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payload, err := s.svc.Validator().DecodeWrite(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.svc.WritePrescription(r.Context(), r.Header.Get(HeaderSessionID), prescription.WriteRequest{
		AppointmentID: r.PathValue("id"),
		Diagnosis:     payload.Diagnosis,
		Medicines:     payload.Medicines,
		Advice:        payload.Advice,
		Actor:         actor,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Prescription saved"})
}

func (s *Server) handleReadPrescription(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	view, err := s.svc.ReadPrescription(r.Context(), r.Header.Get(HeaderSessionID), r.PathValue("id"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "prescription": view})
}

// handleDocument returns the verified plaintext a prescription document is
// rendered from. Revoked, unreadable or tampered prescriptions are refused.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.OpenPrescription(r.Context(), r.Header.Get(HeaderSessionID), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "document": envelope{
		"appointmentId": doc.AppointmentID,
		"patientName":   doc.PatientName,
		"doctorId":      doc.DoctorID,
		"diagnosis":     doc.Diagnosis,
		"medicines":     doc.Medicines,
		"advice":        doc.Advice,
		"signedBy":      doc.SignedBy,
		"createdAt":     doc.CreatedAt,
	}})
}

func (s *Server) handleListByPatient(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, prescription.Filter{PatientEmail: r.PathValue("email"), ExcludeCancelled: true})
}

func (s *Server) handleListByDoctor(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, prescription.Filter{DoctorID: r.PathValue("id")})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, filter prescription.Filter) {
	actor, _ := auth.ActorFrom(r.Context())
	entries, err := s.svc.ListPrescriptions(r.Context(), r.Header.Get(HeaderSessionID), filter, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "appointments": entries})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	err := s.svc.RevokePrescription(r.Context(), r.PathValue("id"), actor)
	if errors.Is(err, rxseal.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, envelope{"success": false, "message": "Prescription not found or already revoked"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Prescription revoked"})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	entries, err := s.svc.Audit(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "prescriptions": entries})
}
