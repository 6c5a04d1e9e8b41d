package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/payments"
)

const (
	// IdempotencyHeader lets a client retry a booking without creating a second appointment.
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
)

type Appointments interface {
	Book(ctx context.Context, patientID string, req appointments.BookRequest, idemKey string) (model.Appointment, bool, error)
	Get(ctx context.Context, id string, actor appointments.Actor) (model.Appointment, error)
	ListMine(ctx context.Context, patientID string, f appointments.ListFilter) ([]model.Appointment, int, error)
	List(ctx context.Context, f appointments.ListFilter) ([]model.Appointment, int, error)
	DoctorSchedule(ctx context.Context, doctorID, date string) ([]model.Appointment, error)
	Availability(ctx context.Context, doctorID, date, serviceID string) (appointments.Availability, error)
	Cancel(ctx context.Context, id, reason string, actor appointments.Actor) (model.Appointment, error)
	Reschedule(ctx context.Context, id string, req appointments.RescheduleRequest, actor appointments.Actor) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, u appointments.StatusUpdate, actor appointments.Actor) (model.Appointment, error)
	AdminUpdate(ctx context.Context, id string, p appointments.AdminPatch, actor appointments.Actor) (model.Appointment, error)
	Delete(ctx context.Context, id string, actor appointments.Actor) error
	Stats(ctx context.Context, f appointments.ListFilter) (appointments.Stats, error)
}

type Payments interface {
	StartCheckout(ctx context.Context, appointmentID, userID string, isAdmin bool) (payments.Checkout, error)
	Confirm(ctx context.Context, appointmentID string, method model.PaymentMethod, ref string) (payments.Confirmation, error)
}

type AppointmentHandler struct {
	appointments Appointments
	payments     Payments
	logger       *slog.Logger
}

func NewAppointmentHandler(a Appointments, p Payments, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{appointments: a, payments: p, logger: logger}
}

func actorOf(p access.Principal) appointments.Actor {
	return appointments.Actor{
		UserID:  p.UserID,
		Doctor:  p.RoleType == model.RoleDoctor,
		ReadAll: p.Can(access.AppointmentsReadAll),
		Manage:  p.Can(access.AppointmentsManage),
		Status:  p.Can(access.AppointmentsStatus),
	}
}

func listFilter(r *http.Request) (appointments.ListFilter, int) {
	page, limit, offset := pageParams(r, 20)
	q := r.URL.Query()
	return appointments.ListFilter{
		DoctorID:   q.Get("doctor"),
		HospitalID: q.Get("hospital"),
		Status:     model.AppointmentStatus(q.Get("status")),
		From:       q.Get("from"),
		To:         q.Get("to"),
		Limit:      limit,
		Offset:     offset,
	}, page
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type confirmPaymentRequest struct {
	Method    model.PaymentMethod `json:"method"`
	Reference string              `json:"reference"`
}

type confirmPaymentResponse struct {
	Appointment model.Appointment `json:"appointment"`
	AlreadyPaid bool              `json:"alreadyPaid"`
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req appointments.BookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > 128 {
		fail(w, r, h.logger, httpx.BadRequest("%s must be at most 128 characters", IdempotencyHeader))
		return
	}
	appt, replayed, err := h.appointments.Book(r.Context(), p.UserID, req, key)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
		httpx.WriteData(w, http.StatusOK, appt)
		return
	}
	httpx.WriteData(w, http.StatusCreated, appt)
}

func (h *AppointmentHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	f, page := listFilter(r)
	f.DoctorID, f.HospitalID = "", ""
	out, total, err := h.appointments.ListMine(r.Context(), p.UserID, f)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, f.Limit, total))
}

func (h *AppointmentHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	f, page := listFilter(r)
	f.PatientID = r.URL.Query().Get("patient")
	out, total, err := h.appointments.List(r.Context(), f)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, f.Limit, total))
}

func (h *AppointmentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	f, _ := listFilter(r)
	out, err := h.appointments.Stats(r.Context(), f)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, out)
}

// DoctorSchedule shows a doctor's own day. Callers that may read every appointment can
// pick another doctor with ?doctor.
func (h *AppointmentHandler) DoctorSchedule(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	doctorID := p.UserID
	if other := r.URL.Query().Get("doctor"); other != "" && other != p.UserID {
		if !p.Can(access.AppointmentsReadAll) {
			fail(w, r, h.logger, appointments.ErrForbidden)
			return
		}
		doctorID = other
	}
	out, err := h.appointments.DoctorSchedule(r.Context(), doctorID, r.URL.Query().Get("date"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, out)
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doctorID := strings.TrimSpace(q.Get("doctor"))
	if doctorID == "" {
		fail(w, r, h.logger, httpx.BadRequest("doctor is required"))
		return
	}
	out, err := h.appointments.Availability(r.Context(), doctorID, q.Get("date"), q.Get("service"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, out)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	appt, err := h.appointments.Get(r.Context(), chi.URLParam(r, "id"), actorOf(p))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var patch appointments.AdminPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	appt, err := h.appointments.AdminUpdate(r.Context(), chi.URLParam(r, "id"), patch, actorOf(p))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	if err := h.appointments.Delete(r.Context(), chi.URLParam(r, "id"), actorOf(p)); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "appointment deleted")
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	appt, err := h.appointments.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason, actorOf(p))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req appointments.RescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	appt, err := h.appointments.Reschedule(r.Context(), chi.URLParam(r, "id"), req, actorOf(p))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req appointments.StatusUpdate
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	appt, err := h.appointments.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req, actorOf(p))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, appt)
}

// Checkout opens an online payment session for the caller's appointment.
func (h *AppointmentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	co, err := h.payments.StartCheckout(r.Context(), chi.URLParam(r, "id"), p.UserID, p.Can(access.PaymentsManage))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, co)
}

// ConfirmPayment records a payment taken outside the gateway, cash at the counter usually.
func (h *AppointmentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if req.Method == "" {
		req.Method = model.PaymentCash
	}
	if !req.Method.Valid() {
		fail(w, r, h.logger, httpx.BadRequest("invalid payment method %q", req.Method))
		return
	}
	conf, err := h.payments.Confirm(r.Context(), chi.URLParam(r, "id"), req.Method, req.Reference)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, confirmPaymentResponse{Appointment: conf.Appointment, AlreadyPaid: conf.AlreadyPaid})
}
