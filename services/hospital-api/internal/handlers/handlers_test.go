package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/audit"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/coupons"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/notifications"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/payments"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookSecret = "whsec_test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAuth trusts X-Test-User / X-Test-Role so tests can act as any caller.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Test-User")
		if id == "" {
			httpx.WriteMessage(w, http.StatusUnauthorized, "not authorized, token missing")
			return
		}
		rt := model.RoleType(r.Header.Get("X-Test-Role"))
		p := access.Principal{UserID: id, RoleType: rt, Permissions: access.Resolve(rt, nil)}
		next.ServeHTTP(w, r.WithContext(access.WithPrincipal(r.Context(), p)))
	})
}

type fakeAppointments struct {
	Appointments
	booked   map[string]model.Appointment
	bookErr  error
	cancelFn func(id, reason string, actor appointments.Actor) (model.Appointment, error)
	schedule string
}

func (f *fakeAppointments) Book(_ context.Context, patientID string, req appointments.BookRequest, key string) (model.Appointment, bool, error) {
	if f.bookErr != nil {
		return model.Appointment{}, false, f.bookErr
	}
	if a, ok := f.booked[key]; ok && key != "" {
		return a, true, nil
	}
	a := model.Appointment{
		ID:              fmt.Sprintf("appt-%d", len(f.booked)+1),
		Patient:         model.RefOf[model.User](patientID),
		Doctor:          model.RefOf[model.Doctor](req.DoctorID),
		AppointmentDate: req.AppointmentDate,
		TimeSlot:        req.TimeSlot,
		Status:          model.StatusPending,
	}
	f.booked[key] = a
	return a, false, nil
}

func (f *fakeAppointments) Cancel(_ context.Context, id, reason string, actor appointments.Actor) (model.Appointment, error) {
	return f.cancelFn(id, reason, actor)
}

func (f *fakeAppointments) DoctorSchedule(_ context.Context, doctorID, date string) ([]model.Appointment, error) {
	f.schedule = doctorID
	return []model.Appointment{}, nil
}

func (f *fakeAppointments) List(_ context.Context, fl appointments.ListFilter) ([]model.Appointment, int, error) {
	return []model.Appointment{{ID: "a1"}, {ID: "a2"}}, 45, nil
}

type fakePayments struct {
	Payments
	confirmed []string
}

func (f *fakePayments) Confirm(_ context.Context, id string, method model.PaymentMethod, ref string) (payments.Confirmation, error) {
	already := len(f.confirmed) > 0 && f.confirmed[len(f.confirmed)-1] == id
	f.confirmed = append(f.confirmed, id)
	return payments.Confirmation{
		Appointment: model.Appointment{ID: id, PaymentStatus: model.PaymentCompleted, PaymentMethod: method},
		AlreadyPaid: already,
	}, nil
}

type fakeCoupons struct {
	Coupons
	lastQuery coupons.Query
	lastCode  string
	err       error
}

func (f *fakeCoupons) Delete(_ context.Context, id string) (bool, error) {
	if id != "c1" {
		return false, coupons.ErrNotFound
	}
	return true, nil
}

type memAudit struct {
	events []audit.Event
}

func (m *memAudit) Insert(_ context.Context, e audit.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memAudit) List(_ context.Context, _ audit.Filter) ([]audit.Event, int, error) {
	return m.events, len(m.events), nil
}

func (f *fakeCoupons) Validate(_ context.Context, code string, q coupons.Query) (coupons.Result, model.Coupon, error) {
	f.lastCode, f.lastQuery = code, q
	if f.err != nil {
		return coupons.Result{}, model.Coupon{}, f.err
	}
	res := coupons.Result{Code: coupons.NormalizeCode(code), DiscountType: model.DiscountPercentage, DiscountValue: 10}
	if q.Amount != nil {
		res.OriginalAmount = *q.Amount
		res.DiscountAmount = *q.Amount / 10
		res.FinalAmount = res.OriginalAmount - res.DiscountAmount
	}
	return res, model.Coupon{Code: res.Code, Description: "ten off"}, nil
}

type fakeStripeEvents struct {
	seen map[string]bool
}

func (f *fakeStripeEvents) ApplyStripeEvent(_ context.Context, evt stripe.Event, _ []byte) (payments.EventOutcome, error) {
	if f.seen[evt.ID] {
		return payments.OutcomeDuplicate, nil
	}
	f.seen[evt.ID] = true
	return payments.OutcomeApplied, nil
}

type fakeNotifications struct {
	Notifications
	store map[string]model.Notification
}

func (f *fakeNotifications) MarkRead(_ context.Context, userID, id string) (model.Notification, error) {
	n, ok := f.store[id]
	if !ok || n.UserID != userID {
		return model.Notification{}, notifications.ErrNotFound
	}
	n.IsRead = true
	return n, nil
}

type testEnv struct {
	router http.Handler
	appts  *fakeAppointments
	pays   *fakePayments
	coups  *fakeCoupons
	events *fakeStripeEvents
	audit  *memAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()
	env := &testEnv{
		appts:  &fakeAppointments{booked: map[string]model.Appointment{}},
		pays:   &fakePayments{},
		coups:  &fakeCoupons{},
		events: &fakeStripeEvents{seen: map[string]bool{}},
		audit:  &memAudit{},
	}
	auditLog := audit.NewRecorder(env.audit, logger)
	notes := &fakeNotifications{store: map[string]model.Notification{
		"n1": {ID: "n1", UserID: "u1", Title: "Booked"},
	}}
	env.router = NewRouter(Deps{
		Authenticate:  fakeAuth,
		Audited:       auditLog.Middleware,
		Auth:          NewAuthHandler(nil, logger),
		Users:         NewUserHandler(nil, logger),
		Catalog:       NewCatalogHandler(nil, logger),
		Coupons:       NewCouponHandler(env.coups, logger),
		Appointments:  NewAppointmentHandler(env.appts, env.pays, logger),
		Reviews:       NewReviewHandler(nil, logger),
		Medications:   NewMedicationHandler(nil, logger),
		Notifications: NewNotificationHandler(notes, logger),
		Audit:         NewAuditHandler(auditLog, logger),
		StripeWebhook: NewStripeWebhookHandler(env.events, webhookSecret, 5*time.Minute, logger),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, userID string, role model.RoleType, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
		req.Header.Set("X-Test-Role", string(role))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success    bool              `json:"success"`
	Data       json.RawMessage   `json:"data"`
	Message    string            `json:"message"`
	Pagination *httpx.Pagination `json:"pagination"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return env
}

const bookBody = `{"doctorId":"d1","appointmentDate":"2030-01-02","timeSlot":{"start":"09:00","end":"09:30"}}`

func TestBookIsIdempotentPerKey(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodPost, "/api/appointments", "u1", model.RoleUser, bookBody, IdempotencyHeader, "k1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first booking status = %d, body %s", first.Code, first.Body.String())
	}
	again := env.do(t, http.MethodPost, "/api/appointments", "u1", model.RoleUser, bookBody, IdempotencyHeader, "k1")
	if again.Code != http.StatusOK {
		t.Fatalf("replay status = %d", again.Code)
	}
	if again.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	var a, b model.Appointment
	_ = json.Unmarshal(decode(t, first).Data, &a)
	_ = json.Unmarshal(decode(t, again).Data, &b)
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("replay returned %q, first %q", b.ID, a.ID)
	}
}

func TestBookRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/appointments", "", "", bookBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestDomainErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"slot taken", appointments.ErrSlotTaken, http.StatusConflict},
		{"slot in past", appointments.ErrSlotInPast, http.StatusBadRequest},
		{"doctor missing", fmt.Errorf("load doctor: %w", appointments.ErrDoctorUnavailable), http.StatusBadRequest},
		{"coupon expired", coupons.ErrExpired, http.StatusBadRequest},
		{"below minimum", &coupons.BelowMinimumError{Minimum: 100000, Formatted: "100.000 ₫"}, http.StatusBadRequest},
		{"not found", appointments.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.appts.bookErr = tc.err
			rec := env.do(t, http.MethodPost, "/api/appointments", "u1", model.RoleUser, bookBody)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if got := decode(t, rec); got.Success || got.Message == "" {
				t.Fatalf("unexpected envelope %+v", got)
			}
		})
	}
}

func TestUnexpectedErrorDoesNotLeak(t *testing.T) {
	env := newTestEnv(t)
	env.appts.bookErr = errors.New(`pq: relation "appointments" does not exist`)
	rec := env.do(t, http.MethodPost, "/api/appointments", "u1", model.RoleUser, bookBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := decode(t, rec).Message; msg != "internal server error" {
		t.Fatalf("message = %q", msg)
	}
}

func TestCancelPassesReasonAndActor(t *testing.T) {
	env := newTestEnv(t)
	env.appts.cancelFn = func(id, reason string, actor appointments.Actor) (model.Appointment, error) {
		if id != "a9" || actor.UserID != "u1" || actor.Manage {
			t.Fatalf("cancel(%q, actor %+v)", id, actor)
		}
		if strings.TrimSpace(reason) == "" {
			return model.Appointment{}, appointments.ErrReasonRequired
		}
		return model.Appointment{ID: id, Status: model.StatusCancelled, CancellationReason: reason}, nil
	}

	rec := env.do(t, http.MethodPut, "/api/appointments/a9/cancel", "u1", model.RoleUser, `{"reason":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank reason status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPut, "/api/appointments/a9/cancel", "u1", model.RoleUser, `{"reason":"travel"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestListAllIsPaginatedAndGated(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/appointments/all", "u1", model.RoleUser, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("patient status = %d, want 403", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/appointments/all?page=2&limit=20", "admin", model.RoleAdmin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
	p := decode(t, rec).Pagination
	if p == nil || p.Page != 2 || p.Limit != 20 || p.Total != 45 || p.Pages != 3 {
		t.Fatalf("pagination = %+v", p)
	}
}

func TestDoctorScheduleDefaultsToCaller(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/appointments/doctor-schedule?date=2030-01-02", "doc1", model.RoleDoctor, "")
	if rec.Code != http.StatusOK || env.appts.schedule != "doc1" {
		t.Fatalf("status = %d, schedule for %q", rec.Code, env.appts.schedule)
	}
	rec = env.do(t, http.MethodGet, "/api/appointments/doctor-schedule?doctor=doc2", "doc1", model.RoleDoctor, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("other doctor status = %d, want 403", rec.Code)
	}
}

func TestConfirmPaymentNeedsCapability(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodPost, "/api/appointments/a1/payment/confirm", "u1", model.RoleUser, `{}`); rec.Code != http.StatusForbidden {
		t.Fatalf("patient status = %d, want 403", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/appointments/a1/payment/confirm", "admin", model.RoleAdmin, `{"method":"cash","reference":"R-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/appointments/a1/payment/confirm", "admin", model.RoleAdmin, `{"method":"cash"}`)
	var out confirmPaymentResponse
	if err := json.Unmarshal(decode(t, rec).Data, &out); err != nil {
		t.Fatal(err)
	}
	if !out.AlreadyPaid || out.Appointment.PaymentStatus != model.PaymentCompleted {
		t.Fatalf("second confirmation = %+v", out)
	}
	if rec := env.do(t, http.MethodPost, "/api/appointments/a1/payment/confirm", "admin", model.RoleAdmin, `{"method":"paypal"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown method status = %d", rec.Code)
	}
}

func TestCouponValidateQueryAndBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/coupons/validate?code=save10&amount=200000&serviceId=S1", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, body %s", rec.Code, rec.Body.String())
	}
	if env.coups.lastQuery.Amount == nil || *env.coups.lastQuery.Amount != 200000 || env.coups.lastQuery.ServiceID != "s1" {
		t.Fatalf("query = %+v", env.coups.lastQuery)
	}
	var res validateCouponResponse
	_ = json.Unmarshal(decode(t, rec).Data, &res)
	if res.FinalAmount != 180000 || res.Description != "ten off" {
		t.Fatalf("result = %+v", res)
	}

	rec = env.do(t, http.MethodPost, "/api/coupons/validate", "", "", `{"code":"SAVE10"}`)
	if rec.Code != http.StatusOK || env.coups.lastQuery.Amount != nil {
		t.Fatalf("POST status = %d, amount %v", rec.Code, env.coups.lastQuery.Amount)
	}

	if rec := env.do(t, http.MethodGet, "/api/coupons/validate?code=SAVE10&amount=abc", "", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad amount status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/coupons/validate", "", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing code status = %d", rec.Code)
	}

	env.coups.err = coupons.ErrLimitReached
	rec = env.do(t, http.MethodGet, "/api/coupons/validate?code=SAVE10", "", "", "")
	if rec.Code != http.StatusBadRequest || decode(t, rec).Message != coupons.ErrLimitReached.Error() {
		t.Fatalf("limit status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestCouponAdminRoutesAreGated(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/coupons", "", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/coupons", "u1", model.RoleUser, `{}`); rec.Code != http.StatusForbidden {
		t.Fatalf("patient status = %d", rec.Code)
	}
}

func TestAdminWritesAreAudited(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodDelete, "/api/coupons/nope", "adm", model.RoleAdmin, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing coupon status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/coupons/c1", "adm", model.RoleAdmin, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(env.audit.events) != 1 {
		t.Fatalf("audit events = %+v", env.audit.events)
	}
	e := env.audit.events[0]
	if e.Action != "coupon.delete" || e.TargetID != "c1" || e.ActorID != "adm" {
		t.Fatalf("event = %+v", e)
	}

	if rec := env.do(t, http.MethodGet, "/api/audit", "u1", model.RoleUser, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("patient audit status = %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/audit", "adm", model.RoleAdmin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit list status = %d", rec.Code)
	}
	if env := decode(t, rec); env.Pagination == nil || env.Pagination.Total != 1 {
		t.Fatalf("pagination = %+v", env.Pagination)
	}
}

func TestNotificationsAreScopedToCaller(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodPut, "/api/notifications/n1/read", "u2", model.RoleUser, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("other user status = %d, want 404", rec.Code)
	}
	rec := env.do(t, http.MethodPut, "/api/notifications/n1/read", "u1", model.RoleUser, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d", rec.Code)
	}
	var n model.Notification
	_ = json.Unmarshal(decode(t, rec).Data, &n)
	if !n.IsRead {
		t.Fatalf("notification not marked read: %+v", n)
	}
}

func signedEvent(t *testing.T, id, typ string, at time.Time) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"created":     at.Unix(),
		"type":        typ,
		"api_version": stripe.APIVersion,
		"data": map[string]any{"object": map[string]any{
			"id":             "cs_test_1",
			"object":         "checkout.session",
			"payment_status": "paid",
			"metadata":       map[string]any{"appointment_id": "a1"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: at,
		Scheme:    "v1",
	})
	return payload, signed.Header
}

func TestStripeWebhook(t *testing.T) {
	env := newTestEnv(t)
	post := func(body []byte, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/stripe/webhook", bytes.NewReader(body))
		if sig != "" {
			req.Header.Set("Stripe-Signature", sig)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	body, sig := signedEvent(t, "evt_1", "checkout.session.completed", time.Now())
	if rec := post(body, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing signature status = %d", rec.Code)
	}
	if rec := post(body, strings.Replace(sig, "v1=", "v1=00", 1)); rec.Code != http.StatusBadRequest {
		t.Fatalf("tampered signature status = %d", rec.Code)
	}

	rec := post(body, sig)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), string(payments.OutcomeApplied)) {
		t.Fatalf("first delivery = %d %s", rec.Code, rec.Body.String())
	}
	rec = post(body, sig)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), string(payments.OutcomeDuplicate)) {
		t.Fatalf("replay = %d %s", rec.Code, rec.Body.String())
	}

	stale, staleSig := signedEvent(t, "evt_2", "checkout.session.completed", time.Now().Add(-time.Hour))
	if rec := post(stale, staleSig); rec.Code != http.StatusBadRequest {
		t.Fatalf("stale event status = %d", rec.Code)
	}
}

func TestStripeWebhookNotConfigured(t *testing.T) {
	h := NewStripeWebhookHandler(&fakeStripeEvents{}, " ", 0, discardLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payments/stripe/webhook", strings.NewReader("{}")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/nope", "", "", "")
	if rec.Code != http.StatusNotFound || decode(t, rec).Success {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}
