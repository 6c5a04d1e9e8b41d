package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
)

// Deps is everything NewRouter mounts. Authenticate is required; LoginLimiter and Audited
// are optional.
type Deps struct {
	Authenticate func(http.Handler) http.Handler
	LoginLimiter httpx.Middleware
	// Audited returns middleware recording a successful admin action.
	Audited func(action string) func(http.Handler) http.Handler

	Auth          *AuthHandler
	Users         *UserHandler
	Catalog       *CatalogHandler
	Coupons       *CouponHandler
	Appointments  *AppointmentHandler
	Reviews       *ReviewHandler
	Medications   *MedicationHandler
	Notifications *NotificationHandler
	Audit         *AuditHandler
	StripeWebhook http.Handler
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	perm := access.RequirePermission
	audited := func(action string) func(http.Handler) http.Handler {
		if d.Audited == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return d.Audited(action)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if d.LoginLimiter != nil {
					r.Use(d.LoginLimiter)
				}
				r.Post("/register", d.Auth.Register)
				r.Post("/login", d.Auth.Login)
			})
			r.Group(func(r chi.Router) {
				r.Use(d.Authenticate)
				r.Get("/profile", d.Auth.Profile)
				r.Put("/profile", d.Auth.UpdateProfile)
				r.Put("/password", d.Auth.ChangePassword)
				r.Post("/avatar", d.Auth.UploadAvatar)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(d.Authenticate, perm(access.UsersManage))
			r.Get("/", d.Users.List)
			r.Get("/{id}", d.Users.Get)
			r.With(audited("user.update_access")).Put("/{id}", d.Users.UpdateAccess)
			r.With(audited("user.delete")).Delete("/{id}", d.Users.Delete)
		})
		r.Route("/roles", func(r chi.Router) {
			r.Use(d.Authenticate, perm(access.RolesManage))
			r.Get("/", d.Users.Roles)
			r.With(audited("role.create")).Post("/", d.Users.CreateRole)
			r.With(audited("role.update")).Put("/{id}", d.Users.UpdateRole)
		})

		r.Route("/hospitals", func(r chi.Router) {
			r.Get("/", d.Catalog.ListHospitals)
			r.Get("/{id}", d.Catalog.GetHospital)
			r.Get("/{id}/reviews", d.Reviews.ListByHospital)
			r.Group(func(r chi.Router) {
				r.Use(d.Authenticate)
				r.With(audited("review.delete")).Delete("/{id}/reviews/{reviewId}", d.Reviews.Delete)
				r.With(perm(access.CatalogManage), audited("hospital.create")).Post("/", d.Catalog.SaveHospital)
				r.With(perm(access.CatalogManage), audited("hospital.update")).Put("/{id}", d.Catalog.SaveHospital)
			})
		})
		r.Route("/specialties", func(r chi.Router) {
			r.Get("/", d.Catalog.ListSpecialties)
			r.With(d.Authenticate, perm(access.CatalogManage), audited("specialty.create")).Post("/", d.Catalog.SaveSpecialty)
			r.With(d.Authenticate, perm(access.CatalogManage), audited("specialty.update")).Put("/{id}", d.Catalog.SaveSpecialty)
		})
		r.Route("/services", func(r chi.Router) {
			r.Get("/", d.Catalog.ListServices)
			r.Get("/{id}", d.Catalog.GetService)
			r.With(d.Authenticate, perm(access.CatalogManage), audited("service.create")).Post("/", d.Catalog.SaveService)
			r.With(d.Authenticate, perm(access.CatalogManage), audited("service.update")).Put("/{id}", d.Catalog.SaveService)
		})
		r.Route("/doctors", func(r chi.Router) {
			r.Get("/", d.Catalog.ListDoctors)
			r.Get("/{id}", d.Catalog.GetDoctor)
			r.With(d.Authenticate, perm(access.CatalogManage), audited("doctor.update")).Put("/{id}", d.Catalog.SaveDoctor)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/validate", d.Coupons.Validate)
			r.Post("/validate", d.Coupons.Validate)
			r.Group(func(r chi.Router) {
				r.Use(d.Authenticate, perm(access.CouponsManage))
				r.Get("/", d.Coupons.List)
				r.With(audited("coupon.create")).Post("/", d.Coupons.Create)
				r.Get("/{id}", d.Coupons.Get)
				r.With(audited("coupon.update")).Put("/{id}", d.Coupons.Update)
				r.With(audited("coupon.delete")).Delete("/{id}", d.Coupons.Delete)
			})
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Use(d.Authenticate)
			a := d.Appointments
			r.With(perm(access.AppointmentsBook)).Post("/", a.Book)
			r.Get("/", a.ListMine)
			r.With(perm(access.AppointmentsReadAll)).Get("/all", a.ListAll)
			r.With(perm(access.StatsView)).Get("/stats", a.Stats)
			r.With(perm(access.AppointmentsSchedule, access.AppointmentsReadAll)).Get("/doctor-schedule", a.DoctorSchedule)
			r.Get("/availability", a.Availability)

			r.Get("/{id}", a.Get)
			r.With(perm(access.AppointmentsManage), audited("appointment.update")).Put("/{id}", a.Update)
			r.With(perm(access.AppointmentsManage), audited("appointment.delete")).Delete("/{id}", a.Delete)
			r.Put("/{id}/cancel", a.Cancel)
			r.Put("/{id}/reschedule", a.Reschedule)
			r.With(perm(access.AppointmentsStatus, access.AppointmentsManage)).Put("/{id}/status", a.UpdateStatus)
			r.With(perm(access.ReviewsWrite)).Post("/{id}/review", d.Reviews.Create)
			r.Post("/{id}/payment/checkout", a.Checkout)
			r.With(perm(access.PaymentsManage), audited("appointment.confirm_payment")).Post("/{id}/payment/confirm", a.ConfirmPayment)
		})

		r.Route("/medications", func(r chi.Router) {
			r.Use(d.Authenticate)
			r.With(perm(access.MedicationsRead, access.MedicationsManage)).Get("/", d.Medications.List)
			r.With(perm(access.MedicationsRead, access.MedicationsManage)).Get("/{id}", d.Medications.Get)
			r.With(perm(access.MedicationsManage), audited("medication.create")).Post("/", d.Medications.Create)
			r.With(perm(access.MedicationsManage), audited("medication.update")).Put("/{id}", d.Medications.Update)
			r.With(perm(access.MedicationsManage), audited("medication.delete")).Delete("/{id}", d.Medications.Delete)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(d.Authenticate, perm(access.NotificationsReadOwn))
			r.Get("/", d.Notifications.List)
			r.Get("/unread-count", d.Notifications.UnreadCount)
			r.Put("/read-all", d.Notifications.MarkAllRead)
			r.Put("/{id}/read", d.Notifications.MarkRead)
			r.Delete("/{id}", d.Notifications.Delete)
		})

		r.With(d.Authenticate, perm(access.AuditRead)).Get("/audit", d.Audit.List)

		r.Method(http.MethodPost, "/payments/stripe/webhook", d.StripeWebhook)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
