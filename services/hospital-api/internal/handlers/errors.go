// Package handlers is the hospital-api REST surface.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/avatars"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/catalog"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/coupons"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/medications"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/notifications"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/payments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/reviews"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/users"
)

var statusOf = []struct {
	status int
	errs   []error
}{
	{http.StatusNotFound, []error{
		appointments.ErrNotFound, coupons.ErrNotFound, reviews.ErrNotFound, users.ErrNotFound,
		users.ErrRoleNotFound, catalog.ErrHospitalNotFound, catalog.ErrSpecialtyNotFound,
		catalog.ErrServiceNotFound, catalog.ErrDoctorNotFound, medications.ErrNotFound,
		notifications.ErrNotFound,
	}},
	{http.StatusConflict, []error{
		appointments.ErrSlotTaken, coupons.ErrDuplicateCode, users.ErrEmailTaken, users.ErrRoleExists,
		catalog.ErrDuplicateName, medications.ErrDuplicateName,
	}},
	{http.StatusForbidden, []error{
		appointments.ErrNotOwner, appointments.ErrForbidden, reviews.ErrForbidden, users.ErrLocked,
	}},
	{http.StatusUnauthorized, []error{users.ErrInvalidCredentials}},
	{http.StatusRequestEntityTooLarge, []error{avatars.ErrTooLarge}},
	{http.StatusServiceUnavailable, []error{
		payments.ErrGatewayDisabled, avatars.ErrDisabled, users.ErrAvatarDisabled,
	}},
	{http.StatusBadRequest, []error{
		appointments.ErrReasonRequired, appointments.ErrRescheduleLimit, appointments.ErrSlotInPast,
		appointments.ErrInvalidSlot, appointments.ErrOutsideHours, appointments.ErrAlreadyPaid,
		appointments.ErrNothingToPay, appointments.ErrInvalidStatus, appointments.ErrCouponUnavailable,
		appointments.ErrDoctorUnavailable,
		coupons.ErrExpired, coupons.ErrLimitReached, coupons.ErrServiceNotApplicable,
		coupons.ErrSpecialtyNotApplicable,
		payments.ErrNotPayable,
		reviews.ErrInvalidRating, reviews.ErrNotCompleted, reviews.ErrAlreadyReviewed, reviews.ErrNoHospital,
		users.ErrWrongPassword, catalog.ErrNotADoctor, avatars.ErrUnsupported,
	}},
}

// classify turns a domain error into an *httpx.Error. Unknown errors pass through
// and end up as a logged 500.
func classify(err error) error {
	var he *httpx.Error
	if errors.As(err, &he) {
		return err
	}
	for _, group := range statusOf {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return &httpx.Error{Status: group.status, Message: err.Error(), Err: err}
			}
		}
	}

	var (
		transition *appointments.TransitionError
		input      *appointments.InputError
		below      *coupons.BelowMinimumError
		definition *coupons.DefinitionError
		refs       *coupons.MissingReferencesError
		userErr    *users.ValidationError
		catalogErr *catalog.ValidationError
		medErr     *medications.ValidationError
	)
	switch {
	case errors.As(err, &transition), errors.As(err, &input), errors.As(err, &below),
		errors.As(err, &definition), errors.As(err, &refs), errors.As(err, &userErr),
		errors.As(err, &catalogErr), errors.As(err, &medErr):
		return &httpx.Error{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	return err
}

func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	httpx.WriteError(w, r, logger, classify(err))
}

// mustPrincipal reads the caller attached by access.Authenticate.
func mustPrincipal(w http.ResponseWriter, r *http.Request) (access.Principal, bool) {
	p, ok := access.FromContext(r.Context())
	if !ok {
		httpx.WriteMessage(w, http.StatusUnauthorized, "not authorized")
	}
	return p, ok
}

// pageParams reads ?page and ?limit (1-based page, default limit def, max 100).
func pageParams(r *http.Request, def int) (page, limit, offset int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 100 {
		limit = def
	}
	return page, limit, (page - 1) * limit
}

func queryBool(r *http.Request, key string) *bool {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}
