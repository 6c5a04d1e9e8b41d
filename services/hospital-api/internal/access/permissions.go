// Package access resolves what an authenticated caller may do.
package access

import (
	"slices"
	"strings"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

// Permission codes.
const (
	AppointmentsBook     = "appointments.book"
	AppointmentsReadAll  = "appointments.read.all"
	AppointmentsManage   = "appointments.manage"
	AppointmentsStatus   = "appointments.status"
	AppointmentsSchedule = "appointments.schedule"
	CouponsManage        = "coupons.manage"
	UsersManage          = "users.manage"
	RolesManage          = "roles.manage"
	MedicationsRead      = "medications.read"
	MedicationsManage    = "medications.manage"
	PaymentsManage       = "payments.manage"
	ReviewsWrite         = "reviews.write"
	ReviewsModerate      = "reviews.moderate"
	CatalogManage        = "catalog.manage"
	StatsView            = "stats.view"
	NotificationsReadOwn = "notifications.read"
	ProfileManageOwn     = "profile.manage"
	AuditRead            = "audit.read"
)

// All lists every known permission code.
var All = []string{
	AppointmentsBook, AppointmentsReadAll, AppointmentsManage, AppointmentsStatus, AppointmentsSchedule,
	CouponsManage, UsersManage, RolesManage, MedicationsRead, MedicationsManage, PaymentsManage,
	ReviewsWrite, ReviewsModerate, CatalogManage, StatsView, NotificationsReadOwn, ProfileManageOwn,
	AuditRead,
}

var defaults = map[model.RoleType][]string{
	model.RoleUser: {
		AppointmentsBook, ReviewsWrite, NotificationsReadOwn, ProfileManageOwn,
	},
	model.RoleDoctor: {
		AppointmentsBook, AppointmentsStatus, AppointmentsSchedule, MedicationsRead,
		NotificationsReadOwn, ProfileManageOwn,
	},
}

// Set is the granted permission codes of one caller.
type Set map[string]struct{}

func (s Set) Has(code string) bool {
	_, ok := s[code]
	return ok
}

func (s Set) HasAny(codes ...string) bool {
	for _, c := range codes {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Codes returns the granted codes sorted.
func (s Set) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Resolve returns everything a caller with roleType and an optional custom role may do.
// Admins get every code. Other role types get their defaults plus the codes of an
// active custom role. Unknown codes on a role are ignored.
func Resolve(roleType model.RoleType, role *model.Role) Set {
	set := Set{}
	if roleType == model.RoleAdmin {
		for _, c := range All {
			set[c] = struct{}{}
		}
		return set
	}
	for _, c := range defaults[roleType] {
		set[c] = struct{}{}
	}
	if role != nil && role.IsActive {
		for _, c := range role.Permissions {
			c = strings.TrimSpace(c)
			if IsKnown(c) {
				set[c] = struct{}{}
			}
		}
	}
	return set
}

func IsKnown(code string) bool {
	return slices.Contains(All, code)
}

// UnknownCodes returns the codes not in All, for validating role edits.
func UnknownCodes(codes []string) []string {
	var out []string
	for _, c := range codes {
		if !IsKnown(strings.TrimSpace(c)) {
			out = append(out, c)
		}
	}
	return out
}
