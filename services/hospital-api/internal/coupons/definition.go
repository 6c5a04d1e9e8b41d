package coupons

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

// DefinitionError lists every field problem found in an admin create or update.
type DefinitionError struct {
	Problems []string
}

func (e *DefinitionError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Patch is an admin create/update payload. Nil fields are left untouched on update and
// take their defaults on create.
type Patch struct {
	Code                  *string             `json:"code"`
	Description           *string             `json:"description"`
	DiscountType          *model.DiscountType `json:"discountType"`
	DiscountValue         *float64            `json:"discountValue"`
	MaxDiscount           *int64              `json:"maxDiscount"`
	MinPurchase           *int64              `json:"minPurchase"`
	StartDate             *time.Time          `json:"startDate"`
	EndDate               *time.Time          `json:"endDate"`
	UsageLimit            *int                `json:"usageLimit"`
	IsActive              *bool               `json:"isActive"`
	ApplicableServices    *[]string           `json:"applicableServices"`
	ApplicableSpecialties *[]string           `json:"applicableSpecialties"`
}

// Apply copies the set fields of p onto c. Codes are normalized.
func (p Patch) Apply(c *model.Coupon) {
	if p.Code != nil {
		c.Code = NormalizeCode(*p.Code)
	}
	if p.Description != nil {
		c.Description = strings.TrimSpace(*p.Description)
	}
	if p.DiscountType != nil {
		c.DiscountType = *p.DiscountType
	}
	if p.DiscountValue != nil {
		c.DiscountValue = *p.DiscountValue
	}
	if p.MaxDiscount != nil {
		c.MaxDiscount = *p.MaxDiscount
	}
	if p.MinPurchase != nil {
		c.MinPurchase = *p.MinPurchase
	}
	if p.StartDate != nil {
		c.StartDate = p.StartDate.UTC()
	}
	if p.EndDate != nil {
		c.EndDate = p.EndDate.UTC()
	}
	if p.UsageLimit != nil {
		c.UsageLimit = *p.UsageLimit
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.ApplicableServices != nil {
		c.ApplicableServices = model.RefsOf[model.Service](dedupe(*p.ApplicableServices))
	}
	if p.ApplicableSpecialties != nil {
		c.ApplicableSpecialties = model.RefsOf[model.Specialty](dedupe(*p.ApplicableSpecialties))
	}
}

// CheckDefinition validates a coupon about to be persisted.
func CheckDefinition(c model.Coupon) error {
	var problems []string
	if !codePattern.MatchString(c.Code) {
		problems = append(problems, "code must be 3-15 uppercase letters or digits")
	}
	switch c.DiscountType {
	case model.DiscountPercentage:
		if c.DiscountValue <= 0 || c.DiscountValue > 100 {
			problems = append(problems, "percentage discountValue must be greater than 0 and at most 100")
		}
	case model.DiscountFixed:
		if c.DiscountValue <= 0 {
			problems = append(problems, "fixed discountValue must be greater than 0")
		}
	default:
		problems = append(problems, fmt.Sprintf("discountType must be %q or %q", model.DiscountPercentage, model.DiscountFixed))
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		problems = append(problems, "startDate and endDate are required")
	} else if !c.EndDate.After(c.StartDate) {
		problems = append(problems, "endDate must be after startDate")
	}
	if c.MinPurchase < 0 {
		problems = append(problems, "minPurchase must not be negative")
	}
	if c.MaxDiscount < 0 {
		problems = append(problems, "maxDiscount must not be negative")
	}
	if c.UsageLimit < 0 {
		problems = append(problems, "usageLimit must not be negative")
	}
	if c.UsageLimit > 0 && c.UsedCount > c.UsageLimit {
		problems = append(problems, "usageLimit must not be below usedCount")
	}
	if len(problems) > 0 {
		return &DefinitionError{Problems: problems}
	}
	return nil
}

// MissingReferencesError names referenced services or specialties that do not exist.
type MissingReferencesError struct {
	Services    []string
	Specialties []string
}

func (e *MissingReferencesError) Error() string {
	var parts []string
	if len(e.Services) > 0 {
		parts = append(parts, "unknown services: "+strings.Join(e.Services, ", "))
	}
	if len(e.Specialties) > 0 {
		parts = append(parts, "unknown specialties: "+strings.Join(e.Specialties, ", "))
	}
	return strings.Join(parts, "; ")
}

func IsDefinitionError(err error) bool {
	var de *DefinitionError
	var me *MissingReferencesError
	return errors.As(err, &de) || errors.As(err, &me)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = model.NormalizeID(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
