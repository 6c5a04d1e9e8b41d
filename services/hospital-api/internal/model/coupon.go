package model

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a discount code. Money fields are whole currency units.
// MaxDiscount applies to percentage coupons only; zero means no cap.
// UsageLimit zero means unlimited.
type Coupon struct {
	ID                    string           `json:"id"`
	Code                  string           `json:"code"`
	Description           string           `json:"description,omitempty"`
	DiscountType          DiscountType     `json:"discountType"`
	DiscountValue         float64          `json:"discountValue"`
	MaxDiscount           int64            `json:"maxDiscount,omitempty"`
	MinPurchase           int64            `json:"minPurchase"`
	StartDate             time.Time        `json:"startDate"`
	EndDate               time.Time        `json:"endDate"`
	UsageLimit            int              `json:"usageLimit"`
	UsedCount             int              `json:"usedCount"`
	IsActive              bool             `json:"isActive"`
	ApplicableServices    []Ref[Service]   `json:"applicableServices"`
	ApplicableSpecialties []Ref[Specialty] `json:"applicableSpecialties"`
	CreatedBy             string           `json:"createdBy,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

func (c Coupon) RefID() string { return c.ID }

// AppliedCoupon is the snapshot of a coupon stored on an appointment at booking time.
type AppliedCoupon struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}
