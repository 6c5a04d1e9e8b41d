// Package coupons validates discount codes and computes the discount they grant.
//
// The functions in this file are pure: time is passed in and no storage is touched.
// Service wires them to storage and the cache.
package coupons

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrNotFound               = errors.New("coupon not found")
	ErrExpired                = errors.New("coupon has expired")
	ErrNotYetActive           = fmt.Errorf("coupon is not active yet: %w", ErrExpired)
	ErrLimitReached           = errors.New("coupon usage limit reached")
	ErrServiceNotApplicable   = errors.New("coupon is not applicable to this service")
	ErrSpecialtyNotApplicable = errors.New("coupon is not applicable to this specialty")
	ErrDuplicateCode          = errors.New("coupon code already exists")
)

// BelowMinimumError reports a purchase amount under the coupon's minimum.
type BelowMinimumError struct {
	Minimum   int64
	Formatted string
}

func (e *BelowMinimumError) Error() string {
	return "minimum purchase amount is " + e.Formatted
}

// Currency formats money amounts for user-facing messages.
type Currency struct {
	Lang   language.Tag
	Symbol string
}

var VND = Currency{Lang: language.Vietnamese, Symbol: "₫"}

func (c Currency) Format(amount int64) string {
	return message.NewPrinter(c.Lang).Sprintf("%d %s", amount, c.Symbol)
}

// Query is the optional purchase context of a validation request.
type Query struct {
	Amount      *int64
	ServiceID   string
	SpecialtyID string
}

type Result struct {
	Code           string             `json:"code"`
	DiscountType   model.DiscountType `json:"discountType"`
	DiscountValue  float64            `json:"discountValue"`
	MaxDiscount    int64              `json:"maxDiscount"`
	OriginalAmount int64              `json:"originalAmount"`
	DiscountAmount int64              `json:"discountAmount"`
	FinalAmount    int64              `json:"finalAmount"`
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3,15}$`)

// NormalizeCode trims and upper-cases a code. NormalizeCode(NormalizeCode(x)) == NormalizeCode(x).
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValid reports whether c can be redeemed at now. The date window is inclusive on
// both ends; a zero usage limit never runs out.
func IsValid(c model.Coupon, now time.Time) bool {
	return c.IsActive && withinWindow(c, now) && !limitReached(c)
}

func withinWindow(c model.Coupon, now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

func limitReached(c model.Coupon) bool {
	return c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit
}

// ComputeDiscount returns the discount for amount. Percentage discounts are capped by
// maxDiscount (when positive) but not by amount; fixed discounts are capped by amount.
func ComputeDiscount(amount int64, typ model.DiscountType, value float64, maxDiscount int64) int64 {
	switch typ {
	case model.DiscountPercentage:
		d := int64(math.Round(float64(amount) * value / 100))
		if maxDiscount > 0 && d > maxDiscount {
			d = maxDiscount
		}
		return d
	case model.DiscountFixed:
		d := int64(math.Round(value))
		if d > amount {
			d = amount
		}
		return d
	default:
		return 0
	}
}

// Engine applies the validation rules. The zero value formats money as VND.
type Engine struct {
	Currency Currency
}

func (e Engine) currency() Currency {
	if e.Currency.Symbol == "" {
		return VND
	}
	return e.Currency
}

// Validate checks c against q at now, in order: existence, date window, usage,
// minimum purchase, then service and specialty scope. A nil coupon is not found.
func (e Engine) Validate(c *model.Coupon, q Query, now time.Time) (Result, error) {
	if c == nil || !c.IsActive {
		return Result{}, ErrNotFound
	}
	if now.Before(c.StartDate) {
		return Result{}, ErrNotYetActive
	}
	if now.After(c.EndDate) {
		return Result{}, ErrExpired
	}
	if limitReached(*c) {
		return Result{}, ErrLimitReached
	}
	if q.Amount != nil && *q.Amount < c.MinPurchase {
		return Result{}, &BelowMinimumError{Minimum: c.MinPurchase, Formatted: e.currency().Format(c.MinPurchase)}
	}
	if len(c.ApplicableServices) > 0 && !containsID(model.RefIDs(c.ApplicableServices), q.ServiceID) {
		return Result{}, ErrServiceNotApplicable
	}
	if len(c.ApplicableSpecialties) > 0 && !containsID(model.RefIDs(c.ApplicableSpecialties), q.SpecialtyID) {
		return Result{}, ErrSpecialtyNotApplicable
	}

	res := Result{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		MaxDiscount:   c.MaxDiscount,
	}
	if q.Amount != nil {
		res.OriginalAmount = *q.Amount
		res.DiscountAmount = ComputeDiscount(*q.Amount, c.DiscountType, c.DiscountValue, c.MaxDiscount)
		res.FinalAmount = res.OriginalAmount - res.DiscountAmount
	}
	return res, nil
}

func containsID(ids []string, id string) bool {
	id = model.NormalizeID(id)
	return id != "" && slices.ContainsFunc(ids, func(s string) bool { return model.NormalizeID(s) == id })
}

// ShouldSoftDelete reports whether deleting c must keep the row. Redeemed coupons stay
// for the appointments that reference them.
func ShouldSoftDelete(c model.Coupon) bool {
	return c.UsedCount > 0
}
