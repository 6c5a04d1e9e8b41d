package coupons

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"golang.org/x/text/language"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func amount(v int64) *int64 { return &v }

func save10() model.Coupon {
	return model.Coupon{
		ID:            "c-1",
		Code:          "SAVE10",
		DiscountType:  model.DiscountPercentage,
		DiscountValue: 10,
		MaxDiscount:   50000,
		MinPurchase:   100000,
		StartDate:     testNow.AddDate(0, -1, 0),
		EndDate:       testNow.AddDate(0, 1, 0),
		UsageLimit:    100,
		IsActive:      true,
	}
}

func TestSave10Scenario(t *testing.T) {
	c := save10()
	res, err := Engine{}.Validate(&c, Query{Amount: amount(300000)}, testNow)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.DiscountAmount != 30000 || res.FinalAmount != 270000 || res.OriginalAmount != 300000 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSave10CappedByMaxDiscount(t *testing.T) {
	c := save10()
	res, err := Engine{}.Validate(&c, Query{Amount: amount(900000)}, testNow)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.DiscountAmount != 50000 || res.FinalAmount != 850000 {
		t.Fatalf("expected cap at 50000, got %+v", res)
	}
}

func TestFlat20KClampedToAmount(t *testing.T) {
	c := model.Coupon{
		Code:          "FLAT20K",
		DiscountType:  model.DiscountFixed,
		DiscountValue: 20000,
		StartDate:     testNow.AddDate(0, 0, -1),
		EndDate:       testNow.AddDate(0, 0, 1),
		IsActive:      true,
	}
	res, err := Engine{}.Validate(&c, Query{Amount: amount(15000)}, testNow)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.DiscountAmount != 15000 || res.FinalAmount != 0 {
		t.Fatalf("expected clamp to 15000/0, got %+v", res)
	}
}

func TestExpiredCouponFailsRegardlessOfOtherFields(t *testing.T) {
	c := save10()
	c.EndDate = testNow.Add(-time.Second)
	c.UsedCount = c.UsageLimit
	c.ApplicableServices = model.RefsOf[model.Service]([]string{"svc-1"})

	_, err := Engine{}.Validate(&c, Query{Amount: amount(1)}, testNow)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestNotYetActiveIsAnExpiryError(t *testing.T) {
	c := save10()
	c.StartDate = testNow.Add(time.Hour)
	_, err := Engine{}.Validate(&c, Query{}, testNow)
	if !errors.Is(err, ErrNotYetActive) || !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrNotYetActive wrapping ErrExpired, got %v", err)
	}
}

func TestWindowIsInclusive(t *testing.T) {
	c := save10()
	for _, at := range []time.Time{c.StartDate, c.EndDate} {
		if !IsValid(c, at) {
			t.Fatalf("expected coupon valid at boundary %s", at)
		}
		if _, err := (Engine{}).Validate(&c, Query{}, at); err != nil {
			t.Fatalf("Validate at boundary %s: %v", at, err)
		}
	}
	if IsValid(c, c.EndDate.Add(time.Nanosecond)) {
		t.Fatal("expected coupon invalid after end date")
	}
}

func TestIsValidTruthTable(t *testing.T) {
	base := save10()
	cases := []struct {
		name   string
		mutate func(*model.Coupon)
		want   bool
	}{
		{"valid", func(*model.Coupon) {}, true},
		{"inactive", func(c *model.Coupon) { c.IsActive = false }, false},
		{"before start", func(c *model.Coupon) { c.StartDate = testNow.Add(time.Minute) }, false},
		{"after end", func(c *model.Coupon) { c.EndDate = testNow.Add(-time.Minute) }, false},
		{"limit reached", func(c *model.Coupon) { c.UsedCount = c.UsageLimit }, false},
		{"one use left", func(c *model.Coupon) { c.UsedCount = c.UsageLimit - 1 }, true},
		{"unlimited", func(c *model.Coupon) { c.UsageLimit = 0; c.UsedCount = 1_000_000 }, true},
	}
	for _, tc := range cases {
		c := base
		tc.mutate(&c)
		if got := IsValid(c, testNow); got != tc.want {
			t.Fatalf("%s: IsValid = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValidateOrderOfChecks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.Coupon)
		query  Query
		want   error
	}{
		{"inactive is not found", func(c *model.Coupon) { c.IsActive = false }, Query{}, ErrNotFound},
		{"limit", func(c *model.Coupon) { c.UsedCount = c.UsageLimit }, Query{Amount: amount(1)}, ErrLimitReached},
		{"service scope", func(c *model.Coupon) {
			c.ApplicableServices = model.RefsOf[model.Service]([]string{"svc-1"})
		}, Query{Amount: amount(200000), ServiceID: "svc-2"}, ErrServiceNotApplicable},
		{"service missing", func(c *model.Coupon) {
			c.ApplicableServices = model.RefsOf[model.Service]([]string{"svc-1"})
		}, Query{}, ErrServiceNotApplicable},
		{"specialty scope", func(c *model.Coupon) {
			c.ApplicableSpecialties = model.RefsOf[model.Specialty]([]string{"sp-1"})
		}, Query{SpecialtyID: "sp-9"}, ErrSpecialtyNotApplicable},
	}
	for _, tc := range cases {
		c := save10()
		tc.mutate(&c)
		_, err := Engine{}.Validate(&c, tc.query, testNow)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := (Engine{}).Validate(nil, Query{}, testNow); !errors.Is(err, ErrNotFound) {
		t.Fatalf("nil coupon: expected ErrNotFound, got %v", err)
	}
}

func TestScopeMembershipAccepted(t *testing.T) {
	c := save10()
	c.ApplicableServices = model.RefsOf[model.Service]([]string{"svc-1", "svc-2"})
	c.ApplicableSpecialties = []model.Ref[model.Specialty]{model.Populated(model.Specialty{ID: "sp-1"})}
	res, err := Engine{}.Validate(&c, Query{Amount: amount(200000), ServiceID: "svc-2", SpecialtyID: "sp-1"}, testNow)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.DiscountAmount != 20000 {
		t.Fatalf("unexpected discount: %+v", res)
	}
}

func TestScopeMembershipIgnoresIDCase(t *testing.T) {
	c := save10()
	c.ApplicableServices = model.RefsOf[model.Service]([]string{"5f1c9a2e-8b7d-4c3a-9e21-0a6b7c8d9e0f"})
	if _, err := (Engine{}).Validate(&c, Query{Amount: amount(200000), ServiceID: " 5F1C9A2E-8B7D-4C3A-9E21-0A6B7C8D9E0F "}, testNow); err != nil {
		t.Fatalf("upper-case service id rejected: %v", err)
	}
}

func TestBelowMinimumMessageFormatsCurrency(t *testing.T) {
	c := save10()
	eng := Engine{Currency: Currency{Lang: language.English, Symbol: "VND"}}
	_, err := eng.Validate(&c, Query{Amount: amount(99999)}, testNow)
	var below *BelowMinimumError
	if !errors.As(err, &below) {
		t.Fatalf("expected BelowMinimumError, got %v", err)
	}
	if below.Minimum != 100000 || !strings.Contains(err.Error(), "100,000 VND") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestMinimumSkippedWithoutAmount(t *testing.T) {
	c := save10()
	res, err := Engine{}.Validate(&c, Query{}, testNow)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.Code != "SAVE10" || res.OriginalAmount != 0 || res.DiscountAmount != 0 || res.FinalAmount != 0 {
		t.Fatalf("expected zero-filled amounts, got %+v", res)
	}
}

func TestComputeDiscount(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		typ    model.DiscountType
		value  float64
		max    int64
		want   int64
	}{
		{"percent rounds half up", 105, model.DiscountPercentage, 10, 0, 11},
		{"percent rounds down", 104, model.DiscountPercentage, 10, 0, 10},
		{"percent capped", 1000000, model.DiscountPercentage, 50, 100, 100},
		{"percent not clamped to amount without cap", 1000, model.DiscountPercentage, 100, 0, 1000},
		{"fixed below amount", 50000, model.DiscountFixed, 20000, 0, 20000},
		{"fixed clamped", 15000, model.DiscountFixed, 20000, 0, 15000},
		{"fixed ignores max", 50000, model.DiscountFixed, 20000, 1, 20000},
		{"unknown type", 50000, model.DiscountType("bogus"), 20, 0, 0},
	}
	for _, tc := range cases {
		if got := ComputeDiscount(tc.amount, tc.typ, tc.value, tc.max); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestFixedFinalAmountNeverNegative(t *testing.T) {
	for amt := int64(0); amt <= 50000; amt += 2500 {
		d := ComputeDiscount(amt, model.DiscountFixed, 20000, 0)
		if amt-d < 0 {
			t.Fatalf("negative final amount for %d", amt)
		}
	}
}

func TestNormalizeCodeIdempotent(t *testing.T) {
	for _, in := range []string{" save10 ", "SAVE10", "save10", "\tSaVe10\n"} {
		once := NormalizeCode(in)
		if once != "SAVE10" || NormalizeCode(once) != once {
			t.Fatalf("NormalizeCode(%q) = %q", in, once)
		}
	}
}

func TestShouldSoftDelete(t *testing.T) {
	if ShouldSoftDelete(model.Coupon{UsedCount: 0}) {
		t.Fatal("unused coupon must be hard deleted")
	}
	if !ShouldSoftDelete(model.Coupon{UsedCount: 1}) {
		t.Fatal("redeemed coupon must be soft deleted")
	}
}
