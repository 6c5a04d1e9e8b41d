package coupons

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type memStore struct {
	byID   map[string]model.Coupon
	nextID int
	finds  int
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]model.Coupon{}}
}

func (m *memStore) FindByCode(_ context.Context, code string) (model.Coupon, error) {
	m.finds++
	for _, c := range m.byID {
		if c.Code == code && c.IsActive {
			return c, nil
		}
	}
	return model.Coupon{}, ErrNotFound
}

func (m *memStore) Get(_ context.Context, id string) (model.Coupon, error) {
	c, ok := m.byID[id]
	if !ok {
		return model.Coupon{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) List(_ context.Context, _ ListFilter) ([]model.Coupon, int, error) {
	var out []model.Coupon
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memStore) Insert(_ context.Context, c *model.Coupon) error {
	for _, existing := range m.byID {
		if existing.Code == c.Code {
			return ErrDuplicateCode
		}
	}
	m.nextID++
	c.ID = "c-" + strconv.Itoa(m.nextID)
	m.byID[c.ID] = *c
	return nil
}

func (m *memStore) Update(_ context.Context, c *model.Coupon) error {
	m.byID[c.ID] = *c
	return nil
}

func (m *memStore) Remove(_ context.Context, id string) (model.Coupon, bool, error) {
	c, ok := m.byID[id]
	if !ok {
		return model.Coupon{}, false, ErrNotFound
	}
	if ShouldSoftDelete(c) {
		c.IsActive = false
		m.byID[id] = c
		return c, true, nil
	}
	delete(m.byID, id)
	return c, false, nil
}

type memCatalog struct {
	services    map[string]bool
	specialties map[string]bool
}

func (m memCatalog) MissingServices(_ context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if !m.services[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m memCatalog) MissingSpecialties(_ context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if !m.specialties[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type memCache struct {
	entries     map[string]model.Coupon
	invalidated []string
}

func (m *memCache) Get(_ context.Context, code string) (model.Coupon, bool, error) {
	c, ok := m.entries[code]
	return c, ok, nil
}

func (m *memCache) Set(_ context.Context, c model.Coupon) error {
	m.entries[c.Code] = c
	return nil
}

func (m *memCache) Invalidate(_ context.Context, code string) error {
	delete(m.entries, code)
	m.invalidated = append(m.invalidated, code)
	return nil
}

func ptr[T any](v T) *T { return &v }

func newTestService(store *memStore, cache *memCache) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := memCatalog{
		services:    map[string]bool{"svc-1": true},
		specialties: map[string]bool{"sp-1": true},
	}
	var c Cache
	if cache != nil {
		c = cache
	}
	return NewService(store, catalog, c, Engine{}, logger).WithClock(func() time.Time { return testNow })
}

func validPatch(code string) Patch {
	return Patch{
		Code:          ptr(code),
		DiscountType:  ptr(model.DiscountPercentage),
		DiscountValue: ptr(10.0),
		MaxDiscount:   ptr(int64(50000)),
		MinPurchase:   ptr(int64(100000)),
		StartDate:     ptr(testNow.AddDate(0, -1, 0)),
		EndDate:       ptr(testNow.AddDate(0, 1, 0)),
		UsageLimit:    ptr(10),
	}
}

func TestServiceCreateNormalizesAndValidates(t *testing.T) {
	svc := newTestService(newMemStore(), nil)

	c, err := svc.Create(context.Background(), validPatch(" save10 "), "admin-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.Code != "SAVE10" || !c.IsActive || c.CreatedBy != "admin-1" {
		t.Fatalf("unexpected coupon: %+v", c)
	}

	if _, err := svc.Create(context.Background(), validPatch("SAVE10"), "admin-1"); !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}

	bad := validPatch("NO")
	bad.DiscountValue = ptr(150.0)
	bad.EndDate = bad.StartDate
	_, err = svc.Create(context.Background(), bad, "admin-1")
	var de *DefinitionError
	if !errors.As(err, &de) || len(de.Problems) != 3 {
		t.Fatalf("expected three definition problems, got %v", err)
	}
}

func TestServiceCreateRejectsUnknownReferences(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	p := validPatch("SCOPED1")
	p.ApplicableServices = ptr([]string{"svc-1", "svc-404", "svc-1"})
	p.ApplicableSpecialties = ptr([]string{"sp-404"})

	_, err := svc.Create(context.Background(), p, "admin-1")
	var me *MissingReferencesError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingReferencesError, got %v", err)
	}
	if len(me.Services) != 1 || me.Services[0] != "svc-404" || len(me.Specialties) != 1 {
		t.Fatalf("unexpected missing refs: %+v", me)
	}
	if !IsDefinitionError(err) {
		t.Fatal("missing references should classify as a definition error")
	}
}

func TestServiceCreateLowercasesReferences(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	p := validPatch("SCOPED2")
	p.ApplicableServices = ptr([]string{" SVC-1 ", "svc-1"})

	c, err := svc.Create(context.Background(), p, "admin-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ids := model.RefIDs(c.ApplicableServices); len(ids) != 1 || ids[0] != "svc-1" {
		t.Fatalf("applicable services = %v", ids)
	}
}

func TestServiceValidateIsReadOnlyAndCaseInsensitive(t *testing.T) {
	store := newMemStore()
	cache := &memCache{entries: map[string]model.Coupon{}}
	svc := newTestService(store, cache)
	created, err := svc.Create(context.Background(), validPatch("SAVE10"), "admin-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var results []Result
	for _, code := range []string{"SAVE10", "save10", " SAVE10 "} {
		res, _, err := svc.Validate(context.Background(), code, Query{Amount: ptr(int64(300000))})
		if err != nil {
			t.Fatalf("Validate(%q) failed: %v", code, err)
		}
		results = append(results, res)
	}
	for _, r := range results[1:] {
		if r != results[0] {
			t.Fatalf("validation depends on code casing: %+v vs %+v", r, results[0])
		}
	}
	if store.finds != 1 {
		t.Fatalf("expected one store lookup thanks to cache, got %d", store.finds)
	}
	if got := store.byID[created.ID].UsedCount; got != 0 {
		t.Fatalf("validate must not change usedCount, got %d", got)
	}
}

func TestServiceValidateUnknownCode(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	if _, _, err := svc.Validate(context.Background(), "NOPE", Query{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := svc.Validate(context.Background(), "   ", Query{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank code, got %v", err)
	}
}

func TestServiceUpdateInvalidatesOldAndNewCode(t *testing.T) {
	cache := &memCache{entries: map[string]model.Coupon{}}
	svc := newTestService(newMemStore(), cache)
	c, err := svc.Create(context.Background(), validPatch("OLDCODE"), "admin-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	updated, err := svc.Update(context.Background(), c.ID, Patch{Code: ptr("newcode")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Code != "NEWCODE" || updated.DiscountValue != 10 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if len(cache.invalidated) != 2 || cache.invalidated[0] != "OLDCODE" || cache.invalidated[1] != "NEWCODE" {
		t.Fatalf("unexpected invalidations: %v", cache.invalidated)
	}

	if _, err := svc.Update(context.Background(), c.ID, Patch{DiscountValue: ptr(0.0)}); !IsDefinitionError(err) {
		t.Fatalf("expected definition error, got %v", err)
	}
}

func TestServiceDeleteSoftWhenUsed(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)

	unused, _ := svc.Create(context.Background(), validPatch("UNUSED"), "admin-1")
	used, _ := svc.Create(context.Background(), validPatch("USED"), "admin-1")
	c := store.byID[used.ID]
	c.UsedCount = 3
	store.byID[used.ID] = c

	soft, err := svc.Delete(context.Background(), unused.ID)
	if err != nil || soft {
		t.Fatalf("expected hard delete, soft=%v err=%v", soft, err)
	}
	if _, ok := store.byID[unused.ID]; ok {
		t.Fatal("unused coupon still stored")
	}

	soft, err = svc.Delete(context.Background(), used.ID)
	if err != nil || !soft {
		t.Fatalf("expected soft delete, soft=%v err=%v", soft, err)
	}
	if store.byID[used.ID].IsActive {
		t.Fatal("soft-deleted coupon must be inactive")
	}
	if _, _, err := svc.Validate(context.Background(), "USED", Query{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deactivated coupon must not validate, got %v", err)
	}
}
