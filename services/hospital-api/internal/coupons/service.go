package coupons

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type ListFilter struct {
	Search string
	Active *bool
	Limit  int
	Offset int
}

// Store persists coupons. FindByCode and Get return ErrNotFound for missing rows;
// Insert and Update return ErrDuplicateCode on a code collision.
type Store interface {
	FindByCode(ctx context.Context, code string) (model.Coupon, error)
	Get(ctx context.Context, id string) (model.Coupon, error)
	List(ctx context.Context, f ListFilter) ([]model.Coupon, int, error)
	Insert(ctx context.Context, c *model.Coupon) error
	Update(ctx context.Context, c *model.Coupon) error
	// Remove deletes the coupon, or deactivates it when ShouldSoftDelete holds under a row lock.
	Remove(ctx context.Context, id string) (deleted model.Coupon, soft bool, err error)
}

// Catalog answers which of the given ids do not exist.
type Catalog interface {
	MissingServices(ctx context.Context, ids []string) ([]string, error)
	MissingSpecialties(ctx context.Context, ids []string) ([]string, error)
}

// Cache is a read-through cache of coupons keyed by normalized code.
type Cache interface {
	Get(ctx context.Context, code string) (model.Coupon, bool, error)
	Set(ctx context.Context, c model.Coupon) error
	Invalidate(ctx context.Context, code string) error
}

type Service struct {
	store   Store
	catalog Catalog
	cache   Cache
	engine  Engine
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, catalog Catalog, cache Cache, engine Engine, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		cache:   cache,
		engine:  engine,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Lookup returns the coupon with the given code, consulting the cache first.
func (s *Service) Lookup(ctx context.Context, code string) (model.Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return model.Coupon{}, ErrNotFound
	}
	if s.cache != nil {
		c, ok, err := s.cache.Get(ctx, code)
		if err != nil {
			s.logger.Warn("coupon cache read failed", "code", code, "err", err)
		} else if ok {
			return c, nil
		}
	}
	c, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return model.Coupon{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, c); err != nil {
			s.logger.Warn("coupon cache write failed", "code", code, "err", err)
		}
	}
	return c, nil
}

// Validate is the read-only validation path. It never changes usedCount.
func (s *Service) Validate(ctx context.Context, code string, q Query) (Result, model.Coupon, error) {
	c, err := s.Lookup(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return Result{}, model.Coupon{}, ErrNotFound
	}
	if err != nil {
		return Result{}, model.Coupon{}, err
	}
	res, err := s.engine.Validate(&c, q, s.now())
	if err != nil {
		return Result{}, model.Coupon{}, err
	}
	return res, c, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Coupon, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]model.Coupon, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.List(ctx, f)
}

func (s *Service) Create(ctx context.Context, p Patch, createdBy string) (model.Coupon, error) {
	c := model.Coupon{IsActive: true, CreatedBy: createdBy}
	p.Apply(&c)
	if err := s.check(ctx, c); err != nil {
		return model.Coupon{}, err
	}
	if err := s.store.Insert(ctx, &c); err != nil {
		return model.Coupon{}, err
	}
	s.logger.Info("coupon created", "coupon_id", c.ID, "code", c.Code, "created_by", createdBy)
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (model.Coupon, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Coupon{}, err
	}
	oldCode := c.Code
	p.Apply(&c)
	if err := s.check(ctx, c); err != nil {
		return model.Coupon{}, err
	}
	if err := s.store.Update(ctx, &c); err != nil {
		return model.Coupon{}, err
	}
	s.invalidate(ctx, oldCode, c.Code)
	return c, nil
}

// Delete hard-deletes an unused coupon and deactivates a redeemed one. soft reports which.
func (s *Service) Delete(ctx context.Context, id string) (soft bool, err error) {
	c, soft, err := s.store.Remove(ctx, id)
	if err != nil {
		return false, err
	}
	s.invalidate(ctx, c.Code)
	s.logger.Info("coupon deleted", "coupon_id", id, "code", c.Code, "soft", soft)
	return soft, nil
}

// Invalidate drops cached entries for the codes, after a redemption for example.
func (s *Service) Invalidate(ctx context.Context, codes ...string) {
	s.invalidate(ctx, codes...)
}

func (s *Service) invalidate(ctx context.Context, codes ...string) {
	if s.cache == nil {
		return
	}
	for _, code := range codes {
		if code == "" {
			continue
		}
		if err := s.cache.Invalidate(ctx, code); err != nil {
			s.logger.Warn("coupon cache invalidate failed", "code", code, "err", err)
		}
	}
}

func (s *Service) check(ctx context.Context, c model.Coupon) error {
	if err := CheckDefinition(c); err != nil {
		return err
	}
	if s.catalog == nil {
		return nil
	}
	missing := &MissingReferencesError{}
	var err error
	if ids := model.RefIDs(c.ApplicableServices); len(ids) > 0 {
		if missing.Services, err = s.catalog.MissingServices(ctx, ids); err != nil {
			return err
		}
	}
	if ids := model.RefIDs(c.ApplicableSpecialties); len(ids) > 0 {
		if missing.Specialties, err = s.catalog.MissingSpecialties(ctx, ids); err != nil {
			return err
		}
	}
	if len(missing.Services) > 0 || len(missing.Specialties) > 0 {
		return missing
	}
	return nil
}
