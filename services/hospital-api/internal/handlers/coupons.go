package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/coupons"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type Coupons interface {
	Validate(ctx context.Context, code string, q coupons.Query) (coupons.Result, model.Coupon, error)
	Get(ctx context.Context, id string) (model.Coupon, error)
	List(ctx context.Context, f coupons.ListFilter) ([]model.Coupon, int, error)
	Create(ctx context.Context, p coupons.Patch, createdBy string) (model.Coupon, error)
	Update(ctx context.Context, id string, p coupons.Patch) (model.Coupon, error)
	Delete(ctx context.Context, id string) (soft bool, err error)
}

type CouponHandler struct {
	coupons Coupons
	logger  *slog.Logger
}

func NewCouponHandler(c Coupons, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{coupons: c, logger: logger}
}

type validateCouponRequest struct {
	Code        string `json:"code"`
	Amount      *int64 `json:"amount"`
	ServiceID   string `json:"serviceId"`
	SpecialtyID string `json:"specialtyId"`
}

type validateCouponResponse struct {
	coupons.Result
	Description string    `json:"description,omitempty"`
	EndDate     time.Time `json:"endDate"`
}

// Validate checks a code against an optional purchase. GET reads the query string,
// POST a JSON body with the same fields.
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if r.Method == http.MethodPost {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			fail(w, r, h.logger, err)
			return
		}
	} else {
		q := r.URL.Query()
		req.Code = q.Get("code")
		req.ServiceID = q.Get("serviceId")
		req.SpecialtyID = q.Get("specialtyId")
		if raw := strings.TrimSpace(q.Get("amount")); raw != "" {
			amount, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				fail(w, r, h.logger, httpx.BadRequest("amount must be a whole number"))
				return
			}
			req.Amount = &amount
		}
	}
	if strings.TrimSpace(req.Code) == "" {
		fail(w, r, h.logger, httpx.BadRequest("coupon code is required"))
		return
	}
	if req.Amount != nil && *req.Amount < 0 {
		fail(w, r, h.logger, httpx.BadRequest("amount must not be negative"))
		return
	}

	res, c, err := h.coupons.Validate(r.Context(), req.Code, coupons.Query{
		Amount:      req.Amount,
		ServiceID:   model.NormalizeID(req.ServiceID),
		SpecialtyID: model.NormalizeID(req.SpecialtyID),
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, validateCouponResponse{Result: res, Description: c.Description, EndDate: c.EndDate})
}

func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := pageParams(r, 20)
	out, total, err := h.coupons.List(r.Context(), coupons.ListFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Active: queryBool(r, "isActive"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, limit, total))
}

func (h *CouponHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, c)
}

func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var patch coupons.Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	c, err := h.coupons.Create(r.Context(), patch, p.UserID)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, c)
}

func (h *CouponHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch coupons.Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	c, err := h.coupons.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, c)
}

func (h *CouponHandler) Delete(w http.ResponseWriter, r *http.Request) {
	soft, err := h.coupons.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if soft {
		httpx.WriteMessage(w, http.StatusOK, "coupon has been used and was deactivated instead of deleted")
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "coupon deleted")
}
