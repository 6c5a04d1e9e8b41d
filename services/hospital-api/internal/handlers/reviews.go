package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type Reviews interface {
	Create(ctx context.Context, appointmentID, userID string, rating int, comment string) (model.Review, error)
	Delete(ctx context.Context, hospitalID, reviewID, userID string, moderate bool) error
	ListByHospital(ctx context.Context, hospitalID string, limit, offset int) ([]model.Review, int, error)
}

type ReviewHandler struct {
	reviews Reviews
	logger  *slog.Logger
}

func NewReviewHandler(reviews Reviews, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	review, err := h.reviews.Create(r.Context(), chi.URLParam(r, "id"), p.UserID, req.Rating, req.Comment)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, review)
}

func (h *ReviewHandler) ListByHospital(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := pageParams(r, 10)
	out, total, err := h.reviews.ListByHospital(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, limit, total))
}

func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	err := h.reviews.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reviewId"), p.UserID, p.Can(access.ReviewsModerate))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "review deleted")
}
