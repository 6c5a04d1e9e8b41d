package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/medications"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type Medications interface {
	List(ctx context.Context, f medications.Filter) ([]model.Medication, int, error)
	Get(ctx context.Context, id string) (model.Medication, error)
	Create(ctx context.Context, p medications.Patch) (model.Medication, error)
	Update(ctx context.Context, id string, p medications.Patch) (model.Medication, error)
	Delete(ctx context.Context, id string) error
}

type MedicationHandler struct {
	medications Medications
	logger      *slog.Logger
}

func NewMedicationHandler(m Medications, logger *slog.Logger) *MedicationHandler {
	return &MedicationHandler{medications: m, logger: logger}
}

// List hides inactive medications from callers that cannot manage the catalogue.
func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := pageParams(r, 20)
	f := medications.Filter{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		ActiveOnly: true,
		Limit:      limit,
		Offset:     offset,
	}
	if p, ok := access.FromContext(r.Context()); ok && p.Can(access.MedicationsManage) {
		if active := queryBool(r, "isActive"); active == nil || !*active {
			f.ActiveOnly = false
		}
	}
	out, total, err := h.medications.List(r.Context(), f)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, limit, total))
}

func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.medications.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, m)
}

func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var patch medications.Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	m, err := h.medications.Create(r.Context(), patch)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, m)
}

func (h *MedicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch medications.Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	m, err := h.medications.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, m)
}

func (h *MedicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.medications.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "medication deleted")
}
