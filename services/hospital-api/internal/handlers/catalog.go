package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/catalog"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type Catalog interface {
	Hospitals(ctx context.Context, f catalog.Filter) ([]model.Hospital, int, error)
	Hospital(ctx context.Context, id string) (model.Hospital, error)
	SaveHospital(ctx context.Context, h *model.Hospital) error
	Specialties(ctx context.Context, f catalog.Filter) ([]model.Specialty, error)
	SaveSpecialty(ctx context.Context, sp *model.Specialty) error
	Services(ctx context.Context, f catalog.Filter) ([]model.Service, int, error)
	Service(ctx context.Context, id string) (model.Service, error)
	SaveService(ctx context.Context, svc *model.Service) error
	Doctors(ctx context.Context, f catalog.Filter) ([]model.Doctor, int, error)
	Doctor(ctx context.Context, id string) (model.Doctor, error)
	SaveDoctor(ctx context.Context, d *model.Doctor) error
}

type CatalogHandler struct {
	catalog Catalog
	logger  *slog.Logger
}

func NewCatalogHandler(c Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: c, logger: logger}
}

func catalogFilter(r *http.Request) (catalog.Filter, int) {
	page, limit, offset := pageParams(r, 20)
	q := r.URL.Query()
	f := catalog.Filter{
		Search:      strings.TrimSpace(q.Get("search")),
		HospitalID:  q.Get("hospital"),
		SpecialtyID: q.Get("specialty"),
		ActiveOnly:  true,
		Limit:       limit,
		Offset:      offset,
	}
	// Managers may ask for inactive entries too.
	if all := queryBool(r, "all"); all != nil && *all {
		f.ActiveOnly = false
	}
	return f, page
}

func (h *CatalogHandler) ListHospitals(w http.ResponseWriter, r *http.Request) {
	f, page := catalogFilter(r)
	out, total, err := h.catalog.Hospitals(r.Context(), f)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, f.Limit, total))
}

func (h *CatalogHandler) GetHospital(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.Hospital(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, out)
}

func (h *CatalogHandler) SaveHospital(w http.ResponseWriter, r *http.Request) {
	var in model.Hospital
	if err := httpx.DecodeJSON(r, &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	in.ID = chi.URLParam(r, "id")
	if err := h.catalog.SaveHospital(r.Context(), &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, savedStatus(r), in)
}

func (h *CatalogHandler) ListSpecialties(w http.ResponseWriter, r *http.Request) {
	f, _ := catalogFilter(r)
	out, err := h.catalog.Specialties(r.Context(), f)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, out)
}

func (h *CatalogHandler) SaveSpecialty(w http.ResponseWriter, r *http.Request) {
	var in model.Specialty
	if err := httpx.DecodeJSON(r, &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	in.ID = chi.URLParam(r, "id")
	if err := h.catalog.SaveSpecialty(r.Context(), &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, savedStatus(r), in)
}

func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	f, page := catalogFilter(r)
	out, total, err := h.catalog.Services(r.Context(), f)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, f.Limit, total))
}

func (h *CatalogHandler) GetService(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.Service(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, out)
}

func (h *CatalogHandler) SaveService(w http.ResponseWriter, r *http.Request) {
	var in model.Service
	if err := httpx.DecodeJSON(r, &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	in.ID = chi.URLParam(r, "id")
	if err := h.catalog.SaveService(r.Context(), &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, savedStatus(r), in)
}

func (h *CatalogHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	f, page := catalogFilter(r)
	out, total, err := h.catalog.Doctors(r.Context(), f)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, f.Limit, total))
}

func (h *CatalogHandler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.Doctor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, out)
}

// SaveDoctor upserts the profile of the doctor user named in the path.
func (h *CatalogHandler) SaveDoctor(w http.ResponseWriter, r *http.Request) {
	var in model.Doctor
	if err := httpx.DecodeJSON(r, &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	in.ID = chi.URLParam(r, "id")
	if err := h.catalog.SaveDoctor(r.Context(), &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, in)
}

func savedStatus(r *http.Request) int {
	if r.Method == http.MethodPost {
		return http.StatusCreated
	}
	return http.StatusOK
}
