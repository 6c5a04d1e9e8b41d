package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/avatars"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/users"
)

// Accounts is the part of users.Service the auth and user routes need.
type Accounts interface {
	Register(ctx context.Context, req users.RegisterRequest) (users.Session, error)
	Login(ctx context.Context, email, password string) (users.Session, error)
	Profile(ctx context.Context, id string) (model.User, error)
	UpdateProfile(ctx context.Context, id string, p users.ProfilePatch) (model.User, error)
	ChangePassword(ctx context.Context, id, current, next string) error
	UploadAvatar(ctx context.Context, id string, r io.Reader, size int64) (model.Avatar, error)

	List(ctx context.Context, f users.Filter) ([]model.User, int, error)
	UpdateAccess(ctx context.Context, id, actorID string, p users.AccessPatch) (model.User, error)
	Delete(ctx context.Context, id, actorID string) error
	Roles(ctx context.Context) ([]model.Role, error)
	CreateRole(ctx context.Context, p users.RolePatch) (model.Role, error)
	UpdateRole(ctx context.Context, id string, p users.RolePatch) (model.Role, error)
}

type AuthHandler struct {
	accounts Accounts
	logger   *slog.Logger
}

func NewAuthHandler(accounts Accounts, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	sess, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, sess)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fail(w, r, h.logger, httpx.BadRequest("email and password are required"))
		return
	}
	sess, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, sess)
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	u, err := h.accounts.Profile(r.Context(), p.UserID)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, u)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var patch users.ProfilePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	u, err := h.accounts.UpdateProfile(r.Context(), p.UserID, patch)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, u)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "password updated")
}

// UploadAvatar accepts a multipart form with the picture in the "avatar" field.
func (h *AuthHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, avatars.MaxSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(w, r, h.logger, avatars.ErrTooLarge)
			return
		}
		fail(w, r, h.logger, httpx.BadRequest("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("avatar")
	if err != nil {
		fail(w, r, h.logger, httpx.BadRequest("avatar file is required"))
		return
	}
	defer file.Close()

	avatar, err := h.accounts.UploadAvatar(r.Context(), p.UserID, file, header.Size)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, avatar)
}

// UserHandler is the admin surface over accounts and custom roles.
type UserHandler struct {
	accounts Accounts
	logger   *slog.Logger
}

func NewUserHandler(accounts Accounts, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, logger: logger}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := pageParams(r, 20)
	q := r.URL.Query()
	out, total, err := h.accounts.List(r.Context(), users.Filter{
		Search:   strings.TrimSpace(q.Get("search")),
		RoleType: model.RoleType(q.Get("roleType")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, limit, total))
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, u)
}

func (h *UserHandler) UpdateAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var patch users.AccessPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	u, err := h.accounts.UpdateAccess(r.Context(), chi.URLParam(r, "id"), p.UserID, patch)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, u)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), chi.URLParam(r, "id"), p.UserID); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "user deleted")
}

func (h *UserHandler) Roles(w http.ResponseWriter, r *http.Request) {
	out, err := h.accounts.Roles(r.Context())
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, out)
}

func (h *UserHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var patch users.RolePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	role, err := h.accounts.CreateRole(r.Context(), patch)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, role)
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var patch users.RolePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	role, err := h.accounts.UpdateRole(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, role)
}
