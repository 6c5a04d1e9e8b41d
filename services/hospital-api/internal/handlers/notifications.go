package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type Notifications interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]model.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) (model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, id string) error
}

type NotificationHandler struct {
	notifications Notifications
	logger        *slog.Logger
}

func NewNotificationHandler(n Notifications, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: n, logger: logger}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	page, limit, offset := pageParams(r, 20)
	unread := queryBool(r, "unread")
	out, total, err := h.notifications.List(r.Context(), p.UserID, unread != nil && *unread, limit, offset)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, out, httpx.NewPagination(page, limit, total))
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.UnreadCount(r.Context(), p.UserID)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]int{"count": n})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), p.UserID)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	if err := h.notifications.Delete(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "notification deleted")
}
