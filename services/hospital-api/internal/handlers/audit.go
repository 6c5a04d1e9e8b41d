package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/audit"
)

type AuditLog interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Event, int, error)
}

type AuditHandler struct {
	log    AuditLog
	logger *slog.Logger
}

func NewAuditHandler(log AuditLog, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{log: log, logger: logger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := pageParams(r, 50)
	q := r.URL.Query()
	events, total, err := h.log.List(r.Context(), audit.Filter{
		Action:     q.Get("action"),
		ActorID:    q.Get("actor"),
		TargetType: q.Get("targetType"),
		TargetID:   q.Get("targetId"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	httpx.WritePage(w, events, httpx.NewPagination(page, limit, total))
}
