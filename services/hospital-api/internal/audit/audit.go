// Package audit keeps an append-only trail of administrative changes.
package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
)

type Event struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actorId,omitempty"`
	TargetType string         `json:"targetType,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type Filter struct {
	Action     string
	ActorID    string
	TargetType string
	TargetID   string
	Limit      int
	Offset     int
}

type Store interface {
	Insert(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, int, error)
}

// Recorder writes audit events. A failed write is logged and never fails the request
// being audited.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	if e.RequestID == "" {
		e.RequestID = httpx.RequestIDFromContext(ctx)
	}
	if err := r.store.Insert(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Error("audit write failed", "err", err, "action", e.Action, "target_id", e.TargetID)
	}
}

func (r *Recorder) List(ctx context.Context, f Filter) ([]Event, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return r.store.List(ctx, f)
}

// Middleware records action after the wrapped handler answers with a 2xx. The target id is
// the route's last URL parameter; the target type is the action's prefix ("coupon.update" -> "coupon").
func (r *Recorder) Middleware(action string) func(http.Handler) http.Handler {
	targetType, _, _ := strings.Cut(action, ".")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, req)
			if sw.status < 200 || sw.status >= 300 {
				return
			}
			e := Event{
				Action:     action,
				TargetType: targetType,
				TargetID:   lastParam(req),
				Metadata: map[string]any{
					"method": req.Method,
					"path":   req.URL.Path,
					"status": sw.status,
				},
			}
			if p, ok := access.FromContext(req.Context()); ok {
				e.ActorID = p.UserID
			}
			r.Record(req.Context(), e)
		})
	}
}

func lastParam(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Values) == 0 {
		return ""
	}
	return rctx.URLParams.Values[len(rctx.URLParams.Values)-1]
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
