package httpx

import (
	"net/http"

	"github.com/getsentry/sentry-go"
)

// reportError forwards a server-side failure to Sentry. Without sentry.Init it does nothing.
func reportError(r *http.Request, err error) {
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(r)
		scope.SetTag("request_id", RequestIDFromContext(r.Context()))
		hub.CaptureException(err)
	})
}

func reportPanic(r *http.Request, rec any) {
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(r)
		scope.SetTag("request_id", RequestIDFromContext(r.Context()))
		hub.Recover(rec)
	})
}
