package runtime

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/md-rashed-zaman/medibook/libs/config"
)

// InitSentry enables error reporting when SENTRY_DSN is set. The returned func flushes
// buffered events and is safe to call when reporting is disabled.
func InitSentry(service string) (func(), error) {
	dsn := config.String("SENTRY_DSN", "")
	if dsn == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		ServerName:  service,
		Environment: config.String("DEPLOY_ENV", "local"),
		Release:     service + "@" + config.String("SERVICE_VERSION", "dev"),
	})
	if err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}
