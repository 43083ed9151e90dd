package observes

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/ncobase/runner/config"
)

// NewSentry initializes the sentry client. An empty endpoint skips
// initialization. The returned function flushes buffered events.
func NewSentry(cfg *config.Sentry, serverName string) (func(), error) {
	if cfg == nil || cfg.Endpoint == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Endpoint,
		AttachStacktrace: true,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.SampleRate,
		ServerName:       serverName,
		Release:          cfg.Release,
		Environment:      cfg.Environment,
	})
	if err != nil {
		return nil, err
	}

	return func() { sentry.Flush(2 * time.Second) }, nil
}
