package observes

import (
	"context"
	"time"

	"github.com/google/wire"
	"github.com/ncobase/runner/config"
)

// ProviderSet is the wire provider set for the observes package.
var ProviderSet = wire.NewSet(ProvideObservability)

// Observability records which backends are active.
type Observability struct {
	Sentry  bool
	Tracing bool
}

// ProvideObservability starts Sentry and the OpenTelemetry tracer when they
// have an endpoint. The cleanup flushes both.
func ProvideObservability(cfg *config.Observes) (*Observability, func(), error) {
	o := &Observability{}
	if cfg == nil {
		return o, func() {}, nil
	}

	flush := func() {}
	if cfg.Sentry != nil && cfg.Sentry.Endpoint != "" {
		serverName := ""
		if cfg.Tracer != nil {
			serverName = cfg.Tracer.ServiceName
		}
		f, err := NewSentry(cfg.Sentry, serverName)
		if err != nil {
			return nil, nil, err
		}
		flush = f
		o.Sentry = true
	}

	shutdown := func(context.Context) error { return nil }
	if cfg.Tracer != nil && cfg.Tracer.Endpoint != "" {
		s, err := NewTracer(cfg.Tracer)
		if err != nil {
			flush()
			return nil, nil, err
		}
		shutdown = s
		o.Tracing = true
	}

	return o, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
		flush()
	}, nil
}
