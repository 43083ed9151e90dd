package logstream

import (
	"github.com/google/wire"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/store"
)

// ProviderSet is the wire provider set for the logstream package.
var ProviderSet = wire.NewSet(ProvideGateway)

// ProvideGateway creates the log stream gateway.
func ProvideGateway(s *store.Store, cfg *config.LogStream, l *logger.Logger) *Gateway {
	return New(s, cfg, WithLogger(l))
}
