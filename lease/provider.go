package lease

import (
	"github.com/google/wire"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/store"
)

// ProviderSet is the wire provider set for the lease package.
var ProviderSet = wire.NewSet(ProvideManager)

// ProvideManager creates the lease manager with the worker's lease timeout.
func ProvideManager(s *store.Store, cfg *config.Worker, l *logger.Logger) *Manager {
	return NewManager(s, cfg.LeaseTimeout, WithLogger(l))
}
