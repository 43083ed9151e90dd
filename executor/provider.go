package executor

import (
	"github.com/google/wire"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/messaging"
	"github.com/ncobase/runner/store"
)

// ProviderSet is the wire provider set for the executor package. The
// *Registry comes from the package that registers the handlers.
var ProviderSet = wire.NewSet(ProvideExecutor)

// ProvideExecutor creates the stage executor.
func ProvideExecutor(s *store.Store, leases *lease.Manager, registry *Registry, n messaging.Notifier, l *logger.Logger) *Executor {
	return New(s, leases, registry, WithNotifier(n), WithLogger(l))
}
