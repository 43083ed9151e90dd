package rescue

import (
	"github.com/google/wire"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/messaging"
	"github.com/ncobase/runner/store"
)

// ProviderSet is the wire provider set for the rescue package.
var ProviderSet = wire.NewSet(ProvideSweeper)

// ProvideSweeper creates the rescue sweeper from the worker configuration.
func ProvideSweeper(s *store.Store, leases *lease.Manager, cfg *config.Worker, n messaging.Notifier, l *logger.Logger) *Sweeper {
	return New(s, leases, cfg.RescueInterval, cfg.MaxAttempts, WithNotifier(n), WithLogger(l))
}
