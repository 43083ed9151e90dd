//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/data"
	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/handlers"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/logging/observes"
	"github.com/ncobase/runner/logstream"
	"github.com/ncobase/runner/messaging"
	"github.com/ncobase/runner/rescue"
	"github.com/ncobase/runner/service"
	"github.com/ncobase/runner/store"
)

// InitializeApp wires a runner process from a loaded configuration.
// The cleanup releases resources in reverse order of creation.
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	panic(wire.Build(
		config.ProviderSet,
		logger.ProviderSet,
		observes.ProviderSet,
		data.ProviderSet,
		store.ProviderSet,
		lease.ProviderSet,
		messaging.ProviderSet,
		handlers.ProviderSet,
		executor.ProviderSet,
		rescue.ProviderSet,
		service.ProviderSet,
		logstream.ProviderSet,
		NewApp,
	))
}
