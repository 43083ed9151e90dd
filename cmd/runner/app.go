package main

import (
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/logging/observes"
	"github.com/ncobase/runner/logstream"
	"github.com/ncobase/runner/rescue"
	"github.com/ncobase/runner/service"
	"github.com/ncobase/runner/store"
)

// App holds the wired components of a runner process.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Observes *observes.Observability
	Store    *store.Store
	Leases   *lease.Manager
	Executor *executor.Executor
	Sweeper  *rescue.Sweeper
	Service  *service.Service
	Logs     *logstream.Gateway
}

// NewApp assembles an App.
func NewApp(
	cfg *config.Config,
	log *logger.Logger,
	obs *observes.Observability,
	s *store.Store,
	leases *lease.Manager,
	x *executor.Executor,
	sweeper *rescue.Sweeper,
	svc *service.Service,
	logs *logstream.Gateway,
) *App {
	return &App{
		Config:   cfg,
		Logger:   log,
		Observes: obs,
		Store:    s,
		Leases:   leases,
		Executor: x,
		Sweeper:  sweeper,
		Service:  svc,
		Logs:     logs,
	}
}
