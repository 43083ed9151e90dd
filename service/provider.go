package service

import (
	"github.com/google/wire"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/store"
)

// ProviderSet is the wire provider set for the service package.
var ProviderSet = wire.NewSet(ProvideService)

// ProvideService creates the submission and status service.
func ProvideService(s *store.Store, l *logger.Logger) *Service {
	return New(s, WithLogger(l))
}
