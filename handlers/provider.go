package handlers

import (
	"time"

	"github.com/google/wire"
	"github.com/ncobase/runner/executor"
)

// DefaultStageDelay paces the simulated stages of the built-in handlers.
const DefaultStageDelay = 500 * time.Millisecond

// ProviderSet is the wire provider set for the handlers package.
var ProviderSet = wire.NewSet(ProvideRegistry)

// ProvideRegistry returns a registry holding every built-in handler.
func ProvideRegistry() (*executor.Registry, error) {
	reg := executor.NewRegistry()
	if err := Register(reg, Options{StageDelay: DefaultStageDelay}); err != nil {
		return nil, err
	}
	return reg, nil
}
