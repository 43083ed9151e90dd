package data

import (
	"context"

	"github.com/google/wire"
	"github.com/ncobase/runner/config"
)

// ProviderSet is the wire provider set for the data package.
// It provides *Data with a cleanup function that closes the connection.
var ProviderSet = wire.NewSet(ProvideData)

// ProvideData opens the configured database.
func ProvideData(ctx context.Context, cfg *config.Data) (*Data, func(), error) {
	return New(ctx, cfg)
}
