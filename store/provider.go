package store

import (
	"context"

	"github.com/google/wire"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/data"
)

// ProviderSet is the wire provider set for the store package.
var ProviderSet = wire.NewSet(ProvideStore)

// ProvideStore creates the run store and, when enabled, bootstraps its
// schema.
func ProvideStore(ctx context.Context, d *data.Data, cfg *config.Data) (*Store, error) {
	s := New(d)
	if cfg != nil && cfg.Database != nil && cfg.Database.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}
