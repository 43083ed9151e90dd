package messaging

import (
	"context"

	"github.com/google/wire"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/logging/logger"
)

// ProviderSet is the wire provider set for the messaging package.
var ProviderSet = wire.NewSet(ProvideNotifier)

// ProvideNotifier builds the configured notifier. The cleanup closes it.
func ProvideNotifier(ctx context.Context, cfg *config.Notify, l *logger.Logger) (Notifier, func(), error) {
	n, err := New(ctx, cfg, l)
	if err != nil {
		return nil, nil, err
	}
	return n, func() {
		if err := n.Close(); err != nil {
			l.Error(ctx, "Failed to close notifier", "error", err)
		}
	}, nil
}
