package messaging

import (
	"context"

	"github.com/ncobase/runner/config"
	"github.com/sony/gobreaker"
)

// BreakerNotifier guards a notifier with a circuit breaker. While the circuit
// is open Notify fails immediately with gobreaker.ErrOpenState.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerNotifier wraps next. The circuit opens after FailureThreshold
// consecutive failures.
func NewBreakerNotifier(name string, next Notifier, cfg *config.Breaker) *BreakerNotifier {
	st := gobreaker.Settings{Name: name}
	threshold := uint32(5)
	if cfg != nil {
		st.MaxRequests = cfg.MaxRequests
		st.Interval = cfg.Interval
		st.Timeout = cfg.Timeout
		if cfg.FailureThreshold > 0 {
			threshold = uint32(cfg.FailureThreshold)
		}
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= threshold
	}

	return &BreakerNotifier{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Notify implements Notifier.
func (b *BreakerNotifier) Notify(ctx context.Context, n Notification) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Notify(ctx, n)
	})
	return err
}

// State returns the breaker state.
func (b *BreakerNotifier) State() gobreaker.State {
	return b.cb.State()
}

// Close closes the wrapped notifier.
func (b *BreakerNotifier) Close() error {
	return b.next.Close()
}
