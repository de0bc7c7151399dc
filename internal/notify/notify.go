// Package notify fans circuit-breaker transitions out to live subscribers.
// Delivery is best effort: a failed push is logged and never fails the write
// that triggered it.
package notify

import (
	"context"

	"github.com/evetabi/riskevents/internal/domain"
)

// Notifier receives every breaker transition after it has been persisted.
type Notifier interface {
	BreakerTripped(ctx context.Context, ev *domain.CircuitBreakerEvent)
	BreakerResolved(ctx context.Context, ev *domain.CircuitBreakerEvent)
}

// Fanout forwards each notification to every wrapped Notifier in order.
type Fanout []Notifier

var _ Notifier = Fanout(nil)

// NewFanout drops nil entries so optional sinks can be passed unconditionally.
func NewFanout(sinks ...Notifier) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) BreakerTripped(ctx context.Context, ev *domain.CircuitBreakerEvent) {
	for _, n := range f {
		n.BreakerTripped(ctx, ev)
	}
}

func (f Fanout) BreakerResolved(ctx context.Context, ev *domain.CircuitBreakerEvent) {
	for _, n := range f {
		n.BreakerResolved(ctx, ev)
	}
}

// Nop discards every notification.
type Nop struct{}

func (Nop) BreakerTripped(context.Context, *domain.CircuitBreakerEvent)  {}
func (Nop) BreakerResolved(context.Context, *domain.CircuitBreakerEvent) {}
