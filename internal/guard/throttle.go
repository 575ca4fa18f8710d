package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/palpitai/platform/internal/projection"
)

// PollThrottle limits gateway status queries per payment order. The first
// caller inside the interval wins the slot; others reuse the stored status.
type PollThrottle struct {
	store    projection.Store
	interval time.Duration
	logger   *slog.Logger
}

// NewPollThrottle creates a throttle over store. A zero interval disables it.
func NewPollThrottle(store projection.Store, interval time.Duration, logger *slog.Logger) *PollThrottle {
	return &PollThrottle{store: store, interval: interval, logger: logger}
}

// Allow reports whether a gateway query for orderID may run now.
// Store errors allow the query.
func (p *PollThrottle) Allow(ctx context.Context, orderID string) bool {
	if p == nil || p.interval <= 0 {
		return true
	}
	ok, err := p.store.SetNX(ctx, "throttle:poll:"+orderID, []byte{1}, p.interval)
	if err != nil {
		p.logger.Warn("poll throttle unavailable", "order_id", orderID, "error", err)
		return true
	}
	return ok
}
