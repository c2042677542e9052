package internal

import (
	"context"
	"time"
)

const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically evicts connections whose transport went away without
// the close handler running.
type Sweeper struct {
	relay    *Relay
	interval time.Duration
}

func NewSweeper(relay *Relay, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{relay: relay, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.relay.Sweep(ctx)
		}
	}
}
