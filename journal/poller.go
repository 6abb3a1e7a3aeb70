package journal

import (
	"context"
	"time"
)

const (
	defaultPollInterval = 3 * time.Minute
	defaultIdleAfter    = 60 * time.Second
)

// Poller periodically asks the store to refresh the whole journal. A refresh
// only runs while the user has been idle; otherwise it is marked pending so
// a later idle tick picks it up.
type Poller struct {
	store     *Store
	interval  time.Duration
	idleAfter time.Duration
}

func NewPoller(store *Store) *Poller {
	return &Poller{
		store:     store,
		interval:  defaultPollInterval,
		idleAfter: defaultIdleAfter,
	}
}

// NewPollerWithTimings exists for tests and tools that want faster cycles.
func NewPollerWithTimings(store *Store, interval, idleAfter time.Duration) *Poller {
	return &Poller{store: store, interval: interval, idleAfter: idleAfter}
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick issues one refresh decision based on current idleness.
func (p *Poller) Tick() {
	p.store.Dispatch(Refresh{Force: p.store.IdleFor() >= p.idleAfter})
}
