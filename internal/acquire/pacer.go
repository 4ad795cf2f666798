package acquire

import (
	"context"
	"sync"
	"time"
)

// pacer enforces a minimum interval between calls to the same provider
// family, spreading load ahead of any provider-side throttle. This is the
// proactive counterpart of the breaker's reactive tripping. Keyless
// providers pace on their own name.
type pacer struct {
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// wait blocks until the family's interval has elapsed or ctx is done. The
// slot is claimed up front so concurrent workers queue behind each other
// instead of releasing together.
func (p *pacer) wait(ctx context.Context, family string) error {
	if p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	at := p.last[family].Add(p.interval)
	if at.Before(now) {
		at = now
	}
	p.last[family] = at
	p.mu.Unlock()

	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
