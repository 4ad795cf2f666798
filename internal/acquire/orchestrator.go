package acquire

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

// Outcome is one (instrument, kind) result: either a canonical record or
// the failure that ended its chain traversal. Failures mean "insufficient
// data" downstream, never a fatal condition.
type Outcome struct {
	Record *market.Record `json:"record,omitempty"`
	Err    error          `json:"-"`
}

func (o Outcome) OK() bool { return o.Err == nil && o.Record != nil }

// FailureReason renders the error for presentation layers; empty on success.
func (o Outcome) FailureReason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// BatchResult maps instrument key -> kind -> outcome. Every requested pair
// is present; nothing is dropped on failure.
type BatchResult map[string]map[market.DataKind]Outcome

// Orchestrator is the public entry point of the acquisition layer. It fans
// one router invocation out per (instrument, kind) pair under a global
// concurrency limit so aggregate load stays bounded across all providers.
type Orchestrator struct {
	router *Router
	limit  int
	log    *zap.Logger
}

func NewOrchestrator(router *Router, concurrency int, log *zap.Logger) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{router: router, limit: concurrency, log: log}
}

// FetchBatch acquires every requested kind for every instrument. A non-nil
// error is returned only for configuration problems (unserveable kind);
// per-pair failures land in the mapping as Failure outcomes. A deadline of
// zero means the caller's ctx governs cancellation alone.
func (o *Orchestrator) FetchBatch(ctx context.Context, instruments []market.Instrument, kinds []market.DataKind, deadline time.Duration) (BatchResult, error) {
	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, &ConfigurationError{Kind: kind, Reason: "unknown data kind"}
		}
		if !o.router.HasChain(kind) {
			return nil, &ConfigurationError{Kind: kind, Reason: "no provider chain configured"}
		}
	}

	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	var mu sync.Mutex
	result := make(BatchResult, len(instruments))
	for _, inst := range instruments {
		result[inst.Key()] = make(map[market.DataKind]Outcome, len(kinds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.limit)
	start := time.Now()

	for _, inst := range instruments {
		for _, kind := range kinds {
			inst, kind := inst, kind
			g.Go(func() error {
				var out Outcome
				// a pair whose turn comes after the deadline is aborted
				// without burning a provider call
				if err := gctx.Err(); err != nil {
					out = Outcome{Err: err}
				} else {
					rec, err := o.router.Fetch(gctx, market.Request{Instrument: inst, Kind: kind})
					out = Outcome{Record: rec, Err: err}
				}
				mu.Lock()
				result[inst.Key()][kind] = out
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	o.log.Info("batch complete",
		zap.Int("instruments", len(instruments)),
		zap.Int("kinds", len(kinds)),
		zap.Int("failures", countFailures(result)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// Circuits exposes the breaker view for the status API.
func (o *Orchestrator) Circuits() []ProviderCircuit { return o.router.breaker.Snapshot() }

// Credentials exposes the rotator view for the status API.
func (o *Orchestrator) Credentials() []FamilyCredentials { return o.router.rotator.Snapshot() }

func countFailures(result BatchResult) int {
	n := 0
	for _, kinds := range result {
		for _, out := range kinds {
			if !out.OK() {
				n++
			}
		}
	}
	return n
}
