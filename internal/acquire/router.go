package acquire

import (
	"context"
	"time"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

// RouterConfig wires the ordered provider chains. Chains are fixed for the
// process lifetime; failover order never adapts to observed latency, keeping
// traversal deterministic.
type RouterConfig struct {
	// Chains maps each data kind to its providers in priority order.
	Chains map[market.DataKind][]market.Provider
	// BackfillWindow is the trailing period count for derived volume ratio.
	BackfillWindow int
	// BarCount is the default series length for HistoricalBar requests.
	BarCount int
}

// Router walks one chain per fetch: skip providers the breaker refuses,
// acquire a credential where required, call the adapter, and feed every
// outcome back into breaker and rotator. Attempts are strictly sequential;
// two providers are never raced for the same logical request.
type Router struct {
	chains         map[market.DataKind][]market.Provider
	breaker        *Breaker
	rotator        *Rotator
	pace           *pacer
	listener       Listener
	backfillWindow int
	barCount       int
}

func NewRouter(cfg RouterConfig, breaker *Breaker, rotator *Rotator, familyInterval time.Duration, listener Listener) (*Router, error) {
	for kind, chain := range cfg.Chains {
		if len(chain) == 0 {
			return nil, &ConfigurationError{Kind: kind, Reason: "empty provider chain"}
		}
		for _, p := range chain {
			if !p.Supports(kind) {
				return nil, &ConfigurationError{Kind: kind, Reason: "provider " + p.Name() + " does not serve this kind"}
			}
		}
	}
	if cfg.BackfillWindow <= 0 {
		cfg.BackfillWindow = defaultVolumeWindow
	}
	if cfg.BarCount <= 0 {
		cfg.BarCount = 30
	}
	if listener == nil {
		listener = func(AttemptEvent) {}
	}
	return &Router{
		chains:         cfg.Chains,
		breaker:        breaker,
		rotator:        rotator,
		pace:           newPacer(familyInterval),
		listener:       listener,
		backfillWindow: cfg.BackfillWindow,
		barCount:       cfg.BarCount,
	}, nil
}

// HasChain reports whether a kind can be served at all.
func (r *Router) HasChain(kind market.DataKind) bool {
	return len(r.chains[kind]) > 0
}

// Fetch resolves one (instrument, kind) request through the chain. On
// success the record has gone through backfill; on exhaustion the returned
// error is *AllProvidersFailed carrying every per-provider cause.
func (r *Router) Fetch(ctx context.Context, req market.Request) (*market.Record, error) {
	rec, err := r.fetchChain(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Kind == market.KindRealtimeQuote && quoteNeedsBackfill(rec.Quote) {
		r.backfill(ctx, req, rec)
	}
	return rec, nil
}

func (r *Router) fetchChain(ctx context.Context, req market.Request) (*market.Record, error) {
	chain := r.chains[req.Kind]
	if len(chain) == 0 {
		return nil, &ConfigurationError{Kind: req.Kind, Reason: "no provider chain configured"}
	}
	if req.Kind == market.KindHistoricalBar && req.BarCount <= 0 {
		req.BarCount = r.barCount
	}

	causes := make([]AttemptError, 0, len(chain))
	for _, p := range chain {
		name := p.Name()
		if !r.breaker.Allow(name) {
			r.emit(AttemptEvent{Provider: name, Family: p.Family(), Kind: req.Kind, Instrument: req.Instrument, Outcome: OutcomeCircuitOpen})
			causes = append(causes, AttemptError{Provider: name, Reason: "circuit open"})
			continue
		}

		attemptReq := req
		var cred Credential
		if family := p.Family(); family != "" {
			var ok bool
			cred, ok = r.rotator.Acquire(family)
			if !ok {
				// family-level failure, not a provider fault: the breaker is
				// not touched
				r.emit(AttemptEvent{Provider: name, Family: family, Kind: req.Kind, Instrument: req.Instrument, Outcome: OutcomeNoCredential})
				causes = append(causes, AttemptError{Provider: name, Reason: "credentials exhausted"})
				continue
			}
			attemptReq.Credential = cred.Key
		}

		if err := r.pace.wait(ctx, paceKey(p)); err != nil {
			causes = append(causes, AttemptError{Provider: name, Reason: err.Error()})
			return nil, &AllProvidersFailed{Kind: req.Kind, Instrument: req.Instrument, Causes: causes}
		}

		start := time.Now()
		rec, err := p.Fetch(ctx, attemptReq)
		latency := time.Since(start)
		if err != nil {
			pe := market.Classify(name, err)
			r.breaker.Record(name, false, pe.Kind)
			if cred.Key != "" && (pe.Kind == market.ErrAuthFailure || pe.Kind == market.ErrRateLimited) {
				r.rotator.MarkExhausted(cred, pe.RetryAfter)
			}
			r.emit(AttemptEvent{Provider: name, Family: p.Family(), Kind: req.Kind, Instrument: req.Instrument, Outcome: OutcomeFailure, Err: pe, Latency: latency})
			causes = append(causes, AttemptError{Provider: name, Kind: pe.Kind, Reason: pe.Err.Error()})
			continue
		}

		r.breaker.Record(name, true, 0)
		r.emit(AttemptEvent{Provider: name, Family: p.Family(), Kind: req.Kind, Instrument: req.Instrument, Outcome: OutcomeSuccess, Latency: latency})
		return rec, nil
	}

	return nil, &AllProvidersFailed{Kind: req.Kind, Instrument: req.Instrument, Causes: causes}
}

// backfill completes a partially filled quote from a trailing bar series
// fetched through the HistoricalBar chain. Best effort: when the series
// cannot be obtained the fields stay explicitly absent.
func (r *Router) backfill(ctx context.Context, req market.Request, rec *market.Record) {
	barRec, err := r.fetchChain(ctx, market.Request{
		Instrument: req.Instrument,
		Kind:       market.KindHistoricalBar,
		BarCount:   r.backfillWindow + 1,
	})
	if err != nil {
		BackfillQuote(rec.Quote, nil, r.backfillWindow)
		return
	}
	BackfillQuote(rec.Quote, barRec.Bars, r.backfillWindow)
}

func (r *Router) emit(ev AttemptEvent) { r.listener(ev) }

// paceKey groups pacing by credential family so sibling adapters of one
// upstream share the delay; keyless providers pace on their own name.
func paceKey(p market.Provider) string {
	if f := p.Family(); f != "" {
		return f
	}
	return p.Name()
}
