package acquire

import (
	"time"

	"go.uber.org/zap"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

// AttemptEvent describes one provider attempt. Exactly one event is emitted
// per attempt, including attempts refused by the breaker or starved of
// credentials; external logging or metrics hang off the listener. The layer
// itself keeps no history.
type AttemptEvent struct {
	Provider   string
	Family     string
	Kind       market.DataKind
	Instrument market.Instrument
	Outcome    AttemptOutcome
	Err        error
	Latency    time.Duration
}

type AttemptOutcome string

const (
	OutcomeSuccess      AttemptOutcome = "success"
	OutcomeFailure      AttemptOutcome = "failure"
	OutcomeCircuitOpen  AttemptOutcome = "circuit_open"
	OutcomeNoCredential AttemptOutcome = "no_credential"
)

// Listener receives attempt events. Must be fast; it is called inline on the
// fetch path.
type Listener func(AttemptEvent)

// LogListener adapts a zap logger into a Listener.
func LogListener(log *zap.Logger) Listener {
	return func(ev AttemptEvent) {
		fields := []zap.Field{
			zap.String("provider", ev.Provider),
			zap.String("kind", string(ev.Kind)),
			zap.String("instrument", ev.Instrument.Key()),
			zap.String("outcome", string(ev.Outcome)),
			zap.Duration("latency", ev.Latency),
		}
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}
		if ev.Outcome == OutcomeSuccess {
			log.Debug("provider attempt", fields...)
			return
		}
		log.Warn("provider attempt", fields...)
	}
}
