package acquire

import (
	"fmt"
	"strings"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

// AttemptError is one provider's reason for failing within a chain
// traversal, kept for observability in the terminal error.
type AttemptError struct {
	Provider string           `json:"provider"`
	Kind     market.ErrorKind `json:"-"`
	Reason   string           `json:"reason"`
}

// AllProvidersFailed is the terminal error for one (instrument, kind) pair
// after the whole chain has been traversed. It is non-fatal for the batch.
type AllProvidersFailed struct {
	Kind       market.DataKind
	Instrument market.Instrument
	Causes     []AttemptError
}

func (e *AllProvidersFailed) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		parts = append(parts, c.Provider+": "+c.Reason)
	}
	return fmt.Sprintf("all providers failed for %s/%s [%s]",
		e.Instrument.Key(), e.Kind, strings.Join(parts, "; "))
}

// ConfigurationError means the layer cannot serve a requested kind at all
// (typically an empty chain) and aborts startup rather than a single batch.
type ConfigurationError struct {
	Kind   market.DataKind
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for kind %s: %s", e.Kind, e.Reason)
}
