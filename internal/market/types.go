package market

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// DataKind selects which canonical schema a request targets. Each kind has
// its own provider fallback chain.
type DataKind string

const (
	KindRealtimeQuote DataKind = "realtime_quote"
	KindHistoricalBar DataKind = "historical_bar"
	KindFundamental   DataKind = "fundamental"
	KindSearchResult  DataKind = "search_result"
)

func (k DataKind) Valid() bool {
	switch k {
	case KindRealtimeQuote, KindHistoricalBar, KindFundamental, KindSearchResult:
		return true
	}
	return false
}

// Field is a float value with explicit presence. Providers frequently omit
// fields (sina has no volume ratio, for example); an absent field renders as
// "N/A" downstream and is never replaced by a zero.
type Field struct {
	Value float64
	Valid bool
}

func F(v float64) Field { return Field{Value: v, Valid: true} }

func (f Field) String() string {
	if !f.Valid {
		return "N/A"
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

func (f Field) Format(decimals int) string {
	if !f.Valid {
		return "N/A"
	}
	return strconv.FormatFloat(f.Value, 'f', decimals, 64)
}

// Quote is the canonical realtime quote schema.
type Quote struct {
	Name         string `json:"name,omitempty"`
	Price        Field  `json:"price"`
	PrevClose    Field  `json:"prev_close"`
	ChangePct    Field  `json:"change_pct"`
	Volume       Field  `json:"volume"`
	Turnover     Field  `json:"turnover"`
	VolumeRatio  Field  `json:"volume_ratio"`
	TurnoverRate Field  `json:"turnover_rate"`
}

// Bar is one period of the canonical historical series, oldest-first in a
// Record's Bars slice.
type Bar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	Close    float64 `json:"close"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Volume   float64 `json:"volume"`
	Turnover float64 `json:"turnover,omitempty"`
}

// Fundamental is the canonical valuation snapshot.
type Fundamental struct {
	PERatio     Field `json:"pe_ratio"`
	PBRatio     Field `json:"pb_ratio"`
	TotalMktCap Field `json:"total_mkt_cap"`
	FloatMktCap Field `json:"float_mkt_cap"`
}

// SearchHit is one canonical news-search result.
type SearchHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Record is the canonical provider-independent result for one (instrument,
// kind) pair. Exactly one of the kind-specific sections is populated.
type Record struct {
	Kind       DataKind   `json:"kind"`
	Instrument Instrument `json:"instrument"`
	Provider   string     `json:"provider"`
	FetchedAt  time.Time  `json:"fetched_at"`

	Quote       *Quote       `json:"quote,omitempty"`
	Bars        []Bar        `json:"bars,omitempty"`
	Fundamental *Fundamental `json:"fundamental,omitempty"`
	Search      []SearchHit  `json:"search,omitempty"`
}

// Request describes one logical fetch. Credential is set by the caller for
// providers whose Family is non-empty; adapters never pick keys themselves.
type Request struct {
	Instrument Instrument
	Kind       DataKind
	// BarCount bounds a HistoricalBar fetch; zero means the adapter default.
	BarCount int
	// Query overrides the search text for KindSearchResult; defaults to the
	// instrument's name/code.
	Query      string
	Credential string
}

// Provider is the uniform adapter contract. Family names the credential pool
// an adapter draws from; keyless adapters return "".
type Provider interface {
	Name() string
	Family() string
	Supports(kind DataKind) bool
	Fetch(ctx context.Context, req Request) (*Record, error)
}

func validateRequest(req Request, kind DataKind) error {
	if req.Kind != kind {
		return fmt.Errorf("unsupported data kind: %s", req.Kind)
	}
	if req.Kind != KindSearchResult && req.Instrument.Code == "" {
		return fmt.Errorf("instrument code is empty")
	}
	return nil
}
