package acquire

import (
	"github.com/zzy990/daily-stock-analysis/internal/market"
)

// defaultVolumeWindow is the trailing period count the volume ratio is
// computed against when a provider omits it.
const defaultVolumeWindow = 5

// VolumeRatio derives the ratio of current volume to the trailing average
// over the most recent window bars. Pure: no fetching, no mutation. It
// yields an absent Field rather than a synthetic value whenever the series
// is shorter than the window or the average is zero.
func VolumeRatio(currentVolume market.Field, bars []market.Bar, window int) market.Field {
	if window <= 0 {
		window = defaultVolumeWindow
	}
	if !currentVolume.Valid || len(bars) < window {
		return market.Field{}
	}
	var sum float64
	for _, b := range bars[len(bars)-window:] {
		sum += b.Volume
	}
	avg := sum / float64(window)
	if avg <= 0 {
		return market.Field{}
	}
	return market.F(currentVolume.Value / avg)
}

// BackfillQuote fills the quote fields that can be derived from a trailing
// bar series. Best effort: fields stay absent when the series cannot
// support the computation. Already-present fields are never overwritten.
func BackfillQuote(q *market.Quote, bars []market.Bar, window int) {
	if q == nil {
		return
	}
	if !q.VolumeRatio.Valid {
		// the trailing window must exclude today's still-forming bar when the
		// series already includes it
		q.VolumeRatio = VolumeRatio(q.Volume, trimCurrentBar(q, bars), window)
	}
	if !q.ChangePct.Valid && q.Price.Valid && q.PrevClose.Valid && q.PrevClose.Value > 0 {
		q.ChangePct = market.F((q.Price.Value - q.PrevClose.Value) / q.PrevClose.Value * 100)
	}
}

// quoteNeedsBackfill reports whether fetching an auxiliary bar series could
// complete the record.
func quoteNeedsBackfill(q *market.Quote) bool {
	return q != nil && !q.VolumeRatio.Valid && q.Volume.Valid
}

// trimCurrentBar drops the newest bar when its volume matches the live quote
// volume, so a same-day partial bar does not dilute the trailing average.
func trimCurrentBar(q *market.Quote, bars []market.Bar) []market.Bar {
	if len(bars) == 0 || !q.Volume.Valid {
		return bars
	}
	last := bars[len(bars)-1]
	if last.Volume == q.Volume.Value {
		return bars[:len(bars)-1]
	}
	return bars
}
