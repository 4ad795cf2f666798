package acquire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

func mustInstruments(t *testing.T, raws ...string) []market.Instrument {
	t.Helper()
	out := make([]market.Instrument, 0, len(raws))
	for _, raw := range raws {
		out = append(out, mustInstrument(t, raw))
	}
	return out
}

func TestFetchBatchFallbackAttribution(t *testing.T) {
	a := quoteProvider("a", errors.New("connect timeout"))
	b := quoteProvider("b", nil)
	var events []AttemptEvent
	r := newTestRouter(t, map[market.DataKind][]market.Provider{
		market.KindRealtimeQuote: {a, b},
	}, nil, func(ev AttemptEvent) { events = append(events, ev) })
	orch := NewOrchestrator(r, 1, nil)

	insts := mustInstruments(t, "sh600519", "sz000001", "sz300750")
	result, err := orch.FetchBatch(context.Background(), insts, []market.DataKind{market.KindRealtimeQuote}, 0)
	require.NoError(t, err)

	require.Len(t, result, 3)
	for _, inst := range insts {
		out := result[inst.Key()][market.KindRealtimeQuote]
		require.True(t, out.OK(), "every instrument must succeed via the fallback")
		assert.Equal(t, "b", out.Record.Provider)
	}

	failures := 0
	for _, ev := range events {
		if ev.Provider == "a" && ev.Outcome == OutcomeFailure {
			failures++
		}
	}
	assert.Equal(t, 3, failures, "the primary's failure must be visible once per instrument")
}

func TestFetchBatchCompleteMappingOnFailure(t *testing.T) {
	a := quoteProvider("a", errors.New("down"))
	r := newTestRouter(t, map[market.DataKind][]market.Provider{
		market.KindRealtimeQuote: {a},
	}, nil, nil)
	orch := NewOrchestrator(r, 2, nil)

	insts := mustInstruments(t, "sh600519", "sz000001")
	result, err := orch.FetchBatch(context.Background(), insts, []market.DataKind{market.KindRealtimeQuote}, 0)
	require.NoError(t, err, "per-pair failures must not fail the batch")

	require.Len(t, result, 2)
	for _, inst := range insts {
		out := result[inst.Key()][market.KindRealtimeQuote]
		assert.False(t, out.OK())
		var apf *AllProvidersFailed
		assert.ErrorAs(t, out.Err, &apf)
		assert.NotEmpty(t, out.FailureReason())
	}
}

func TestFetchBatchDeadlineCoversEveryPair(t *testing.T) {
	slow := &fakeProvider{
		name: "slow",
		fetch: func(market.Request) (*market.Record, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, errors.New("too slow anyway")
		},
	}
	r := newTestRouter(t, map[market.DataKind][]market.Provider{
		market.KindRealtimeQuote: {slow},
	}, nil, nil)
	orch := NewOrchestrator(r, 1, nil)

	insts := mustInstruments(t, "sh600519", "sz000001", "sz300750", "bj430047")
	result, err := orch.FetchBatch(context.Background(), insts, []market.DataKind{market.KindRealtimeQuote}, 20*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, result, 4, "a deadline hit must still yield an outcome per pair")
	timedOut := 0
	for _, inst := range insts {
		out := result[inst.Key()][market.KindRealtimeQuote]
		require.False(t, out.OK())
		if errors.Is(out.Err, context.DeadlineExceeded) {
			timedOut++
		}
	}
	assert.GreaterOrEqual(t, timedOut, 1, "pairs past the deadline fail as timeouts")
}

func TestFetchBatchUnknownKind(t *testing.T) {
	r := newTestRouter(t, map[market.DataKind][]market.Provider{
		market.KindRealtimeQuote: {quoteProvider("a", nil)},
	}, nil, nil)
	orch := NewOrchestrator(r, 1, nil)

	_, err := orch.FetchBatch(context.Background(), mustInstruments(t, "sh600519"),
		[]market.DataKind{"intraday_tick"}, 0)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
}

func TestFetchBatchUnchainedKind(t *testing.T) {
	r := newTestRouter(t, map[market.DataKind][]market.Provider{
		market.KindRealtimeQuote: {quoteProvider("a", nil)},
	}, nil, nil)
	orch := NewOrchestrator(r, 1, nil)

	_, err := orch.FetchBatch(context.Background(), mustInstruments(t, "sh600519"),
		[]market.DataKind{market.KindFundamental}, 0)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, market.KindFundamental, ce.Kind)
}

func TestFetchBatchMultipleKinds(t *testing.T) {
	quote := quoteProvider("tencent", nil)
	bars := &fakeProvider{
		name: "eastmoney",
		fetch: func(req market.Request) (*market.Record, error) {
			return &market.Record{Kind: req.Kind, Instrument: req.Instrument, Provider: "eastmoney",
				Bars: barsWithVolumes(1, 2, 3)}, nil
		},
	}
	r := newTestRouter(t, map[market.DataKind][]market.Provider{
		market.KindRealtimeQuote: {quote},
		market.KindHistoricalBar: {bars},
	}, nil, nil)
	orch := NewOrchestrator(r, 3, nil)

	result, err := orch.FetchBatch(context.Background(), mustInstruments(t, "sh600519"),
		[]market.DataKind{market.KindRealtimeQuote, market.KindHistoricalBar}, 0)
	require.NoError(t, err)

	outs := result["sh600519"]
	require.Len(t, outs, 2)
	assert.True(t, outs[market.KindRealtimeQuote].OK())
	assert.True(t, outs[market.KindHistoricalBar].OK())
	assert.Len(t, outs[market.KindHistoricalBar].Record.Bars, 3)
}
