package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eastmoneyQuoteBody = `{"data":{"f57":"600519","f58":"贵州茅台","f43":1408.0,"f60":1398.0,"f170":0.72,"f47":25000,"f48":3520000000.0,"f50":0.85,"f168":0.20,"f162":22.5,"f167":7.8,"f116":1768000000000,"f117":1768000000000}}`

func TestEastmoneyFetchQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.600519", r.URL.Query().Get("secid"))
		_, _ = w.Write([]byte(eastmoneyQuoteBody))
	}))
	defer srv.Close()

	p := NewEastmoneyProvider(time.Second)
	p.quoteURL = srv.URL

	rec, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindRealtimeQuote,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.Quote)

	assert.Equal(t, "贵州茅台", rec.Quote.Name)
	assert.InDelta(t, 1408.0, rec.Quote.Price.Value, 1e-9)
	assert.InDelta(t, 2_500_000, rec.Quote.Volume.Value, 1e-9, "lots scale to shares")
	assert.InDelta(t, 0.85, rec.Quote.VolumeRatio.Value, 1e-9)
}

func TestEastmoneyFetchQuoteNullFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"f57":"600519","f58":"贵州茅台","f43":1408.0,"f50":null,"f168":null}}`))
	}))
	defer srv.Close()

	p := NewEastmoneyProvider(time.Second)
	p.quoteURL = srv.URL

	rec, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindRealtimeQuote,
	})
	require.NoError(t, err)
	assert.False(t, rec.Quote.VolumeRatio.Valid, "null JSON fields map to absent, not zero")
	assert.False(t, rec.Quote.TurnoverRate.Valid)
}

func TestEastmoneyFetchFundamental(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(eastmoneyQuoteBody))
	}))
	defer srv.Close()

	p := NewEastmoneyProvider(time.Second)
	p.quoteURL = srv.URL

	rec, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindFundamental,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.Fundamental)
	assert.Nil(t, rec.Quote)
	assert.InDelta(t, 22.5, rec.Fundamental.PERatio.Value, 1e-9)
	assert.InDelta(t, 7.8, rec.Fundamental.PBRatio.Value, 1e-9)
}

func TestEastmoneyFetchBars(t *testing.T) {
	body := `{"data":{"klines":[
		"2025-05-28,1400.0,1405.0,1410.0,1395.0,20000,2810000000.0",
		"2025-05-29,1405.0,1408.0,1412.0,1402.0,25000,3520000000.0"
	]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0.000001", r.URL.Query().Get("secid"))
		assert.Equal(t, "101", r.URL.Query().Get("klt"))
		assert.Equal(t, "10", r.URL.Query().Get("lmt"))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewEastmoneyProvider(time.Second)
	p.klineURL = srv.URL

	rec, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sz", Code: "000001"},
		Kind:       KindHistoricalBar,
		BarCount:   10,
	})
	require.NoError(t, err)
	require.Len(t, rec.Bars, 2)

	first := rec.Bars[0]
	assert.Equal(t, "2025-05-28", first.Date)
	assert.InDelta(t, 1400.0, first.Open, 1e-9)
	assert.InDelta(t, 1405.0, first.Close, 1e-9)
	assert.InDelta(t, 2_000_000, first.Volume, 1e-9, "lots scale to shares")
	assert.True(t, rec.Bars[0].Date < rec.Bars[1].Date, "bars are oldest first")
}

func TestEastmoneyEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	defer srv.Close()

	p := NewEastmoneyProvider(time.Second)
	p.quoteURL = srv.URL

	_, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindRealtimeQuote,
	})
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrTransient, pe.Kind)
}

func TestEastmoneySecID(t *testing.T) {
	assert.Equal(t, "1.600519", eastmoneySecID(Instrument{Market: "sh", Code: "600519"}))
	assert.Equal(t, "0.000001", eastmoneySecID(Instrument{Market: "sz", Code: "000001"}))
	assert.Equal(t, "0.430047", eastmoneySecID(Instrument{Market: "bj", Code: "430047"}))
}
