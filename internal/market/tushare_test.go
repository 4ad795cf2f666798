package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTushareFetchDaily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body tushareReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "daily", body.APIName)
		assert.Equal(t, "tok-1", body.Token)
		assert.Equal(t, "600519.SH", body.Params["ts_code"])

		// tushare returns rows newest first
		_, _ = w.Write([]byte(`{"code":0,"data":{
			"fields":["trade_date","open","close","high","low","vol","amount"],
			"items":[
				["20250530",1405.0,1408.0,1412.0,1402.0,25000.0,3520000.0],
				["20250529",1400.0,1405.0,1410.0,1395.0,20000.0,2810000.0]
			]}}`))
	}))
	defer srv.Close()

	p := NewTushareProvider(time.Second)
	p.baseURL = srv.URL

	rec, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindHistoricalBar,
		Credential: "tok-1",
	})
	require.NoError(t, err)
	require.Len(t, rec.Bars, 2)

	assert.Equal(t, "20250529", rec.Bars[0].Date, "canonical order is oldest first")
	assert.Equal(t, "20250530", rec.Bars[1].Date)
	assert.InDelta(t, 2_500_000, rec.Bars[1].Volume, 1e-9, "lots scale to shares")
	assert.InDelta(t, 3.52e9, rec.Bars[1].Turnover, 1e-3, "qian yuan scale to yuan")
}

func TestTushareFetchDailyBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{
			"fields":["pe","pb","total_mv","circ_mv"],
			"items":[[22.5,7.8,176800000.0,176800000.0]]}}`))
	}))
	defer srv.Close()

	p := NewTushareProvider(time.Second)
	p.baseURL = srv.URL

	rec, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindFundamental,
		Credential: "tok-1",
	})
	require.NoError(t, err)
	require.NotNil(t, rec.Fundamental)
	assert.InDelta(t, 22.5, rec.Fundamental.PERatio.Value, 1e-9)
	assert.InDelta(t, 1.768e12, rec.Fundamental.TotalMktCap.Value, 1, "wan yuan scale to yuan")
}

func TestTushareRequiresToken(t *testing.T) {
	p := NewTushareProvider(time.Second)
	_, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindHistoricalBar,
	})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrAuthFailure, pe.Kind)
}

func TestTushareClassifyAPIError(t *testing.T) {
	p := NewTushareProvider(time.Second)

	tests := []struct {
		msg  string
		kind ErrorKind
	}{
		{"抱歉，您每分钟最多访问该接口2次", ErrRateLimited},
		{"访问频率过高", ErrRateLimited},
		{"rate limit exceeded", ErrRateLimited},
		{"token无效", ErrAuthFailure},
		{"您的积分不足", ErrAuthFailure},
		{"系统繁忙", ErrTransient},
	}
	for _, tt := range tests {
		pe := p.classifyAPIError(40203, tt.msg)
		assert.Equal(t, tt.kind, pe.Kind, "msg %q", tt.msg)
	}
	assert.Equal(t, time.Minute, p.classifyAPIError(40203, "每分钟").RetryAfter)
}

func TestTushareInBandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":40203,"msg":"抱歉，您每分钟最多访问该接口2次"}`))
	}))
	defer srv.Close()

	p := NewTushareProvider(time.Second)
	p.baseURL = srv.URL

	_, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sz", Code: "000001"},
		Kind:       KindHistoricalBar,
		Credential: "tok-1",
	})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrRateLimited, pe.Kind, "in-band quota errors ride on HTTP 200")
}

func TestTushareCode(t *testing.T) {
	assert.Equal(t, "600519.SH", tushareCode(Instrument{Market: "sh", Code: "600519"}))
	assert.Equal(t, "000001.SZ", tushareCode(Instrument{Market: "sz", Code: "000001"}))
	assert.Equal(t, "430047.BJ", tushareCode(Instrument{Market: "bj", Code: "430047"}))
}
