package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tencentPayload(overrides map[int]string) string {
	fields := make([]string, 50)
	for i := range fields {
		fields[i] = "0"
	}
	fields[1] = "贵州茅台"
	fields[3] = "1408.00"
	fields[4] = "1398.00"
	fields[32] = "0.72"
	fields[36] = "25000"   // lots
	fields[37] = "352000"  // wan yuan
	fields[38] = "0.20"
	fields[49] = "0.85"
	for i, v := range overrides {
		fields[i] = v
	}
	return `v_sh600519="` + strings.Join(fields, "~") + `";`
}

func TestParseTencentLine(t *testing.T) {
	q, err := parseTencentLine(tencentPayload(nil))
	require.NoError(t, err)

	assert.Equal(t, "贵州茅台", q.Name)
	assert.InDelta(t, 1408.0, q.Price.Value, 1e-9)
	assert.InDelta(t, 1398.0, q.PrevClose.Value, 1e-9)
	assert.InDelta(t, 0.72, q.ChangePct.Value, 1e-9)
	assert.InDelta(t, 2_500_000, q.Volume.Value, 1e-9, "lots scale to shares")
	assert.InDelta(t, 3.52e9, q.Turnover.Value, 1e-6, "wan yuan scale to yuan")
	assert.InDelta(t, 0.20, q.TurnoverRate.Value, 1e-9)
	assert.InDelta(t, 0.85, q.VolumeRatio.Value, 1e-9)
}

func TestParseTencentLineMissingOptionalFields(t *testing.T) {
	q, err := parseTencentLine(tencentPayload(map[int]string{49: "-", 38: ""}))
	require.NoError(t, err)

	assert.False(t, q.VolumeRatio.Valid, "a dash marks the field absent")
	assert.False(t, q.TurnoverRate.Valid)
	assert.Equal(t, "N/A", q.VolumeRatio.String())
}

func TestParseTencentLineRejects(t *testing.T) {
	cases := map[string]string{
		"no assignment": `v_sh600519`,
		"short payload": `v_sh600519="a~b~c";`,
		"zero price":    tencentPayload(map[int]string{3: "0.00"}),
		"bad price":     tencentPayload(map[int]string{3: "oops"}),
	}
	for name, line := range cases {
		_, err := parseTencentLine(line)
		assert.Error(t, err, name)
	}
}

func TestTencentFetch(t *testing.T) {
	var gotPath, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write([]byte(tencentPayload(nil)))
	}))
	defer srv.Close()

	p := NewTencentProvider(time.Second)
	p.baseURL = srv.URL + "/q="

	rec, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindRealtimeQuote,
	})
	require.NoError(t, err)

	assert.Contains(t, gotPath, "sh600519")
	assert.Equal(t, "https://gu.qq.com", gotReferer)
	assert.Equal(t, "tencent", rec.Provider)
	assert.Equal(t, KindRealtimeQuote, rec.Kind)
	require.NotNil(t, rec.Quote)
	assert.InDelta(t, 1408.0, rec.Quote.Price.Value, 1e-9)
}

func TestTencentFetchClassifiesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewTencentProvider(time.Second)
	p.baseURL = srv.URL + "/q="

	_, err := p.Fetch(context.Background(), Request{
		Instrument: Instrument{Market: "sh", Code: "600519"},
		Kind:       KindRealtimeQuote,
	})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrRateLimited, pe.Kind)
	assert.Equal(t, 120*time.Second, pe.RetryAfter)
}

func TestTencentSupports(t *testing.T) {
	p := NewTencentProvider(time.Second)
	assert.True(t, p.Supports(KindRealtimeQuote))
	assert.False(t, p.Supports(KindHistoricalBar))
	assert.Empty(t, p.Family(), "tencent is keyless")
}
