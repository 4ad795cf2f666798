package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

func TestFormatPromptFullSnapshot(t *testing.T) {
	in := Input{
		Instrument: market.Instrument{Market: "sh", Code: "600519"},
		Quote: &market.Quote{
			Name:      "贵州茅台",
			Price:     market.F(1408),
			ChangePct: market.F(0.72),
			Volume:    market.F(2_500_000),
			Turnover:  market.F(3.52e9),
		},
		Bars: []market.Bar{
			{Date: "2025-05-29", Open: 1400, Close: 1405, High: 1410, Low: 1395, Volume: 2_000_000},
		},
		Fundamental: &market.Fundamental{PERatio: market.F(22.5), PBRatio: market.F(7.8), TotalMktCap: market.F(1.768e12)},
		News: []market.SearchHit{
			{Title: "一季度营收增长", PublishedAt: "2025-05-30", Snippet: "营收同比增长"},
		},
	}

	prompt := FormatPrompt(in)

	assert.Contains(t, prompt, "贵州茅台（sh600519）")
	assert.Contains(t, prompt, "1408.00 元")
	assert.Contains(t, prompt, "250.00万股")
	assert.Contains(t, prompt, "35.20亿元")
	assert.Contains(t, prompt, "2025-05-29")
	assert.Contains(t, prompt, "市盈率：22.50")
	assert.Contains(t, prompt, "一季度营收增长")
	assert.NotContains(t, prompt, "数据获取失败")
}

func TestFormatPromptAbsentFields(t *testing.T) {
	in := Input{
		Instrument: market.Instrument{Market: "sz", Code: "000001"},
		Quote: &market.Quote{
			Price: market.F(11.5),
			// everything else absent
		},
		Missing: []string{"historical_bar", "search_result"},
	}

	prompt := FormatPrompt(in)

	assert.Contains(t, prompt, "量比：N/A", "absent fields must surface as N/A, never zero")
	assert.Contains(t, prompt, "涨跌幅：N/A")
	assert.Contains(t, prompt, "数据获取失败：historical_bar、search_result")
	assert.Contains(t, prompt, "降低置信度")
}

func TestFormatPromptCapsBarsAndNews(t *testing.T) {
	in := Input{Instrument: market.Instrument{Market: "sh", Code: "600519"}}
	for i := 0; i < 30; i++ {
		in.Bars = append(in.Bars, market.Bar{Date: "2025-04-01", Volume: 1})
	}
	for i := 0; i < 12; i++ {
		in.News = append(in.News, market.SearchHit{Title: "headline"})
	}

	prompt := FormatPrompt(in)
	assert.Equal(t, 10, strings.Count(prompt, "2025-04-01"), "only the newest 10 bars are shown")
	assert.Equal(t, 5, strings.Count(prompt, "headline"), "only the first 5 hits are shown")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 200))
	long := strings.Repeat("股", 250)
	got := truncate(long, 200)
	assert.Equal(t, 203, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestStockName(t *testing.T) {
	in := Input{Instrument: market.Instrument{Market: "sh", Code: "600519"}}
	assert.Equal(t, "600519", stockName(in))

	in.Quote = &market.Quote{Name: "贵州茅台"}
	assert.Equal(t, "贵州茅台", stockName(in))
}
