package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zzy990/daily-stock-analysis/internal/analyzer"
)

// RenderMarkdown formats the daily report for push channels. Stocks are
// ordered by sentiment score so the actionable names lead.
func RenderMarkdown(date string, results []analyzer.Result, failures map[string]string) string {
	sorted := make([]analyzer.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SentimentScore > sorted[j].SentimentScore
	})

	var b strings.Builder
	fmt.Fprintf(&b, "## 📊 每日自选股分析（%s）\n\n", date)

	for _, r := range sorted {
		fmt.Fprintf(&b, "### %s %s（%s）\n", scoreEmoji(r.SentimentScore), r.Name, r.Code)
		fmt.Fprintf(&b, "**评分**：%d/100　**趋势**：%s　**建议**：%s（置信度：%s）\n\n",
			r.SentimentScore, r.TrendPrediction, r.OperationAdvice, r.ConfidenceLevel)
		if r.AnalysisSummary != "" {
			fmt.Fprintf(&b, "%s\n\n", r.AnalysisSummary)
		}
		if r.RiskWarning != "" {
			fmt.Fprintf(&b, "⚠️ %s\n\n", r.RiskWarning)
		}
	}

	if len(failures) > 0 {
		b.WriteString("---\n**数据获取异常**（以下数据缺失，相关结论仅供参考）：\n")
		keys := make([]string, 0, len(failures))
		for k := range failures {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s：数据不可用\n", k)
		}
	}
	return b.String()
}

func scoreEmoji(score int) string {
	switch {
	case score >= 80:
		return "🔥"
	case score >= 60:
		return "📈"
	case score >= 40:
		return "➖"
	case score >= 20:
		return "📉"
	default:
		return "🧊"
	}
}
