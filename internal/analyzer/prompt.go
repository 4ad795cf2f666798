package analyzer

import (
	"fmt"
	"strings"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

const systemPrompt = `你是一位A股首席分析师。你必须只输出合法 JSON，不要输出其他文字。
规则：
- 基于提供的数据做客观分析，不编造数据；标注为 N/A 的字段视为未知。
- sentiment_score 为 0-100 整数，50 为中性。
- trend_prediction 只能是 看多|看空|震荡。
- operation_advice 只能是 买入|持有|卖出|观望。
- confidence_level 只能是 高|中|低；关键数据缺失时必须降为 低。
- 输出字段：sentiment_score, trend_prediction, operation_advice, decision_type,
  confidence_level, trend_analysis, volume_analysis, news_summary,
  analysis_summary, risk_warning, stock_name。`

// FormatPrompt renders the normalized snapshot for the model. Absent fields
// print as N/A; a false value is never substituted.
func FormatPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "股票：%s（%s）\n\n", stockName(in), in.Instrument.Key())

	b.WriteString("## 实时行情\n")
	if q := in.Quote; q != nil {
		fmt.Fprintf(&b, "现价：%s 元，涨跌幅：%s%%\n", q.Price.Format(2), q.ChangePct.Format(2))
		fmt.Fprintf(&b, "成交量：%s，成交额：%s\n", formatVolume(q.Volume), formatAmount(q.Turnover))
		fmt.Fprintf(&b, "量比：%s，换手率：%s%%\n", q.VolumeRatio.Format(2), q.TurnoverRate.Format(2))
	} else {
		b.WriteString("数据缺失\n")
	}

	b.WriteString("\n## 近期K线\n")
	if len(in.Bars) > 0 {
		bars := in.Bars
		if len(bars) > 10 {
			bars = bars[len(bars)-10:]
		}
		for _, bar := range bars {
			fmt.Fprintf(&b, "%s 开%.2f 收%.2f 高%.2f 低%.2f 量%s\n",
				bar.Date, bar.Open, bar.Close, bar.High, bar.Low, formatVolume(market.F(bar.Volume)))
		}
	} else {
		b.WriteString("数据缺失\n")
	}

	b.WriteString("\n## 估值\n")
	if f := in.Fundamental; f != nil {
		fmt.Fprintf(&b, "市盈率：%s，市净率：%s，总市值：%s\n",
			f.PERatio.Format(2), f.PBRatio.Format(2), formatAmount(f.TotalMktCap))
	} else {
		b.WriteString("数据缺失\n")
	}

	b.WriteString("\n## 近期新闻\n")
	if len(in.News) > 0 {
		news := in.News
		if len(news) > 5 {
			news = news[:5]
		}
		for _, hit := range news {
			fmt.Fprintf(&b, "- %s", hit.Title)
			if hit.PublishedAt != "" {
				fmt.Fprintf(&b, "（%s）", hit.PublishedAt)
			}
			b.WriteString("\n")
			if hit.Snippet != "" {
				fmt.Fprintf(&b, "  %s\n", truncate(hit.Snippet, 200))
			}
		}
	} else {
		b.WriteString("无\n")
	}

	if len(in.Missing) > 0 {
		fmt.Fprintf(&b, "\n注意：以下数据获取失败：%s。分析时请相应降低置信度。\n",
			strings.Join(in.Missing, "、"))
	}

	b.WriteString("\n请输出 JSON 格式的分析结果。")
	return b.String()
}

func formatVolume(v market.Field) string {
	if !v.Valid {
		return "N/A"
	}
	switch {
	case v.Value >= 1e8:
		return fmt.Sprintf("%.2f亿股", v.Value/1e8)
	case v.Value >= 1e4:
		return fmt.Sprintf("%.2f万股", v.Value/1e4)
	default:
		return fmt.Sprintf("%.0f股", v.Value)
	}
}

func formatAmount(v market.Field) string {
	if !v.Valid {
		return "N/A"
	}
	switch {
	case v.Value >= 1e8:
		return fmt.Sprintf("%.2f亿元", v.Value/1e8)
	case v.Value >= 1e4:
		return fmt.Sprintf("%.2f万元", v.Value/1e4)
	default:
		return fmt.Sprintf("%.0f元", v.Value)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
