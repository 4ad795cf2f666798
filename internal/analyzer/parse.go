package analyzer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	lineCommentRe   = regexp.MustCompile(`//[^\n"]*`)
)

type rawResult struct {
	StockName       string          `json:"stock_name"`
	SentimentScore  json.RawMessage `json:"sentiment_score"`
	TrendPrediction string          `json:"trend_prediction"`
	OperationAdvice string          `json:"operation_advice"`
	DecisionType    string          `json:"decision_type"`
	ConfidenceLevel string          `json:"confidence_level"`
	TrendAnalysis   string          `json:"trend_analysis"`
	VolumeAnalysis  string          `json:"volume_analysis"`
	NewsSummary     string          `json:"news_summary"`
	AnalysisSummary string          `json:"analysis_summary"`
	RiskWarning     string          `json:"risk_warning"`
}

// ParseResult extracts the JSON verdict from a model reply. Models wrap the
// payload in code fences, add commentary around it, or emit trailing commas;
// all of that is tolerated before the strict decode.
func ParseResult(text, code, name string) (Result, error) {
	cleaned := stripCodeFences(text)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no JSON object in model reply")
	}
	jsonStr := fixJSON(cleaned[start : end+1])

	var raw rawResult
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return Result{}, fmt.Errorf("decode model reply: %w", err)
	}

	out := Result{
		Code:            code,
		Name:            name,
		SentimentScore:  parseScore(raw.SentimentScore),
		TrendPrediction: defaultStr(raw.TrendPrediction, "震荡"),
		OperationAdvice: defaultStr(raw.OperationAdvice, "持有"),
		DecisionType:    raw.DecisionType,
		ConfidenceLevel: defaultStr(raw.ConfidenceLevel, "中"),
		TrendAnalysis:   raw.TrendAnalysis,
		VolumeAnalysis:  raw.VolumeAnalysis,
		NewsSummary:     raw.NewsSummary,
		AnalysisSummary: defaultStr(raw.AnalysisSummary, "分析完成"),
		RiskWarning:     raw.RiskWarning,
		Success:         true,
	}
	// prefer the model's stock name when ours is just the code
	if raw.StockName != "" && (out.Name == code || out.Name == "") {
		out.Name = raw.StockName
	}
	if out.DecisionType == "" {
		out.DecisionType = inferDecisionType(out.OperationAdvice)
	}
	return out, nil
}

func stripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	return strings.ReplaceAll(text, "```", "")
}

func fixJSON(s string) string {
	s = lineCommentRe.ReplaceAllString(s, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ": True", ": true")
	s = strings.ReplaceAll(s, ": False", ": false")
	return s
}

// parseScore accepts both 72 and "72"; anything unusable is neutral.
func parseScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 50
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 50
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &n); err != nil {
			return 50
		}
	}
	score := int(n)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func inferDecisionType(advice string) string {
	switch advice {
	case "买入", "加仓", "强烈买入":
		return "buy"
	case "卖出", "减仓", "强烈卖出":
		return "sell"
	default:
		return "hold"
	}
}

func defaultStr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
