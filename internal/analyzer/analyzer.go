package analyzer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

type Config struct {
	Enabled       bool
	Model         string
	FallbackModel string
	APIKey        string
	BaseURL       string
	ByAzure       bool
	APIVersion    string
	Temperature   float32
	TimeoutMs     int
}

// Input is the normalized snapshot for one stock. Sections are nil when the
// acquisition layer could not obtain them; the prompt renders them as
// unavailable instead of inventing values.
type Input struct {
	Instrument  market.Instrument
	Quote       *market.Quote
	Bars        []market.Bar
	Fundamental *market.Fundamental
	News        []market.SearchHit
	// Missing lists data kinds that ended in failure, surfaced to the model
	// as "数据缺失" so it can lower its own confidence.
	Missing []string
}

// Result is the parsed model verdict for one stock.
type Result struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	SentimentScore  int    `json:"sentiment_score"`
	TrendPrediction string `json:"trend_prediction"`
	OperationAdvice string `json:"operation_advice"`
	DecisionType    string `json:"decision_type"`
	ConfidenceLevel string `json:"confidence_level"`
	TrendAnalysis   string `json:"trend_analysis"`
	VolumeAnalysis  string `json:"volume_analysis"`
	NewsSummary     string `json:"news_summary"`
	AnalysisSummary string `json:"analysis_summary"`
	RiskWarning     string `json:"risk_warning"`
	Success         bool   `json:"success"`
}

// Agent drives the LLM analysis stage. A primary chat model is tried first;
// on error the configured fallback model gets one shot before the neutral
// hold result is returned.
type Agent struct {
	enabled        bool
	model          *openai.ChatModel
	fallback       *openai.ChatModel
	modelName      string
	disabledReason string
	log            *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Agent{enabled: false, disabledReason: "disabled by config", log: log}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		log.Warn("analyzer disabled: missing api key or model")
		return &Agent{enabled: false, disabledReason: "api_key or model missing", log: log}
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	build := func(model string) (*openai.ChatModel, error) {
		temp := cfg.Temperature
		return openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			Model:       model,
			BaseURL:     cfg.BaseURL,
			ByAzure:     cfg.ByAzure,
			APIVersion:  cfg.APIVersion,
			Temperature: &temp,
			Timeout:     timeout,
		})
	}

	primary, err := build(cfg.Model)
	if err != nil {
		log.Warn("analyzer init error", zap.Error(err))
		return &Agent{enabled: false, disabledReason: "init failed", log: log}
	}
	a := &Agent{enabled: true, model: primary, modelName: cfg.Model, log: log}
	if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.Model {
		if fb, err := build(cfg.FallbackModel); err == nil {
			a.fallback = fb
		} else {
			log.Warn("analyzer fallback model init error", zap.Error(err))
		}
	}
	return a
}

func (a *Agent) Enabled() bool { return a.enabled }

// Analyze runs one stock through the model. It never returns a zero Result:
// on any model or parse failure the neutral hold verdict comes back with
// Success=false alongside the error.
func (a *Agent) Analyze(ctx context.Context, in Input) (Result, error) {
	name := stockName(in)
	if !a.enabled || a.model == nil {
		return neutralResult(in.Instrument.Code, name, a.disabledReason), nil
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(FormatPrompt(in)),
	}

	resp, err := a.model.Generate(ctx, messages)
	if err != nil && a.fallback != nil {
		a.log.Warn("primary model failed, trying fallback", zap.String("model", a.modelName), zap.Error(err))
		resp, err = a.fallback.Generate(ctx, messages)
	}
	if err != nil {
		return neutralResult(in.Instrument.Code, name, "model error"), fmt.Errorf("generate analysis: %w", err)
	}

	out, err := ParseResult(strings.TrimSpace(resp.Content), in.Instrument.Code, name)
	if err != nil {
		return neutralResult(in.Instrument.Code, name, "unparseable reply"), err
	}
	return out, nil
}

// BatchAnalyze walks the watchlist sequentially; one bad stock never stops
// the rest.
func (a *Agent) BatchAnalyze(ctx context.Context, inputs []Input) []Result {
	out := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		res, err := a.Analyze(ctx, in)
		if err != nil {
			a.log.Warn("analysis failed", zap.String("code", in.Instrument.Code), zap.Error(err))
		}
		out = append(out, res)
	}
	return out
}

func stockName(in Input) string {
	if in.Quote != nil && in.Quote.Name != "" {
		return in.Quote.Name
	}
	return in.Instrument.Code
}

func neutralResult(code, name, reason string) Result {
	return Result{
		Code:            code,
		Name:            name,
		SentimentScore:  50,
		TrendPrediction: "震荡",
		OperationAdvice: "持有",
		DecisionType:    "hold",
		ConfidenceLevel: "低",
		AnalysisSummary: "分析不可用：" + reason,
		Success:         false,
	}
}
