package report

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/zzy990/daily-stock-analysis/internal/acquire"
	"github.com/zzy990/daily-stock-analysis/internal/analyzer"
	"github.com/zzy990/daily-stock-analysis/internal/market"
	"github.com/zzy990/daily-stock-analysis/internal/notify"
	"github.com/zzy990/daily-stock-analysis/internal/store"
)

// allKinds is what a full daily run asks the acquisition layer for.
var allKinds = []market.DataKind{
	market.KindRealtimeQuote,
	market.KindHistoricalBar,
	market.KindFundamental,
	market.KindSearchResult,
}

// Service runs the daily pipeline: acquire the snapshot for the watchlist,
// analyze each stock, persist the verdicts and push the rendered report.
type Service struct {
	orch         *acquire.Orchestrator
	agent        *analyzer.Agent
	store        *store.Store
	notifier     *notify.Service
	batchTimeout time.Duration
	log          *zap.Logger
}

// RunResult is what one pipeline run produced.
type RunResult struct {
	Date     string            `json:"date"`
	Results  []analyzer.Result `json:"results"`
	Failures map[string]string `json:"failures,omitempty"`
	Pushed   bool              `json:"pushed"`
}

func NewService(orch *acquire.Orchestrator, agent *analyzer.Agent, st *store.Store, notifier *notify.Service, batchTimeout time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		orch:         orch,
		agent:        agent,
		store:        st,
		notifier:     notifier,
		batchTimeout: batchTimeout,
		log:          log,
	}
}

// Run executes the pipeline for the given symbols. Per-stock data failures
// degrade that stock's analysis; only unparseable symbols or an unserveable
// kind abort the run.
func (s *Service) Run(ctx context.Context, symbols []string) (*RunResult, error) {
	instruments, err := market.ParseInstruments(symbols)
	if err != nil {
		return nil, err
	}

	batch, err := s.orch.FetchBatch(ctx, instruments, allKinds, s.batchTimeout)
	if err != nil {
		return nil, err
	}

	date := chinaToday()
	out := &RunResult{Date: date, Failures: map[string]string{}}

	inputs := make([]analyzer.Input, 0, len(instruments))
	for _, inst := range instruments {
		in, failures := buildInput(inst, batch[inst.Key()])
		for kind, reason := range failures {
			out.Failures[inst.Key()+"/"+string(kind)] = reason
		}
		if qo := batch[inst.Key()][market.KindRealtimeQuote]; qo.OK() {
			s.persistSnapshot(inst, qo.Record)
		}
		inputs = append(inputs, in)
	}

	out.Results = s.agent.BatchAnalyze(ctx, inputs)
	for _, res := range out.Results {
		s.persistAnalysis(date, res)
	}

	if s.notifier != nil {
		md := RenderMarkdown(date, out.Results, out.Failures)
		if err := s.notifier.PushReport(ctx, "每日自选股分析 "+date, md); err != nil {
			s.log.Warn("push report failed", zap.Error(err))
		} else {
			out.Pushed = true
		}
	}
	return out, nil
}

// Fetch exposes the raw acquisition batch for the API layer.
func (s *Service) Fetch(ctx context.Context, symbols []string, kinds []market.DataKind) (acquire.BatchResult, error) {
	instruments, err := market.ParseInstruments(symbols)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = allKinds
	}
	return s.orch.FetchBatch(ctx, instruments, kinds, s.batchTimeout)
}

// buildInput folds one instrument's per-kind outcomes into an analyzer
// input, recording which kinds are missing.
func buildInput(inst market.Instrument, outcomes map[market.DataKind]acquire.Outcome) (analyzer.Input, map[market.DataKind]string) {
	in := analyzer.Input{Instrument: inst}
	failures := map[market.DataKind]string{}
	for kind, out := range outcomes {
		if !out.OK() {
			in.Missing = append(in.Missing, string(kind))
			failures[kind] = out.FailureReason()
			continue
		}
		switch kind {
		case market.KindRealtimeQuote:
			in.Quote = out.Record.Quote
		case market.KindHistoricalBar:
			in.Bars = out.Record.Bars
		case market.KindFundamental:
			in.Fundamental = out.Record.Fundamental
		case market.KindSearchResult:
			in.News = out.Record.Search
		}
	}
	return in, failures
}

func (s *Service) persistSnapshot(inst market.Instrument, rec *market.Record) {
	if s.store == nil || rec == nil || rec.Quote == nil {
		return
	}
	q := rec.Quote
	snap := store.QuoteSnapshot{
		TS:          time.Now().Unix(),
		Symbol:      inst.Key(),
		Name:        q.Name,
		Provider:    rec.Provider,
		Price:       fieldPtr(q.Price),
		ChangePct:   fieldPtr(q.ChangePct),
		Volume:      fieldPtr(q.Volume),
		Turnover:    fieldPtr(q.Turnover),
		VolumeRatio: fieldPtr(q.VolumeRatio),
	}
	if err := s.store.InsertQuoteSnapshot(snap); err != nil {
		s.log.Warn("insert quote snapshot failed", zap.String("symbol", inst.Key()), zap.Error(err))
	}
}

func (s *Service) persistAnalysis(date string, res analyzer.Result) {
	if s.store == nil {
		return
	}
	content, _ := json.Marshal(res)
	rec := store.AnalysisRecord{
		Date:            date,
		Code:            res.Code,
		Name:            res.Name,
		SentimentScore:  res.SentimentScore,
		TrendPrediction: res.TrendPrediction,
		OperationAdvice: res.OperationAdvice,
		DecisionType:    res.DecisionType,
		ConfidenceLevel: res.ConfidenceLevel,
		Summary:         res.AnalysisSummary,
		RiskWarning:     res.RiskWarning,
		ContentJSON:     string(content),
	}
	if err := s.store.UpsertAnalysis(rec); err != nil {
		s.log.Warn("upsert analysis failed", zap.String("code", res.Code), zap.Error(err))
	}
}

func fieldPtr(f market.Field) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

func chinaToday() string {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	return time.Now().In(loc).Format("2006-01-02")
}
