package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"github.com/zzy990/daily-stock-analysis/internal/acquire"
	"github.com/zzy990/daily-stock-analysis/internal/analyzer"
	"github.com/zzy990/daily-stock-analysis/internal/api"
	"github.com/zzy990/daily-stock-analysis/internal/config"
	"github.com/zzy990/daily-stock-analysis/internal/logger"
	"github.com/zzy990/daily-stock-analysis/internal/market"
	"github.com/zzy990/daily-stock-analysis/internal/notify"
	"github.com/zzy990/daily-stock-analysis/internal/push/dingtalk"
	"github.com/zzy990/daily-stock-analysis/internal/report"
	"github.com/zzy990/daily-stock-analysis/internal/search"
	"github.com/zzy990/daily-stock-analysis/internal/store"
)

func main() {
	cfg, err := config.Load("configs/app.yaml")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	st, err := store.Open(cfg.Store.Sqlite.Path)
	if err != nil {
		zlog.Fatal("store error", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			zlog.Warn("store close error", zap.Error(err))
		}
	}()

	orch, err := buildAcquisition(cfg, zlog)
	if err != nil {
		zlog.Fatal("acquisition setup error", zap.Error(err))
	}

	agent := analyzer.New(analyzer.Config{
		Enabled:       cfg.Analyzer.Enabled,
		Model:         cfg.Analyzer.Model,
		FallbackModel: cfg.Analyzer.FallbackModel,
		APIKey:        cfg.Analyzer.APIKey,
		BaseURL:       cfg.Analyzer.BaseURL,
		ByAzure:       cfg.Analyzer.ByAzure,
		APIVersion:    cfg.Analyzer.APIVersion,
		Temperature:   cfg.Analyzer.Temperature,
		TimeoutMs:     cfg.Analyzer.TimeoutMs,
	}, zlog)

	var notifier *notify.Service
	dt := dingtalk.NewClient(
		cfg.Push.Dingtalk.Webhook,
		cfg.Push.Dingtalk.Secret,
		time.Duration(cfg.Push.Dingtalk.TimeoutMs)*time.Millisecond,
	)
	if dt.Configured() {
		notifier = notify.NewService(dt, notify.Config{
			MaxBytes:  cfg.Push.Dingtalk.MaxBytes,
			PerMinute: cfg.Push.Dingtalk.PerMinute,
		}, zlog)
	}

	svc := report.NewService(orch, agent, st, notifier,
		time.Duration(cfg.Acquire.BatchTimeoutSec)*time.Second, zlog)

	if cfg.Watch.ScheduleTime != "" && len(cfg.Watch.Symbols) > 0 {
		go scheduleLoop(svc, cfg.Watch.Symbols, cfg.Watch.ScheduleTime, zlog)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	api.RegisterRoutes(h, svc, orch, st, cfg.Watch.Symbols, zlog)

	zlog.Info("server starting", zap.String("addr", addr), zap.Strings("watchlist", cfg.Watch.Symbols))
	if err := h.Run(); err != nil {
		zlog.Fatal("server run error", zap.Error(err))
	}
}

// buildAcquisition turns the static configuration into the provider chains,
// breaker and rotator. Any unknown provider name or empty chain is fatal
// here: the process must not start if a kind cannot be served.
func buildAcquisition(cfg *config.Config, zlog *zap.Logger) (*acquire.Orchestrator, error) {
	timeout := time.Duration(cfg.Acquire.ProviderTimeoutMs) * time.Millisecond
	registry := map[string]market.Provider{}
	for _, p := range []market.Provider{
		market.NewTencentProvider(timeout),
		market.NewSinaProvider(timeout),
		market.NewEastmoneyProvider(timeout),
		market.NewTushareProvider(timeout),
		search.NewBochaProvider(timeout),
		search.NewTavilyProvider(timeout),
		search.NewSerpAPIProvider(timeout),
	} {
		registry[p.Name()] = p
	}

	chains := make(map[market.DataKind][]market.Provider, len(cfg.Acquire.Chains))
	for rawKind, names := range cfg.Acquire.Chains {
		kind := market.DataKind(rawKind)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown data kind in chains: %q", rawKind)
		}
		for _, name := range names {
			p, ok := registry[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q in chain for %s", name, kind)
			}
			chains[kind] = append(chains[kind], p)
		}
	}

	breaker := acquire.NewBreaker(acquire.BreakerConfig{
		FailureThreshold: cfg.Acquire.Breaker.FailureThreshold,
		Cooldown:         time.Duration(cfg.Acquire.Breaker.CooldownSec) * time.Second,
		MaxCooldown:      time.Duration(cfg.Acquire.Breaker.MaxCooldownSec) * time.Second,
	})
	rotator := acquire.NewRotator(cfg.Acquire.Credentials,
		time.Duration(cfg.Acquire.CredCooldownSec)*time.Second)

	router, err := acquire.NewRouter(acquire.RouterConfig{
		Chains:         chains,
		BackfillWindow: cfg.Acquire.BackfillWindow,
		BarCount:       cfg.Acquire.BarCount,
	}, breaker, rotator,
		time.Duration(cfg.Acquire.FamilyIntervalMs)*time.Millisecond,
		acquire.LogListener(zlog))
	if err != nil {
		return nil, err
	}

	return acquire.NewOrchestrator(router, cfg.Acquire.Concurrency, zlog), nil
}

// scheduleLoop fires the daily run at the configured wall-clock time in
// exchange-local time.
func scheduleLoop(svc *report.Service, symbols []string, at string, zlog *zap.Logger) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	target, err := time.ParseInLocation("15:04", at, loc)
	if err != nil {
		zlog.Error("invalid schedule_time, daily run disabled", zap.String("schedule_time", at))
		return
	}

	for {
		now := time.Now().In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), target.Hour(), target.Minute(), 0, 0, loc)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		zlog.Info("next scheduled run", zap.Time("at", next))
		time.Sleep(time.Until(next))

		if _, err := svc.Run(context.Background(), symbols); err != nil {
			zlog.Warn("scheduled run failed", zap.Error(err))
		}
	}
}
