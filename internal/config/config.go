package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Watch    WatchConfig    `yaml:"watch"`
	Acquire  AcquireConfig  `yaml:"acquire"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Store    StoreConfig    `yaml:"store"`
	Push     PushConfig     `yaml:"push"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type WatchConfig struct {
	Symbols      []string `yaml:"symbols"`
	ScheduleTime string   `yaml:"schedule_time"` // "HH:MM", empty disables the daily run
}

type AcquireConfig struct {
	Concurrency       int                 `yaml:"concurrency"`
	FamilyIntervalMs  int                 `yaml:"family_interval_ms"`
	BatchTimeoutSec   int                 `yaml:"batch_timeout_sec"`
	ProviderTimeoutMs int                 `yaml:"provider_timeout_ms"`
	BackfillWindow    int                 `yaml:"backfill_window"`
	BarCount          int                 `yaml:"bar_count"`
	Breaker           BreakerConfig       `yaml:"breaker"`
	CredCooldownSec   int                 `yaml:"credential_cooldown_sec"`
	Chains            map[string][]string `yaml:"chains"`
	Credentials       map[string][]string `yaml:"credentials"`
}

type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSec      int `yaml:"cooldown_sec"`
	MaxCooldownSec   int `yaml:"max_cooldown_sec"`
}

type AnalyzerConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Model         string  `yaml:"model"`
	FallbackModel string  `yaml:"fallback_model"`
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	ByAzure       bool    `yaml:"by_azure"`
	APIVersion    string  `yaml:"api_version"`
	Temperature   float32 `yaml:"temperature"`
	TimeoutMs     int     `yaml:"timeout_ms"`
}

type StoreConfig struct {
	Sqlite SqliteConfig `yaml:"sqlite"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type PushConfig struct {
	Dingtalk DingtalkConfig `yaml:"dingtalk"`
}

type DingtalkConfig struct {
	Webhook   string `yaml:"webhook"`
	Secret    string `yaml:"secret"`
	TimeoutMs int    `yaml:"timeout_ms"`
	MaxBytes  int    `yaml:"max_bytes"`
	PerMinute int    `yaml:"per_minute"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Watch: WatchConfig{
			Symbols: []string{"sh600519", "sz000001"},
		},
		Acquire: AcquireConfig{
			Concurrency:       3,
			FamilyIntervalMs:  2000,
			BatchTimeoutSec:   180,
			ProviderTimeoutMs: 5000,
			BackfillWindow:    5,
			BarCount:          30,
			Breaker: BreakerConfig{
				FailureThreshold: 3,
				CooldownSec:      60,
				MaxCooldownSec:   600,
			},
			CredCooldownSec: 300,
			Chains: map[string][]string{
				"realtime_quote": {"tencent", "sina", "eastmoney"},
				"historical_bar": {"eastmoney", "tushare"},
				"fundamental":    {"eastmoney", "tushare"},
				"search_result":  {"bocha", "tavily", "serpapi"},
			},
			Credentials: map[string][]string{},
		},
		Analyzer: AnalyzerConfig{
			Enabled:     false,
			Model:       "gpt-4.1-mini",
			Temperature: 0.7,
			TimeoutMs:   60000,
		},
		Store: StoreConfig{
			Sqlite: SqliteConfig{Path: "data/app.db"},
		},
		Push: PushConfig{
			Dingtalk: DingtalkConfig{
				TimeoutMs: 5000,
				MaxBytes:  20000,
				PerMinute: 20,
			},
		},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("STOCK_LIST"); v != "" {
		cfg.Watch.Symbols = splitList(v)
	}
	if v := os.Getenv("TUSHARE_TOKEN"); v != "" {
		cfg.Acquire.Credentials["tushare"] = []string{v}
	}
	for env, family := range map[string]string{
		"BOCHA_API_KEYS":   "bocha",
		"TAVILY_API_KEYS":  "tavily",
		"SERPAPI_API_KEYS": "serpapi",
	} {
		if v := os.Getenv(env); v != "" {
			cfg.Acquire.Credentials[family] = splitList(v)
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Analyzer.APIKey == "" {
		cfg.Analyzer.APIKey = v
	}
	if v := os.Getenv("DINGTALK_WEBHOOK"); v != "" {
		cfg.Push.Dingtalk.Webhook = v
	}
	if v := os.Getenv("DINGTALK_SECRET"); v != "" {
		cfg.Push.Dingtalk.Secret = v
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
