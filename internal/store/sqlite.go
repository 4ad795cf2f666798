package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// AnalysisRecord is one persisted per-stock verdict, one row per stock per
// trading day.
type AnalysisRecord struct {
	ID              int64  `json:"id"`
	Date            string `json:"date"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	SentimentScore  int    `json:"sentiment_score"`
	TrendPrediction string `json:"trend_prediction"`
	OperationAdvice string `json:"operation_advice"`
	DecisionType    string `json:"decision_type"`
	ConfidenceLevel string `json:"confidence_level"`
	Summary         string `json:"summary"`
	RiskWarning     string `json:"risk_warning"`
	ContentJSON     string `json:"content_json,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// QuoteSnapshot is the canonical quote audit row. Nullable columns reflect
// fields the acquisition layer reported as absent.
type QuoteSnapshot struct {
	TS          int64    `json:"ts"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Provider    string   `json:"provider"`
	Price       *float64 `json:"price"`
	ChangePct   *float64 `json:"change_pct"`
	Volume      *float64 `json:"volume"`
	Turnover    *float64 `json:"turnover"`
	VolumeRatio *float64 `json:"volume_ratio"`
	CreatedAt   string   `json:"created_at"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/app.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			code TEXT NOT NULL,
			name TEXT,
			sentiment_score INTEGER,
			trend_prediction TEXT,
			operation_advice TEXT,
			decision_type TEXT,
			confidence_level TEXT,
			summary TEXT,
			risk_warning TEXT,
			content_json TEXT,
			created_at TEXT,
			UNIQUE(date, code)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_code ON analysis_history(code);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_date ON analysis_history(date);`,
		`CREATE TABLE IF NOT EXISTS quote_snapshot (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			name TEXT,
			provider TEXT,
			price REAL,
			change_pct REAL,
			volume REAL,
			turnover REAL,
			volume_ratio REAL,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quote_snapshot_ts ON quote_snapshot(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_quote_snapshot_symbol ON quote_snapshot(symbol);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertAnalysis replaces the day's record for a stock so reruns update in
// place instead of duplicating.
func (s *Store) UpsertAnalysis(a AnalysisRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO analysis_history (date, code, name, sentiment_score, trend_prediction, operation_advice, decision_type, confidence_level, summary, risk_warning, content_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date, code) DO UPDATE SET
			name=excluded.name, sentiment_score=excluded.sentiment_score,
			trend_prediction=excluded.trend_prediction, operation_advice=excluded.operation_advice,
			decision_type=excluded.decision_type, confidence_level=excluded.confidence_level,
			summary=excluded.summary, risk_warning=excluded.risk_warning,
			content_json=excluded.content_json, created_at=excluded.created_at`,
		a.Date, a.Code, a.Name, a.SentimentScore, a.TrendPrediction, a.OperationAdvice,
		a.DecisionType, a.ConfidenceLevel, a.Summary, a.RiskWarning, a.ContentJSON, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

// AnalysisHistory returns the most recent records for one stock, newest
// first. Code empty means all stocks.
func (s *Store) AnalysisHistory(code string, limit int) ([]AnalysisRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 || limit > 200 {
		limit = 30
	}
	query := `SELECT id, date, code, name, sentiment_score, trend_prediction, operation_advice, decision_type, confidence_level, summary, risk_warning, created_at
		FROM analysis_history`
	args := []any{}
	if code != "" {
		query += " WHERE code = ?"
		args = append(args, code)
	}
	query += " ORDER BY date DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analysis history: %w", err)
	}
	defer rows.Close()

	var out []AnalysisRecord
	for rows.Next() {
		var a AnalysisRecord
		if err := rows.Scan(&a.ID, &a.Date, &a.Code, &a.Name, &a.SentimentScore, &a.TrendPrediction,
			&a.OperationAdvice, &a.DecisionType, &a.ConfidenceLevel, &a.Summary, &a.RiskWarning, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis history: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) InsertQuoteSnapshot(q QuoteSnapshot) error {
	if s == nil || s.db == nil {
		return nil
	}
	if q.CreatedAt == "" {
		q.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if q.TS == 0 {
		q.TS = time.Now().Unix()
	}
	_, err := s.db.Exec(
		`INSERT INTO quote_snapshot (ts, symbol, name, provider, price, change_pct, volume, turnover, volume_ratio, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.TS, q.Symbol, q.Name, q.Provider, q.Price, q.ChangePct, q.Volume, q.Turnover, q.VolumeRatio, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quote snapshot: %w", err)
	}
	return nil
}

// QuoteSnapshots returns recent snapshots for one symbol, newest first.
func (s *Store) QuoteSnapshots(symbol string, limit int) ([]QuoteSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT ts, symbol, name, provider, price, change_pct, volume, turnover, volume_ratio, created_at
		 FROM quote_snapshot WHERE symbol = ? ORDER BY ts DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query quote snapshots: %w", err)
	}
	defer rows.Close()

	var out []QuoteSnapshot
	for rows.Next() {
		var q QuoteSnapshot
		if err := rows.Scan(&q.TS, &q.Symbol, &q.Name, &q.Provider, &q.Price, &q.ChangePct,
			&q.Volume, &q.Turnover, &q.VolumeRatio, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote snapshot: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
