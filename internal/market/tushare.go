package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TushareFamily is the credential pool tushare adapters draw from.
const TushareFamily = "tushare"

// TushareProvider serves daily bars and valuation snapshots from the
// api.tushare.pro RPC endpoint. Requires a token per call; quota errors come
// back in-band with HTTP 200, so classification inspects the payload.
type TushareProvider struct {
	baseURL string
	client  *http.Client
}

type tushareReq struct {
	APIName string         `json:"api_name"`
	Token   string         `json:"token"`
	Params  map[string]any `json:"params"`
	Fields  string         `json:"fields"`
}

type tushareResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

func NewTushareProvider(timeout time.Duration) *TushareProvider {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &TushareProvider{
		baseURL: "https://api.tushare.pro",
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *TushareProvider) Name() string   { return "tushare" }
func (p *TushareProvider) Family() string { return TushareFamily }

func (p *TushareProvider) Supports(kind DataKind) bool {
	return kind == KindHistoricalBar || kind == KindFundamental
}

func (p *TushareProvider) Fetch(ctx context.Context, req Request) (*Record, error) {
	if !p.Supports(req.Kind) {
		return nil, Transient(p.Name(), fmt.Errorf("unsupported data kind: %s", req.Kind))
	}
	if req.Instrument.Code == "" {
		return nil, Transient(p.Name(), fmt.Errorf("instrument code is empty"))
	}
	if req.Credential == "" {
		return nil, AuthFailed(p.Name(), fmt.Errorf("missing tushare token"))
	}
	if req.Kind == KindFundamental {
		return p.fetchDailyBasic(ctx, req)
	}
	return p.fetchDaily(ctx, req)
}

func (p *TushareProvider) fetchDaily(ctx context.Context, req Request) (*Record, error) {
	count := req.BarCount
	if count <= 0 {
		count = 30
	}
	body := tushareReq{
		APIName: "daily",
		Token:   req.Credential,
		Params: map[string]any{
			"ts_code": tushareCode(req.Instrument),
		},
		Fields: "trade_date,open,close,high,low,vol,amount",
	}
	payload, err := p.call(ctx, body)
	if err != nil {
		return nil, err
	}

	idx, err := tushareFieldIndex(payload.Data.Fields, "trade_date", "open", "close", "high", "low", "vol", "amount")
	if err != nil {
		return nil, Transient(p.Name(), err)
	}
	items := payload.Data.Items
	if len(items) > count {
		items = items[:count]
	}
	// items arrive newest first; canonical order is oldest first
	bars := make([]Bar, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		row := items[i]
		bars = append(bars, Bar{
			Date:     tushareString(row, idx["trade_date"]),
			Open:     tushareFloat(row, idx["open"]),
			Close:    tushareFloat(row, idx["close"]),
			High:     tushareFloat(row, idx["high"]),
			Low:      tushareFloat(row, idx["low"]),
			Volume:   tushareFloat(row, idx["vol"]) * 100,     // lots -> shares
			Turnover: tushareFloat(row, idx["amount"]) * 1000, // qian yuan -> yuan
		})
	}
	if len(bars) == 0 {
		return nil, Transient(p.Name(), fmt.Errorf("empty daily data"))
	}
	return &Record{
		Kind:       KindHistoricalBar,
		Instrument: req.Instrument,
		Provider:   p.Name(),
		FetchedAt:  time.Now(),
		Bars:       bars,
	}, nil
}

func (p *TushareProvider) fetchDailyBasic(ctx context.Context, req Request) (*Record, error) {
	body := tushareReq{
		APIName: "daily_basic",
		Token:   req.Credential,
		Params: map[string]any{
			"ts_code": tushareCode(req.Instrument),
		},
		Fields: "pe,pb,total_mv,circ_mv",
	}
	payload, err := p.call(ctx, body)
	if err != nil {
		return nil, err
	}
	idx, err := tushareFieldIndex(payload.Data.Fields, "pe", "pb", "total_mv", "circ_mv")
	if err != nil {
		return nil, Transient(p.Name(), err)
	}
	if len(payload.Data.Items) == 0 {
		return nil, Transient(p.Name(), fmt.Errorf("empty daily_basic data"))
	}
	row := payload.Data.Items[0]
	return &Record{
		Kind:       KindFundamental,
		Instrument: req.Instrument,
		Provider:   p.Name(),
		FetchedAt:  time.Now(),
		Fundamental: &Fundamental{
			PERatio:     tushareOptFloat(row, idx["pe"]),
			PBRatio:     tushareOptFloat(row, idx["pb"]),
			TotalMktCap: scaleField(tushareOptFloat(row, idx["total_mv"]), 1e4), // wan yuan -> yuan
			FloatMktCap: scaleField(tushareOptFloat(row, idx["circ_mv"]), 1e4),
		},
	}, nil
}

func (p *TushareProvider) call(ctx context.Context, body tushareReq) (*tushareResp, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(raw))
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("request tushare: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(p.Name(), resp)
	}

	var payload tushareResp
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("decode tushare: %w", err))
	}
	if payload.Code != 0 {
		return nil, p.classifyAPIError(payload.Code, payload.Msg)
	}
	if payload.Data == nil {
		return nil, Transient(p.Name(), fmt.Errorf("missing data section"))
	}
	return &payload, nil
}

// classifyAPIError maps in-band tushare errors. Quota messages mention
// per-minute limits or 积分; token errors mention token.
func (p *TushareProvider) classifyAPIError(code int, msg string) *ProviderError {
	err := fmt.Errorf("tushare error %d: %s", code, msg)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "每分钟") || strings.Contains(msg, "频率") || strings.Contains(lower, "limit"):
		return RateLimited(p.Name(), time.Minute, err)
	case strings.Contains(lower, "token") || strings.Contains(msg, "积分"):
		return AuthFailed(p.Name(), err)
	default:
		return Transient(p.Name(), err)
	}
}

func tushareCode(inst Instrument) string {
	return inst.Code + "." + strings.ToUpper(inst.Market)
}

func tushareFieldIndex(fields []string, want ...string) (map[string]int, error) {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	for _, w := range want {
		if _, ok := idx[w]; !ok {
			return nil, fmt.Errorf("missing field %q in tushare response", w)
		}
	}
	return idx, nil
}

func tushareString(row []any, idx int) string {
	if idx >= len(row) {
		return ""
	}
	s, _ := row[idx].(string)
	return s
}

func tushareFloat(row []any, idx int) float64 {
	f := tushareOptFloat(row, idx)
	return f.Value
}

func tushareOptFloat(row []any, idx int) Field {
	if idx >= len(row) {
		return Field{}
	}
	v, ok := row[idx].(float64)
	if !ok {
		return Field{}
	}
	return F(v)
}
