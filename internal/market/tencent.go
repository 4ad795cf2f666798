package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TencentProvider serves realtime quotes from qt.gtimg.cn. It is the only
// quote source that reports volume ratio and turnover rate directly, which
// is why it sits first in the default chain.
type TencentProvider struct {
	baseURL string
	client  *http.Client
}

func NewTencentProvider(timeout time.Duration) *TencentProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TencentProvider{
		baseURL: "https://qt.gtimg.cn/q=",
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *TencentProvider) Name() string   { return "tencent" }
func (p *TencentProvider) Family() string { return "" }

func (p *TencentProvider) Supports(kind DataKind) bool { return kind == KindRealtimeQuote }

func (p *TencentProvider) Fetch(ctx context.Context, req Request) (*Record, error) {
	if err := validateRequest(req, KindRealtimeQuote); err != nil {
		return nil, Transient(p.Name(), err)
	}

	url := p.baseURL + req.Instrument.Key()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Referer", "https://gu.qq.com")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("request tencent: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(p.Name(), resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("read tencent: %w", err))
	}

	quote, err := parseTencentLine(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, Transient(p.Name(), err)
	}
	return &Record{
		Kind:       KindRealtimeQuote,
		Instrument: req.Instrument,
		Provider:   p.Name(),
		FetchedAt:  time.Now(),
		Quote:      quote,
	}, nil
}

// parseTencentLine decodes one v_shXXXXXX="..." line. Fields are tilde
// separated; the indices below are stable across markets:
//
//	1 name, 3 price, 4 prev close, 32 change pct, 36 volume (lots),
//	37 turnover (wan yuan), 38 turnover rate, 49 volume ratio
func parseTencentLine(line string) (*Quote, error) {
	_, payload, ok := strings.Cut(line, "=")
	if !ok {
		return nil, fmt.Errorf("malformed tencent line")
	}
	payload = strings.Trim(strings.TrimSuffix(strings.TrimSpace(payload), ";"), "\"")
	fields := strings.Split(payload, "~")
	if len(fields) < 39 {
		return nil, fmt.Errorf("short tencent payload: %d fields", len(fields))
	}

	price := tencentField(fields, 3)
	if !price.Valid || price.Value <= 0 {
		return nil, fmt.Errorf("invalid price in tencent payload")
	}

	q := &Quote{
		Name:         fields[1],
		Price:        price,
		PrevClose:    tencentField(fields, 4),
		ChangePct:    tencentField(fields, 32),
		Volume:       scaleField(tencentField(fields, 36), 100), // lots -> shares
		Turnover:     scaleField(tencentField(fields, 37), 1e4), // wan yuan -> yuan
		TurnoverRate: tencentField(fields, 38),
		VolumeRatio:  tencentField(fields, 49),
	}
	return q, nil
}

func tencentField(fields []string, idx int) Field {
	if idx >= len(fields) {
		return Field{}
	}
	s := strings.TrimSpace(fields[idx])
	if s == "" || s == "-" {
		return Field{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Field{}
	}
	return F(v)
}

func scaleField(f Field, factor float64) Field {
	if !f.Valid {
		return f
	}
	return F(f.Value * factor)
}
