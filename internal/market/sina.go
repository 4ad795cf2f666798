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

// SinaProvider serves realtime quotes from hq.sinajs.cn. Stable but sparse:
// it carries no volume ratio or turnover rate, so records from it routinely
// go through backfill.
type SinaProvider struct {
	baseURL string
	client  *http.Client
}

func NewSinaProvider(timeout time.Duration) *SinaProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SinaProvider{
		baseURL: "https://hq.sinajs.cn/list=",
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *SinaProvider) Name() string   { return "sina" }
func (p *SinaProvider) Family() string { return "" }

func (p *SinaProvider) Supports(kind DataKind) bool { return kind == KindRealtimeQuote }

func (p *SinaProvider) Fetch(ctx context.Context, req Request) (*Record, error) {
	if err := validateRequest(req, KindRealtimeQuote); err != nil {
		return nil, Transient(p.Name(), err)
	}

	url := p.baseURL + req.Instrument.Key()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("build request: %w", err))
	}
	// sina rejects requests without a finance referer
	httpReq.Header.Set("Referer", "https://finance.sina.com.cn")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("request sina: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(p.Name(), resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("read sina: %w", err))
	}

	quote, err := parseSinaLine(strings.TrimSpace(string(data)))
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

// parseSinaLine decodes one var hq_str_shXXXXXX="name,open,preclose,price,
// high,low,...,volume,amount,..." line. Volume is already in shares and
// amount in yuan.
func parseSinaLine(line string) (*Quote, error) {
	_, payload, ok := strings.Cut(line, "=")
	if !ok {
		return nil, fmt.Errorf("malformed sina line")
	}
	payload = strings.Trim(strings.TrimSuffix(strings.TrimSpace(payload), ";"), "\"")
	fields := strings.Split(payload, ",")
	if len(fields) < 10 {
		return nil, fmt.Errorf("short sina payload: %d fields", len(fields))
	}

	price := parseSinaFloat(fields[3])
	if !price.Valid || price.Value <= 0 {
		return nil, fmt.Errorf("invalid price in sina payload")
	}
	prevClose := parseSinaFloat(fields[2])

	q := &Quote{
		Name:      fields[0],
		Price:     price,
		PrevClose: prevClose,
		Volume:    parseSinaFloat(fields[8]),
		Turnover:  parseSinaFloat(fields[9]),
	}
	if prevClose.Valid && prevClose.Value > 0 {
		q.ChangePct = F((price.Value - prevClose.Value) / prevClose.Value * 100)
	}
	return q, nil
}

func parseSinaFloat(s string) Field {
	s = strings.TrimSpace(s)
	if s == "" {
		return Field{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Field{}
	}
	return F(v)
}
