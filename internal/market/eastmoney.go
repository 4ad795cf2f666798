package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// EastmoneyProvider serves quotes, daily kline bars and valuation snapshots
// from the push2 APIs. The fullest source in the chain, but also the one
// most prone to throttling, which is why it sits behind tencent and sina.
type EastmoneyProvider struct {
	quoteURL string
	klineURL string
	client   *http.Client
}

type eastmoneyQuoteResp struct {
	Data *eastmoneyQuoteData `json:"data"`
}

type eastmoneyQuoteData struct {
	Name         string   `json:"f58"`
	Code         string   `json:"f57"`
	Price        *float64 `json:"f43"`
	PrevClose    *float64 `json:"f60"`
	ChangePct    *float64 `json:"f170"`
	Volume       *float64 `json:"f47"`
	Turnover     *float64 `json:"f48"`
	VolumeRatio  *float64 `json:"f50"`
	TurnoverRate *float64 `json:"f168"`
	PERatio      *float64 `json:"f162"`
	PBRatio      *float64 `json:"f167"`
	TotalMktCap  *float64 `json:"f116"`
	FloatMktCap  *float64 `json:"f117"`
}

type eastmoneyKlineResp struct {
	Data *struct {
		Klines []string `json:"klines"`
	} `json:"data"`
}

func NewEastmoneyProvider(timeout time.Duration) *EastmoneyProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EastmoneyProvider{
		quoteURL: "https://push2.eastmoney.com/api/qt/stock/get",
		klineURL: "https://push2his.eastmoney.com/api/qt/stock/kline/get",
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *EastmoneyProvider) Name() string   { return "eastmoney" }
func (p *EastmoneyProvider) Family() string { return "" }

func (p *EastmoneyProvider) Supports(kind DataKind) bool {
	switch kind {
	case KindRealtimeQuote, KindHistoricalBar, KindFundamental:
		return true
	}
	return false
}

func (p *EastmoneyProvider) Fetch(ctx context.Context, req Request) (*Record, error) {
	if !p.Supports(req.Kind) {
		return nil, Transient(p.Name(), fmt.Errorf("unsupported data kind: %s", req.Kind))
	}
	if req.Instrument.Code == "" {
		return nil, Transient(p.Name(), fmt.Errorf("instrument code is empty"))
	}
	if req.Kind == KindHistoricalBar {
		return p.fetchBars(ctx, req)
	}
	return p.fetchQuote(ctx, req)
}

func (p *EastmoneyProvider) fetchQuote(ctx context.Context, req Request) (*Record, error) {
	u, _ := url.Parse(p.quoteURL)
	q := u.Query()
	q.Set("secid", eastmoneySecID(req.Instrument))
	q.Set("fields", "f57,f58,f43,f60,f170,f47,f48,f50,f168,f162,f167,f116,f117")
	q.Set("ut", "fa5fd1943c7b386f172d6893dbfba10b")
	q.Set("fltt", "2")
	q.Set("invt", "2")
	u.RawQuery = q.Encode()

	var payload eastmoneyQuoteResp
	if err := p.getJSON(ctx, u.String(), &payload); err != nil {
		return nil, err
	}
	d := payload.Data
	if d == nil {
		return nil, Transient(p.Name(), fmt.Errorf("empty response data"))
	}

	rec := &Record{
		Kind:       req.Kind,
		Instrument: req.Instrument,
		Provider:   p.Name(),
		FetchedAt:  time.Now(),
	}
	if req.Kind == KindFundamental {
		rec.Fundamental = &Fundamental{
			PERatio:     ptrField(d.PERatio),
			PBRatio:     ptrField(d.PBRatio),
			TotalMktCap: ptrField(d.TotalMktCap),
			FloatMktCap: ptrField(d.FloatMktCap),
		}
		return rec, nil
	}

	price := ptrField(d.Price)
	if !price.Valid || price.Value <= 0 {
		return nil, Transient(p.Name(), fmt.Errorf("invalid price for %s", req.Instrument))
	}
	rec.Quote = &Quote{
		Name:         d.Name,
		Price:        price,
		PrevClose:    ptrField(d.PrevClose),
		ChangePct:    ptrField(d.ChangePct),
		Volume:       scaleField(ptrField(d.Volume), 100), // lots -> shares
		Turnover:     ptrField(d.Turnover),
		VolumeRatio:  ptrField(d.VolumeRatio),
		TurnoverRate: ptrField(d.TurnoverRate),
	}
	return rec, nil
}

func (p *EastmoneyProvider) fetchBars(ctx context.Context, req Request) (*Record, error) {
	count := req.BarCount
	if count <= 0 {
		count = 30
	}
	u, _ := url.Parse(p.klineURL)
	q := u.Query()
	q.Set("secid", eastmoneySecID(req.Instrument))
	q.Set("klt", "101") // daily
	q.Set("fqt", "1")   // forward adjusted
	q.Set("lmt", strconv.Itoa(count))
	q.Set("end", "20500101")
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57")
	u.RawQuery = q.Encode()

	var payload eastmoneyKlineResp
	if err := p.getJSON(ctx, u.String(), &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil || len(payload.Data.Klines) == 0 {
		return nil, Transient(p.Name(), fmt.Errorf("empty kline data"))
	}

	bars := make([]Bar, 0, len(payload.Data.Klines))
	for _, line := range payload.Data.Klines {
		bar, err := parseEastmoneyKline(line)
		if err != nil {
			return nil, Transient(p.Name(), err)
		}
		bars = append(bars, bar)
	}
	return &Record{
		Kind:       KindHistoricalBar,
		Instrument: req.Instrument,
		Provider:   p.Name(),
		FetchedAt:  time.Now(),
		Bars:       bars,
	}, nil
}

func (p *EastmoneyProvider) getJSON(ctx context.Context, rawURL string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Transient(p.Name(), fmt.Errorf("build request: %w", err))
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Transient(p.Name(), fmt.Errorf("request eastmoney: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ClassifyStatus(p.Name(), resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Transient(p.Name(), fmt.Errorf("decode eastmoney: %w", err))
	}
	return nil
}

// parseEastmoneyKline decodes "date,open,close,high,low,volume,amount".
func parseEastmoneyKline(line string) (Bar, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 7 {
		return Bar{}, fmt.Errorf("short kline entry: %q", line)
	}
	vals := make([]float64, 6)
	for i := 1; i <= 6; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad kline field %q: %w", fields[i], err)
		}
		vals[i-1] = v
	}
	return Bar{
		Date:     fields[0],
		Open:     vals[0],
		Close:    vals[1],
		High:     vals[2],
		Low:      vals[3],
		Volume:   vals[4] * 100, // lots -> shares
		Turnover: vals[5],
	}, nil
}

// eastmoneySecID maps the canonical market to the push2 market prefix.
// Beijing-listed codes are addressed through the SZ gateway (market 0).
func eastmoneySecID(inst Instrument) string {
	if inst.Market == "sh" {
		return "1." + inst.Code
	}
	return "0." + inst.Code
}

func ptrField(v *float64) Field {
	if v == nil {
		return Field{}
	}
	return F(*v)
}
