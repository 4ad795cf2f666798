package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

// Credential families for the search providers. Each family is a pool of
// interchangeable keys managed by the rotator.
const (
	BochaFamily   = "bocha"
	TavilyFamily  = "tavily"
	SerpAPIFamily = "serpapi"
)

// BochaProvider serves news search from the Bocha web-search API. Best
// Chinese-language coverage of the three, so it leads the search chain.
type BochaProvider struct {
	baseURL string
	client  *http.Client
}

type bochaReq struct {
	Query     string `json:"query"`
	Freshness string `json:"freshness,omitempty"`
	Summary   bool   `json:"summary"`
	Count     int    `json:"count"`
}

type bochaResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		WebPages *struct {
			Value []struct {
				Name          string `json:"name"`
				URL           string `json:"url"`
				Snippet       string `json:"snippet"`
				Summary       string `json:"summary"`
				SiteName      string `json:"siteName"`
				DatePublished string `json:"datePublished"`
			} `json:"value"`
		} `json:"webPages"`
	} `json:"data"`
}

func NewBochaProvider(timeout time.Duration) *BochaProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BochaProvider{
		baseURL: "https://api.bochaai.com/v1/web-search",
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *BochaProvider) Name() string   { return "bocha" }
func (p *BochaProvider) Family() string { return BochaFamily }

func (p *BochaProvider) Supports(kind market.DataKind) bool {
	return kind == market.KindSearchResult
}

func (p *BochaProvider) Fetch(ctx context.Context, req market.Request) (*market.Record, error) {
	if req.Kind != market.KindSearchResult {
		return nil, market.Transient(p.Name(), fmt.Errorf("unsupported data kind: %s", req.Kind))
	}
	if req.Credential == "" {
		return nil, market.AuthFailed(p.Name(), fmt.Errorf("missing bocha api key"))
	}

	body, err := json.Marshal(bochaReq{
		Query:     searchQuery(req),
		Freshness: "oneWeek",
		Summary:   true,
		Count:     10,
	})
	if err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("request bocha: %w", err))
	}
	defer resp.Body.Close()
	if pe := classifySearchStatus(p.Name(), resp); pe != nil {
		return nil, pe
	}

	var payload bochaResp
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("decode bocha: %w", err))
	}
	// bocha tunnels errors through HTTP 200
	switch payload.Code {
	case 200:
	case 401, 403:
		return nil, market.AuthFailed(p.Name(), fmt.Errorf("bocha error %d: %s", payload.Code, payload.Msg))
	case 429:
		return nil, market.RateLimited(p.Name(), 0, fmt.Errorf("bocha error %d: %s", payload.Code, payload.Msg))
	default:
		return nil, market.Transient(p.Name(), fmt.Errorf("bocha error %d: %s", payload.Code, payload.Msg))
	}
	if payload.Data == nil || payload.Data.WebPages == nil || len(payload.Data.WebPages.Value) == 0 {
		return nil, market.Transient(p.Name(), fmt.Errorf("empty bocha result"))
	}

	hits := make([]market.SearchHit, 0, len(payload.Data.WebPages.Value))
	for _, v := range payload.Data.WebPages.Value {
		snippet := v.Summary
		if snippet == "" {
			snippet = v.Snippet
		}
		hits = append(hits, market.SearchHit{
			Title:       v.Name,
			URL:         v.URL,
			Snippet:     snippet,
			PublishedAt: v.DatePublished,
			Source:      v.SiteName,
		})
	}
	return &market.Record{
		Kind:       market.KindSearchResult,
		Instrument: req.Instrument,
		Provider:   p.Name(),
		FetchedAt:  time.Now(),
		Search:     hits,
	}, nil
}
