package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

// SerpAPIProvider serves news search via serpapi.com's Baidu engine. Last in
// the default chain: reliable but the free quota is tiny.
type SerpAPIProvider struct {
	baseURL string
	client  *http.Client
}

type serpapiResp struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic_results"`
}

func NewSerpAPIProvider(timeout time.Duration) *SerpAPIProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SerpAPIProvider{
		baseURL: "https://serpapi.com/search.json",
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *SerpAPIProvider) Name() string   { return "serpapi" }
func (p *SerpAPIProvider) Family() string { return SerpAPIFamily }

func (p *SerpAPIProvider) Supports(kind market.DataKind) bool {
	return kind == market.KindSearchResult
}

func (p *SerpAPIProvider) Fetch(ctx context.Context, req market.Request) (*market.Record, error) {
	if req.Kind != market.KindSearchResult {
		return nil, market.Transient(p.Name(), fmt.Errorf("unsupported data kind: %s", req.Kind))
	}
	if req.Credential == "" {
		return nil, market.AuthFailed(p.Name(), fmt.Errorf("missing serpapi key"))
	}

	u, _ := url.Parse(p.baseURL)
	q := u.Query()
	q.Set("engine", "baidu")
	q.Set("q", searchQuery(req))
	q.Set("api_key", req.Credential)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("build request: %w", err))
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("request serpapi: %w", err))
	}
	defer resp.Body.Close()
	if pe := classifySearchStatus(p.Name(), resp); pe != nil {
		return nil, pe
	}

	var payload serpapiResp
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("decode serpapi: %w", err))
	}
	if payload.Error != "" {
		return nil, market.Transient(p.Name(), fmt.Errorf("serpapi error: %s", payload.Error))
	}
	if len(payload.OrganicResults) == 0 {
		return nil, market.Transient(p.Name(), fmt.Errorf("empty serpapi result"))
	}

	hits := make([]market.SearchHit, 0, len(payload.OrganicResults))
	for _, r := range payload.OrganicResults {
		hits = append(hits, market.SearchHit{
			Title:       r.Title,
			URL:         r.Link,
			Snippet:     r.Snippet,
			PublishedAt: r.Date,
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

// searchQuery defaults to "<code> 股票 最新消息" when the request carries no
// explicit query, mirroring what the analysis stage asks for.
func searchQuery(req market.Request) string {
	if req.Query != "" {
		return req.Query
	}
	return req.Instrument.Code + " 股票 最新消息"
}

func classifySearchStatus(provider string, resp *http.Response) *market.ProviderError {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return market.ClassifyStatus(provider, resp)
}
