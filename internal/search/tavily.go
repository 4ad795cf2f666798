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

// TavilyProvider serves news search from api.tavily.com.
type TavilyProvider struct {
	baseURL string
	client  *http.Client
}

type tavilyReq struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	Topic       string `json:"topic"`
	Days        int    `json:"days"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResp struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"published_date"`
	} `json:"results"`
}

func NewTavilyProvider(timeout time.Duration) *TavilyProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TavilyProvider{
		baseURL: "https://api.tavily.com/search",
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *TavilyProvider) Name() string   { return "tavily" }
func (p *TavilyProvider) Family() string { return TavilyFamily }

func (p *TavilyProvider) Supports(kind market.DataKind) bool {
	return kind == market.KindSearchResult
}

func (p *TavilyProvider) Fetch(ctx context.Context, req market.Request) (*market.Record, error) {
	if req.Kind != market.KindSearchResult {
		return nil, market.Transient(p.Name(), fmt.Errorf("unsupported data kind: %s", req.Kind))
	}
	if req.Credential == "" {
		return nil, market.AuthFailed(p.Name(), fmt.Errorf("missing tavily api key"))
	}

	body, err := json.Marshal(tavilyReq{
		APIKey:      req.Credential,
		Query:       searchQuery(req),
		SearchDepth: "basic",
		Topic:       "news",
		Days:        7,
		MaxResults:  10,
	})
	if err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("request tavily: %w", err))
	}
	defer resp.Body.Close()
	if pe := classifySearchStatus(p.Name(), resp); pe != nil {
		return nil, pe
	}

	var payload tavilyResp
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, market.Transient(p.Name(), fmt.Errorf("decode tavily: %w", err))
	}
	if len(payload.Results) == 0 {
		return nil, market.Transient(p.Name(), fmt.Errorf("empty tavily result"))
	}

	hits := make([]market.SearchHit, 0, len(payload.Results))
	for _, r := range payload.Results {
		hits = append(hits, market.SearchHit{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Content,
			PublishedAt: r.PublishedDate,
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
