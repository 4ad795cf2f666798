package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"github.com/zzy990/daily-stock-analysis/internal/acquire"
	"github.com/zzy990/daily-stock-analysis/internal/market"
	"github.com/zzy990/daily-stock-analysis/internal/report"
	"github.com/zzy990/daily-stock-analysis/internal/store"
)

type AnalyzeRequest struct {
	Symbols []string `json:"symbols"`
}

type FetchRequest struct {
	Symbols []string `json:"symbols"`
	Kinds   []string `json:"kinds"`
}

// fetchOutcome is the wire shape of one (instrument, kind) outcome; failures
// surface as a reason string, never as a dropped entry.
type fetchOutcome struct {
	OK     bool           `json:"ok"`
	Record *market.Record `json:"record,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

func RegisterRoutes(h *server.Hertz, svc *report.Service, orch *acquire.Orchestrator, st *store.Store, defaultSymbols []string, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	// run the full pipeline for the given (or configured) watchlist
	h.POST("/api/v1/analyze", func(ctx context.Context, c *app.RequestContext) {
		var req AnalyzeRequest
		if len(c.Request.Body()) > 0 {
			if err := c.BindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json body"})
				return
			}
		}
		symbols := req.Symbols
		if len(symbols) == 0 {
			symbols = defaultSymbols
		}

		res, err := svc.Run(ctx, symbols)
		if err != nil {
			status := http.StatusBadGateway
			var cfgErr *acquire.ConfigurationError
			if errors.As(err, &cfgErr) || strings.Contains(err.Error(), "invalid symbol") {
				status = http.StatusBadRequest
			}
			log.Warn("analyze run failed", zap.Error(err))
			c.JSON(status, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "result": res})
	})

	// raw acquisition batch, bypassing analysis
	h.POST("/api/v1/fetch", func(ctx context.Context, c *app.RequestContext) {
		var req FetchRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json body"})
			return
		}
		symbols := req.Symbols
		if len(symbols) == 0 {
			symbols = defaultSymbols
		}
		kinds, err := parseKinds(req.Kinds)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}

		batch, err := svc.Fetch(ctx, symbols, kinds)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "result": toWire(batch)})
	})

	// circuit and credential state for operators
	h.GET("/api/v1/providers", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{
			"ok":          true,
			"circuits":    orch.Circuits(),
			"credentials": orch.Credentials(),
		})
	})

	h.GET("/api/v1/history", func(_ context.Context, c *app.RequestContext) {
		code := string(c.Query("code"))
		limit := parseLimit(string(c.Query("limit")))
		records, err := st.AnalysisHistory(code, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "records": records})
	})

	h.GET("/api/v1/snapshots", func(_ context.Context, c *app.RequestContext) {
		symbol := string(c.Query("symbol"))
		if symbol == "" {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "symbol is required"})
			return
		}
		limit := parseLimit(string(c.Query("limit")))
		snaps, err := st.QuoteSnapshots(strings.ToLower(symbol), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "snapshots": snaps})
	})
}

func toWire(batch acquire.BatchResult) map[string]map[string]fetchOutcome {
	out := make(map[string]map[string]fetchOutcome, len(batch))
	for key, kinds := range batch {
		entry := make(map[string]fetchOutcome, len(kinds))
		for kind, o := range kinds {
			entry[string(kind)] = fetchOutcome{
				OK:     o.OK(),
				Record: o.Record,
				Reason: o.FailureReason(),
			}
		}
		out[key] = entry
	}
	return out
}

func parseKinds(raw []string) ([]market.DataKind, error) {
	kinds := make([]market.DataKind, 0, len(raw))
	for _, r := range raw {
		k := market.DataKind(strings.TrimSpace(r))
		if !k.Valid() {
			return nil, errors.New("unknown data kind: " + r)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
