package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zzy990/daily-stock-analysis/internal/push/dingtalk"
)

type Config struct {
	// MaxBytes is the per-message byte budget; longer reports are split on
	// line boundaries and sent as numbered parts.
	MaxBytes  int
	PerMinute int
}

// Service pushes analysis reports to DingTalk, chunking oversized markdown
// and throttling sends so a long watchlist report cannot trip the webhook's
// own rate limit.
type Service struct {
	client  *dingtalk.Client
	limiter *TokenBucket
	max     int
	log     *zap.Logger
}

func NewService(client *dingtalk.Client, cfg Config, log *zap.Logger) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		client:  client,
		limiter: NewTokenBucket(cfg.PerMinute, 0),
		max:     cfg.MaxBytes,
		log:     log,
	}
}

// PushReport sends one markdown report, split into parts when it exceeds
// the byte budget. A failed part aborts the remainder; DingTalk keeps
// ordering only within one webhook anyway.
func (s *Service) PushReport(ctx context.Context, title, markdown string) error {
	if s.client == nil {
		return fmt.Errorf("dingtalk client not configured")
	}
	chunks := SplitMarkdown(markdown, s.max)
	for i, chunk := range chunks {
		partTitle := title
		if len(chunks) > 1 {
			partTitle = fmt.Sprintf("%s (%d/%d)", title, i+1, len(chunks))
		}
		if !s.limiter.WaitForToken(30 * time.Second) {
			return fmt.Errorf("push rate limit exceeded, %d/%d parts sent", i, len(chunks))
		}
		resp, err := s.client.SendMarkdown(ctx, partTitle, chunk)
		if err != nil {
			return fmt.Errorf("send part %d/%d: %w", i+1, len(chunks), err)
		}
		if resp.ErrCode != 0 {
			return fmt.Errorf("dingtalk error %d: %s", resp.ErrCode, resp.ErrMsg)
		}
		s.log.Info("report part sent", zap.String("title", partTitle), zap.Int("bytes", len(chunk)))
	}
	return nil
}

// SplitMarkdown cuts markdown into chunks of at most maxBytes, preferring
// line boundaries. A single line longer than the budget is hard-cut at a
// rune boundary.
func SplitMarkdown(markdown string, maxBytes int) []string {
	if len(markdown) <= maxBytes {
		return []string{markdown}
	}
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.Split(markdown, "\n") {
		for len(line) > maxBytes {
			cut := maxBytes
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxBytes
			}
			if cur.Len() > 0 {
				chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
				cur.Reset()
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line)+1 > maxBytes && cur.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	if rest := strings.TrimRight(cur.String(), "\n"); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
