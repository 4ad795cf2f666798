package notify

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMarkdownSingleChunk(t *testing.T) {
	md := "## 每日分析\n\n- sh600519: 72分"
	chunks := SplitMarkdown(md, 20000)
	require.Len(t, chunks, 1)
	assert.Equal(t, md, chunks[0])
}

func TestSplitMarkdownPrefersLineBoundaries(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, strings.Repeat("a", 90))
	}
	md := strings.Join(lines, "\n")

	chunks := SplitMarkdown(md, 1000)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 1000, "chunk %d over budget", i)
		assert.NotContains(t, c, "\n\n\n")
		for _, line := range strings.Split(c, "\n") {
			assert.Len(t, line, 90, "lines must survive the split intact")
		}
	}
	assert.Equal(t, strings.ReplaceAll(md, "\n", ""), strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""), "no content lost")
}

func TestSplitMarkdownHardCutsOversizeLine(t *testing.T) {
	md := strings.Repeat("x", 2500)
	chunks := SplitMarkdown(md, 1000)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1000, len(chunks[0]))
	assert.Equal(t, 1000, len(chunks[1]))
	assert.Equal(t, 500, len(chunks[2]))
}

func TestSplitMarkdownRespectsRuneBoundaries(t *testing.T) {
	md := strings.Repeat("股", 1000) // 3 bytes each
	chunks := SplitMarkdown(md, 1000)

	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %d split inside a rune", i)
		assert.LessOrEqual(t, len(c), 1000)
	}
	assert.Equal(t, md, strings.Join(chunks, ""))
}
