package chart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/fixture"
	"PatternSentinel/internal/model"
)

func standardPattern(id int) model.ScoredPattern {
	return model.ScoredPattern{
		ID: id,
		PatternRecord: model.PatternRecord{
			Symbol: "BTC/USDT",
			Window: model.Window{CupStart: 0, CupEnd: 30, HandleStart: 31, HandleEnd: 41, Breakout: 42},
			Valid:  true,
		},
	}
}

func TestRender(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "patterns")
	r := NewRenderer(dir, zerolog.Nop())
	bars := fixture.Standard(2)

	pngPath, htmlPath, err := r.Render(standardPattern(3), bars)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "BTC_USDT_3.png"), pngPath)
	assert.Equal(t, filepath.Join(dir, "BTC_USDT_3.html"), htmlPath)

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Cup &amp; Handle Pattern - BTC/USDT (ID 3)")
	assert.Contains(t, string(html), "candlestick")
}

func TestRender_WindowOutOfRange(t *testing.T) {
	r := NewRenderer(t.TempDir(), zerolog.Nop())
	pngPath, htmlPath, err := r.Render(standardPattern(0), fixture.Standard(2)[:40])
	assert.ErrorIs(t, err, ErrWindowOutOfRange)
	assert.Empty(t, pngPath)
	assert.Empty(t, htmlPath)
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a_0.png", "a_0.html", "B_1.PNG", "report.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "keep.png"), 0o755))

	n, err := Clean(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"keep.png", "report.csv"}, names)

	n, err = Clean(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "BTC_USDT", safeName("BTC/USDT"))
	assert.Equal(t, "_GSPC", safeName("^GSPC"))
	assert.Equal(t, "ETH-USD", safeName("ETH-USD"))
}
