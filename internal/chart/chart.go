// Package chart renders scanned patterns as static PNG images and interactive HTML pages.
package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"PatternSentinel/internal/model"
)

// ErrWindowOutOfRange is returned when a pattern's window does not fit the supplied bars.
var ErrWindowOutOfRange = errors.New("pattern window outside series")

// Renderer writes chart files for scored patterns into Dir.
type Renderer struct {
	Dir string
	log zerolog.Logger
}

// NewRenderer creates a renderer writing into dir.
func NewRenderer(dir string, log zerolog.Logger) *Renderer {
	return &Renderer{Dir: dir, log: log.With().Str("component", "chart").Logger()}
}

// Render writes both chart flavours. Each file that could be written is returned even
// when the other failed.
func (r *Renderer) Render(p model.ScoredPattern, bars []model.OHLCV) (pngPath, htmlPath string, err error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create chart dir: %w", err)
	}
	pngPath, pngErr := r.SavePNG(p, bars)
	htmlPath, htmlErr := r.SaveHTML(p, bars)
	if pngErr != nil || htmlErr != nil {
		r.log.Debug().Str("symbol", p.Symbol).Int("pattern", p.ID).
			AnErr("png", pngErr).AnErr("html", htmlErr).Msg("chart render incomplete")
	}
	return pngPath, htmlPath, errors.Join(pngErr, htmlErr)
}

func (r *Renderer) path(p model.ScoredPattern, ext string) string {
	return filepath.Join(r.Dir, fmt.Sprintf("%s_%d.%s", safeName(p.Symbol), p.ID, ext))
}

func title(p model.ScoredPattern) string {
	return fmt.Sprintf("Cup & Handle Pattern - %s (ID %d)", p.Symbol, p.ID)
}

// span returns the bars from cup start through the breakout bar.
func span(p model.ScoredPattern, bars []model.OHLCV) ([]model.OHLCV, error) {
	if !p.Window.InBounds(len(bars)) {
		return nil, fmt.Errorf("%w: %+v over %d bars", ErrWindowOutOfRange, p.Window, len(bars))
	}
	return bars[p.CupStart : p.Breakout+1], nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// Clean removes previously rendered .png and .html files from dir and reports how many
// were removed. A missing dir is not an error.
func Clean(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read chart dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".png" && ext != ".html") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
