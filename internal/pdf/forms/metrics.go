package forms

import (
	"sync"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Metrics measures single-line text. Widths come from the Go Regular
// font, a Helvetica-like sans serif, which is close enough to size text
// for a standard Type1 font.
type Metrics struct {
	font       *sfnt.Font
	unitsPerEm int
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared Go Regular metrics. A nil *Metrics is
// returned only if the embedded font fails to parse; Width then falls
// back to half an em per character.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(goregular.TTF)
		if err == nil {
			defaultMetrics = m
		}
	})
	return defaultMetrics
}

// NewMetrics parses a TrueType or OpenType font
func NewMetrics(data []byte) (*Metrics, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, err
	}
	return &Metrics{font: f, unitsPerEm: int(f.UnitsPerEm())}, nil
}

// Width returns the advance width of s at size points.
func (m *Metrics) Width(s string, size float64) float64 {
	if m == nil || m.font == nil || m.unitsPerEm == 0 {
		return float64(len([]rune(s))) * size * 0.5
	}

	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(m.unitsPerEm << 6)

	var units float64
	for _, r := range s {
		idx, err := m.font.GlyphIndex(buf, r)
		if err != nil || idx == 0 {
			units += float64(m.unitsPerEm) / 2
			continue
		}
		adv, err := m.font.GlyphAdvance(buf, idx, ppem, xfont.HintingNone)
		if err != nil {
			units += float64(m.unitsPerEm) / 2
			continue
		}
		units += float64(adv) / 64
	}
	return units * size / float64(m.unitsPerEm)
}

// FitSize returns the largest size, at most limit, at which s fits in a box
// of width w and height h with padding on each side.
func (m *Metrics) FitSize(s string, w, h, padding, limit float64) float64 {
	size := (h - 2*padding) / 1.15
	if size > limit {
		size = limit
	}
	if width := m.Width(s, size); width > w-2*padding && width > 0 {
		size *= (w - 2*padding) / width
	}
	if size < minAutoSize {
		size = minAutoSize
	}
	return size
}

const (
	minAutoSize = 4.0
	maxAutoSize = 12.0
)
