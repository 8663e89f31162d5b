package certificate

import (
	"strings"
)

// Line is one wrapped line of a paragraph. Gap is the distance between
// consecutive words; for justified lines it absorbs the slack.
type Line struct {
	Words     []string `json:"words"`
	Gap       float64  `json:"gap"`
	Width     float64  `json:"width"`
	Justified bool     `json:"justified"`
}

func (l Line) Text() string {
	return strings.Join(l.Words, " ")
}

// Paragraph is laid out for a fixed content width.
type Paragraph struct {
	Lines     []Line  `json:"lines"`
	Width     float64 `json:"width"`
	FontSize  float64 `json:"fontSize"`
	SpaceSize float64 `json:"spaceSize"`
}

func (p Paragraph) Text() string {
	parts := make([]string, len(p.Lines))
	for i, line := range p.Lines {
		parts[i] = line.Text()
	}
	return strings.Join(parts, " ")
}

// Justify wraps text greedily to width and spreads the slack of every line
// but the last evenly between its words. The last line and lines holding a
// single word keep the natural space and stay left aligned. A word wider
// than width gets a line of its own.
func Justify(text string, width float64, font Font, size float64) Paragraph {
	space := font.Width(" ", size)
	p := Paragraph{Width: width, FontSize: size, SpaceSize: space}

	words := strings.Fields(text)
	if len(words) == 0 {
		return p
	}

	var (
		current      []string
		currentWords float64
	)
	flush := func() {
		p.Lines = append(p.Lines, Line{Words: current, Gap: space, Width: currentWords + space*float64(len(current)-1)})
		current = nil
		currentWords = 0
	}
	for _, word := range words {
		w := font.Width(word, size)
		if len(current) > 0 && currentWords+w+space*float64(len(current)) > width {
			flush()
		}
		current = append(current, word)
		currentWords += w
	}
	flush()

	for i := 0; i < len(p.Lines)-1; i++ {
		line := &p.Lines[i]
		if len(line.Words) < 2 {
			continue
		}
		wordsWidth := 0.0
		for _, word := range line.Words {
			wordsWidth += font.Width(word, size)
		}
		line.Gap = (width - wordsWidth) / float64(len(line.Words)-1)
		line.Width = wordsWidth + line.Gap*float64(len(line.Words)-1)
		line.Justified = true
	}
	return p
}

// ExtraSpacing is how much wider than a normal space each gap of the line
// is; renderers that add spacing on top of the space glyph use it.
func (p Paragraph) ExtraSpacing(i int) float64 {
	if i < 0 || i >= len(p.Lines) || !p.Lines[i].Justified {
		return 0
	}
	return p.Lines[i].Gap - p.SpaceSize
}
