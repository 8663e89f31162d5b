package certificate

// Font measures text in points.
type Font interface {
	Width(text string, size float64) float64
}

// helveticaWidths are the Helvetica AFM advance widths, in thousandths of
// an em, for ASCII 32 through 126.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space to /
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, // 0-9
	278, 278, 584, 584, 584, 556, 1015, // : to @
	667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, // A-M
	722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, // N-Z
	278, 278, 278, 469, 556, 333, // [ to `
	556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, // a-m
	556, 556, 556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, // n-z
	334, 260, 334, 584, // { to ~
}

const helveticaFallback = 556

type helvetica struct{}

// Helvetica is the standard PDF base font used for certificate bodies.
var Helvetica Font = helvetica{}

func (helvetica) Width(text string, size float64) float64 {
	units := 0
	for _, r := range text {
		if r >= 32 && r <= 126 {
			units += helveticaWidths[r-32]
			continue
		}
		units += helveticaFallback
	}
	return float64(units) * size / 1000
}
