// Package phone extracts the SIM phone number printed next to a QR code.
package phone

import (
	"context"
	"image"
	"regexp"

	"github.com/dmitrijs2005/esimrouter/internal/imaging"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
)

// Pattern matches a 10-digit local mobile number on a supported prefix.
var Pattern = regexp.MustCompile(`\b(?:055|051|053)\d{7}\b`)

// FixedThreshold is the first binarization level tried before Otsu.
const FixedThreshold = 140

// Recognizer returns the text found in a PNG-encoded image.
type Recognizer interface {
	Text(ctx context.Context, png []byte) (string, error)
}

type Extractor struct {
	rec Recognizer
	log logging.Logger
}

func NewExtractor(rec Recognizer, log logging.Logger) *Extractor {
	return &Extractor{rec: rec, log: log}
}

// Find returns the first phone number in text.
func Find(text string) (string, bool) {
	m := Pattern.FindString(text)
	return m, m != ""
}

// Extract runs recognition over g binarized at FixedThreshold and, when no
// number is found, over its Otsu refinement. Recognition failures are
// logged and reported as not found.
func (e *Extractor) Extract(ctx context.Context, g *image.Gray) (string, bool) {
	passes := []struct {
		name string
		img  func() *image.Gray
	}{
		{"fixed", func() *image.Gray { return imaging.Binarize(g, FixedThreshold) }},
		{"otsu", func() *image.Gray { return imaging.BinarizeOtsu(g, FixedThreshold) }},
	}

	for _, p := range passes {
		data, err := imaging.EncodePNG(p.img())
		if err != nil {
			e.log.Warn(ctx, "phone: encode failed", "pass", p.name, "error", err)
			return "", false
		}
		text, err := e.rec.Text(ctx, data)
		if err != nil {
			e.log.Warn(ctx, "phone: recognition failed", "pass", p.name, "error", err)
			continue
		}
		if n, ok := Find(text); ok {
			return n, true
		}
	}
	return "", false
}
