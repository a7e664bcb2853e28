// Package imaging loads donated images into grayscale buffers and
// binarizes them for the QR and OCR passes.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrMalformed is returned when bytes cannot be decoded as an image.
var ErrMalformed = errors.New("malformed image")

// Load decodes data in any registered format.
func Load(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return img, nil
}

// LoadGray decodes data once into a grayscale buffer that every later
// check reads from.
func LoadGray(data []byte) (*image.Gray, error) {
	img, err := Load(data)
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}

// ToGray converts img to an *image.Gray with origin at (0, 0).
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(g, g.Bounds(), img, b.Min, xdraw.Src)
	return g
}

// Histogram counts pixels per gray level.
func Histogram(g *image.Gray) [256]int {
	var h [256]int
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride:]
		for x := 0; x < b.Dx(); x++ {
			h[row[x]]++
		}
	}
	return h
}

// Otsu returns the threshold that maximises between-class variance. ok is
// false when the image holds a single gray level and no split exists.
func Otsu(g *image.Gray) (threshold uint8, ok bool) {
	h := Histogram(g)

	total := 0
	var sum float64
	for i, n := range h {
		total += n
		sum += float64(i * n)
	}
	if total == 0 {
		return 0, false
	}

	var (
		sumB    float64
		wB      int
		best    float64
		found   bool
		bestIdx int
	)
	for t := 0; t < 256; t++ {
		wB += h[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * h[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			bestIdx = t
			found = true
		}
	}
	return uint8(bestIdx), found
}

// Binarize maps pixels above threshold to white and the rest to black.
func Binarize(g *image.Gray, threshold uint8) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+b.Dx()]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x, v := range src {
			if v > threshold {
				dst[x] = 0xff
			}
		}
	}
	return out
}

// BinarizeOtsu binarizes g at its Otsu threshold, falling back to fallback
// when the histogram has no split.
func BinarizeOtsu(g *image.Gray, fallback uint8) *image.Gray {
	t, ok := Otsu(g)
	if !ok {
		t = fallback
	}
	return Binarize(g, t)
}

// EncodePNG serialises img for collaborators that take encoded bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
