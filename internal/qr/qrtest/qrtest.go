// Package qrtest renders QR code fixtures for tests.
package qrtest

import (
	"image"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/dmitrijs2005/esimrouter/internal/imaging"
)

// Image renders text as a size x size QR code.
func Image(t testing.TB, text string, size int) image.Image {
	t.Helper()
	m, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		t.Fatalf("encode qr %q: %v", text, err)
	}
	return m
}

// PNG renders text as a 256px QR code and returns PNG bytes.
func PNG(t testing.TB, text string) []byte {
	t.Helper()
	data, err := imaging.EncodePNG(imaging.ToGray(Image(t, text, 256)))
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return data
}

// Blank returns PNG bytes of a plain white image.
func Blank(t testing.TB) []byte {
	t.Helper()
	g := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range g.Pix {
		g.Pix[i] = 0xff
	}
	data, err := imaging.EncodePNG(g)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return data
}

// Faded renders text as a 256px QR code whose dark and light modules are
// drawn with the given gray levels.
func Faded(t testing.TB, text string, dark, light uint8) *image.Gray {
	t.Helper()
	src := imaging.ToGray(Image(t, text, 256))
	g := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		if v < 128 {
			g.Pix[i] = dark
		} else {
			g.Pix[i] = light
		}
	}
	return g
}
