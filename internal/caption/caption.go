// Package caption frames an issued eSIM QR image with the network, phone
// number and package details printed around it.
package caption

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/dmitrijs2005/esimrouter/internal/imaging"
)

const (
	marginTop    = 40
	marginBottom = 140
	marginSide   = 100
	fontSize     = 22.0
	lineSpacing  = 28
)

// Caption is the text printed around a QR image. Title goes above it,
// Lines below.
type Caption struct {
	Title string
	Lines []string
}

// ForESIM builds the standard caption of a restocked eSIM.
func ForESIM(networks []string, phone string, gb, days int) Caption {
	return Caption{
		Title: "الشبكة: " + strings.Join(networks, ", "),
		Lines: []string{
			"رقم الهاتف:  " + phone,
			fmt.Sprintf("المساحة: %d جيجا", gb),
			fmt.Sprintf("مدة الصلاحية: %d يوم", days),
			"الشريحة قابلة للتجديد عند الانتهاء",
		},
	}
}

type Renderer struct {
	font *truetype.Font
}

// NewRenderer parses the TrueType font at path, or the bundled Go font
// when path is empty.
func NewRenderer(path string) (*Renderer, error) {
	data := goregular.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		data = b
	}
	f, err := freetype.ParseFont(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Renderer{font: f}, nil
}

// Render places img on a white canvas and draws c around it.
func (r *Renderer) Render(img image.Image, c Caption) *image.RGBA {
	b := img.Bounds()
	w := b.Dx() + marginSide
	h := b.Dy() + marginTop + marginBottom

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(marginSide/2, marginTop, marginSide/2+b.Dx(), marginTop+b.Dy()), img, b.Min, draw.Over)

	face := truetype.NewFace(r.font, &truetype.Options{Size: fontSize, DPI: 72, Hinting: font.HintingFull})
	defer face.Close()
	d := &font.Drawer{Dst: canvas, Src: image.NewUniform(color.Black), Face: face}

	centered(d, c.Title, w, marginTop-15)
	y := marginTop + b.Dy() + lineSpacing
	for _, line := range c.Lines {
		centered(d, line, w, y)
		y += lineSpacing
	}
	return canvas
}

// RenderPNG decodes data, renders c around it and encodes the result as PNG.
func (r *Renderer) RenderPNG(data []byte, c Caption) ([]byte, error) {
	img, err := imaging.Load(data)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNG(r.Render(img, c))
}

// centered draws s with its baseline middle at (width/2, y).
func centered(d *font.Drawer, s string, width, y int) {
	adv := d.MeasureString(s)
	d.Dot = fixed.Point26_6{
		X: fixed.I(width/2) - adv/2,
		Y: fixed.I(y) + fixed.I(int(fontSize)/3),
	}
	d.DrawString(s)
}
