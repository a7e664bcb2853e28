package caption

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/esimrouter/internal/imaging"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/qr"
	"github.com/dmitrijs2005/esimrouter/internal/qr/qrtest"
)

func TestForESIM(t *testing.T) {
	c := ForESIM([]string{"We", "Cellcom"}, "0551234567", 500, 30)
	assert.Equal(t, "الشبكة: We, Cellcom", c.Title)
	require.Len(t, c.Lines, 4)
	assert.Contains(t, c.Lines[0], "0551234567")
	assert.Contains(t, c.Lines[1], "500")
	assert.Contains(t, c.Lines[2], "30")
}

func TestRender_FramesImage(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	src := image.NewGray(image.Rect(0, 0, 200, 200))
	out := r.Render(src, Caption{Title: "Network: We", Lines: []string{"Phone: 0551234567"}})

	assert.Equal(t, 200+marginSide, out.Bounds().Dx())
	assert.Equal(t, 200+marginTop+marginBottom, out.Bounds().Dy())
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(marginSide/2+10, marginTop+10))

	dark := 0
	for y := marginTop + 200; y < out.Bounds().Dy(); y++ {
		for x := 0; x < out.Bounds().Dx(); x++ {
			if out.RGBAAt(x, y).R < 128 {
				dark++
			}
		}
	}
	assert.Positive(t, dark, "caption text should be drawn below the image")
}

func TestRenderPNG_QRStillDecodes(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	const text = "LPA:1$smdp.example.mno$ABC123"
	out, err := r.RenderPNG(qrtest.PNG(t, text), ForESIM([]string{"We"}, "0551234567", 100, 30))
	require.NoError(t, err)

	g, err := imaging.LoadGray(out)
	require.NoError(t, err)
	code, ok := qr.NewDecoder(logging.NewNopLogger()).Decode(t.Context(), g)
	require.True(t, ok)
	assert.Equal(t, text, code.Text)
}

func TestRenderPNG_Malformed(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)
	_, err = r.RenderPNG([]byte("nope"), Caption{})
	assert.ErrorIs(t, err, imaging.ErrMalformed)
}

func TestNewRenderer_BadFont(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ttf")
	require.NoError(t, os.WriteFile(path, []byte("not a font"), 0o600))

	_, err := NewRenderer(path)
	assert.ErrorContains(t, err, "parse font")

	_, err = NewRenderer(filepath.Join(t.TempDir(), "missing.ttf"))
	assert.ErrorContains(t, err, "read font")
}
