package phone

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/esimrouter/internal/imaging"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
)

type scriptedRecognizer struct {
	texts []string
	errs  []error
	calls int
	seen  [][]byte
}

func (s *scriptedRecognizer) Text(_ context.Context, png []byte) (string, error) {
	i := s.calls
	s.calls++
	s.seen = append(s.seen, png)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.texts) {
		return s.texts[i], err
	}
	return "", err
}

func gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = uint8(i * 16)
	}
	return g
}

func TestFind(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Phone: 0551234567", "0551234567", true},
		{"0511234567 and 0531234567", "0511234567", true},
		{"053-123-4567", "", false},
		{"0541234567", "", false},
		{"05512345678", "", false},
		{"x0551234567", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Find(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestExtract_FixedPassWins(t *testing.T) {
	rec := &scriptedRecognizer{texts: []string{"number 0551112222"}}
	n, ok := NewExtractor(rec, logging.NewNopLogger()).Extract(context.Background(), gray())

	assert.True(t, ok)
	assert.Equal(t, "0551112222", n)
	assert.Equal(t, 1, rec.calls)

	decoded, err := imaging.LoadGray(rec.seen[0])
	assert.NoError(t, err)
	for _, v := range decoded.Pix {
		assert.Contains(t, []uint8{0, 0xff}, v, "recognizer receives a binarized image")
	}
}

func TestExtract_FallsBackToOtsu(t *testing.T) {
	rec := &scriptedRecognizer{texts: []string{"garbled", "0539876543"}}
	n, ok := NewExtractor(rec, logging.NewNopLogger()).Extract(context.Background(), gray())

	assert.True(t, ok)
	assert.Equal(t, "0539876543", n)
	assert.Equal(t, 2, rec.calls)
}

func TestExtract_RecognizerErrorsAreNotFatal(t *testing.T) {
	boom := errors.New("tesseract: bad input")
	rec := &scriptedRecognizer{errs: []error{boom, boom}}
	n, ok := NewExtractor(rec, logging.NewNopLogger()).Extract(context.Background(), gray())

	assert.False(t, ok)
	assert.Empty(t, n)
	assert.Equal(t, 2, rec.calls)
}
