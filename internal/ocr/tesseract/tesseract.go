// Package tesseract recognizes text with the Tesseract engine through
// gosseract. It requires libtesseract at build and run time.
package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer runs sparse-text recognition. A single engine client is
// reused across calls and guarded by a mutex.
type Recognizer struct {
	mu        sync.Mutex
	client    *gosseract.Client
	languages []string
}

// New creates a recognizer for the given languages (default "eng").
func New(languages ...string) *Recognizer {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Recognizer{languages: languages}
}

func (r *Recognizer) init() error {
	if r.client != nil {
		return nil
	}
	c := gosseract.NewClient()
	if err := c.SetLanguage(r.languages...); err != nil {
		c.Close()
		return err
	}
	if err := c.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		c.Close()
		return err
	}
	r.client = c
	return nil
}

// Text returns the text found in png.
func (r *Recognizer) Text(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.init(); err != nil {
		return "", fmt.Errorf("tesseract init: %w", err)
	}
	if err := r.client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("tesseract image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract text: %w", err)
	}
	return text, nil
}

// Close releases the engine.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
