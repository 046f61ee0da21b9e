// Package tesseract provides an in-process OCR engine on top of
// libtesseract via gosseract.
package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/snaptext/backend/internal/ocr"
)

// Engine wraps a single gosseract client that is created once and reused
// for every image. The client is not safe for concurrent use, so calls
// are serialized.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	lang   string
}

// New creates the client and loads the configured language.
func New(cfg ocr.Config) (*Engine, error) {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}

	c := gosseract.NewClient()
	if cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(cfg.TessdataDir); err != nil {
			c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(lang); err != nil {
		c.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if cfg.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PSM)); err != nil {
			c.Close()
			return nil, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	return &Engine{client: c, lang: lang}, nil
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image.
func (e *Engine) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if len(image) == 0 {
		return "", ocr.ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if lang != "" && lang != e.lang {
		if err := e.client.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
		e.lang = lang
	}
	if err := e.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return ocr.Normalize(text), nil
}

// Close releases the tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
