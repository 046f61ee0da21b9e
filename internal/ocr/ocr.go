// Package ocr defines the OCR engine boundary used by the worker and the
// engines that implement it.
package ocr

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyImage = errors.New("empty image payload")

// Engine extracts text from raw image bytes. Implementations are
// initialized once and reused for every file until Close.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, lang string) (string, error)
	Close() error
}

// Config holds engine settings shared by the implementations.
type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Language    string // default "eng"
	TessdataDir string
	PSM         int // page segmentation mode, 0 = engine default
}

func (c Config) withDefaults() Config {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Language == "" {
		c.Language = "eng"
	}
	return c
}

// Normalize trims trailing whitespace on each line and drops form feeds
// tesseract emits at page ends.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\f", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
