package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// ResizingEngine downsizes images whose longest side exceeds MaxDimension
// before handing them to the wrapped engine.
type ResizingEngine struct {
	Engine
	MaxDimension int
}

// WithMaxDimension wraps e so oversized images are scaled down first.
// A non-positive max returns e unchanged.
func WithMaxDimension(e Engine, max int) Engine {
	if max <= 0 {
		return e
	}
	return &ResizingEngine{Engine: e, MaxDimension: max}
}

func (e *ResizingEngine) Recognize(ctx context.Context, data []byte, lang string) (string, error) {
	scaled, err := Downscale(data, e.MaxDimension)
	if err != nil {
		return "", err
	}
	return e.Engine.Recognize(ctx, scaled, lang)
}

// Downscale returns data re-encoded as PNG with its longest side limited
// to max pixels. Images already within bounds are returned as-is.
func Downscale(data []byte, max int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	longest := cfg.Width
	if cfg.Height > longest {
		longest = cfg.Height
	}
	if max <= 0 || longest <= max {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	w := cfg.Width * max / longest
	h := cfg.Height * max / longest
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode scaled image: %w", err)
	}
	return buf.Bytes(), nil
}
