package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// CLIEngine runs the tesseract binary once per image, feeding the image
// on stdin.
type CLIEngine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewCLIEngine creates an engine that shells out to tesseract.
func NewCLIEngine(cfg Config, logger *slog.Logger) *CLIEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIEngine{
		cfg:    cfg.withDefaults(),
		runner: execRunner{logger: logger},
		logger: logger,
	}
}

// NewCLIEngineWithRunner is NewCLIEngine with an injected command runner.
func NewCLIEngineWithRunner(cfg Config, runner Runner, logger *slog.Logger) *CLIEngine {
	e := NewCLIEngine(cfg, logger)
	e.runner = runner
	return e
}

func (e *CLIEngine) Name() string { return "tesseract-cli" }

// Recognize runs `tesseract stdin stdout -l <lang>`.
func (e *CLIEngine) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if lang == "" {
		lang = e.cfg.Language
	}

	args := []string{"stdin", "stdout", "-l", lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, image, e.cfg.Tesseract, args...)
	if err != nil {
		msg := strings.TrimSpace(string(errb))
		if msg != "" {
			return "", fmt.Errorf("tesseract: %w: %s", err, truncate(msg, 512))
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return Normalize(string(out)), nil
}

// Close is a no-op; each call starts its own process.
func (e *CLIEngine) Close() error { return nil }
