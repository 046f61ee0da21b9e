package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Mode selects how many files a single upload may carry.
type Mode string

const (
	ModeMulti  Mode = "multi"
	ModeSingle Mode = "single"
)

// ParseMode parses a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMulti, "":
		return ModeMulti, nil
	case ModeSingle:
		return ModeSingle, nil
	}
	return "", fmt.Errorf("unknown upload mode %q", s)
}

// DefaultAllowedTypes are the image types accepted for OCR.
var DefaultAllowedTypes = []string{"jpeg", "jpg", "png"}

// Reason classifies a rejected upload.
type Reason string

const (
	ReasonNoFiles             Reason = "no_files"
	ReasonUnsupportedFileType Reason = "unsupported_file_type"
	ReasonTooManyFiles        Reason = "too_many_files"
)

// ValidationError rejects a whole batch.
type ValidationError struct {
	Reason Reason
	File   string
}

func (e *ValidationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("invalid upload (%s): %s", e.Reason, e.File)
	}
	return fmt.Sprintf("invalid upload (%s)", e.Reason)
}

// Policy is the validation applied to every batch before any side effect.
type Policy struct {
	Mode         Mode
	AllowedTypes []string
}

// Validate checks the batch size and every file's extension and declared
// MIME type.
func (p Policy) Validate(files []File) error {
	if len(files) == 0 {
		return &ValidationError{Reason: ReasonNoFiles}
	}
	for _, f := range files {
		if !p.allowed(f) {
			return &ValidationError{Reason: ReasonUnsupportedFileType, File: f.Name}
		}
	}
	if p.Mode == ModeSingle && len(files) > 1 {
		return &ValidationError{Reason: ReasonTooManyFiles}
	}
	return nil
}

func (p Policy) allowed(f File) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
	if !p.hasType(ext) {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(f.MIMEType)
	if err != nil {
		return false
	}
	major, sub, ok := strings.Cut(mediaType, "/")
	if !ok || major != "image" {
		return false
	}
	return p.hasType(sub)
}

func (p Policy) hasType(t string) bool {
	if t == "" {
		return false
	}
	for _, a := range p.AllowedTypes {
		if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(a), "."), t) {
			return true
		}
	}
	return false
}
