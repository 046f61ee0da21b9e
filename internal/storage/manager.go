package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/snaptext/backend/internal/models"
)

// maxNameAttempts bounds suffix probing when a stored name already exists.
const maxNameAttempts = 100

// Store defines the interface for upload storage.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (*models.FileInfo, error)
	Delete(ctx context.Context, storedName string) error
}

// LocalStore implements Store using the local filesystem. Files are served
// by the HTTP layer from Dir under PublicPath.
type LocalStore struct {
	uploadDir  string
	publicPath string
	now        func() time.Time
}

// NewLocalStore creates a new LocalStore and its upload directory.
func NewLocalStore(uploadDir, publicPath string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	if publicPath == "" {
		publicPath = "/upload"
	}

	return &LocalStore{
		uploadDir:  uploadDir,
		publicPath: "/" + strings.Trim(publicPath, "/"),
		now:        time.Now,
	}, nil
}

// Dir returns the directory files are written to.
func (s *LocalStore) Dir() string {
	return s.uploadDir
}

// PublicPath returns the URL prefix uploaded files are served under.
func (s *LocalStore) PublicPath() string {
	return s.publicPath
}

// Save writes r under a timestamped name that does not overwrite any
// existing file.
func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (*models.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := StoredName(name, s.now())
	f, stored, err := s.createExclusive(base)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(filepath.Join(s.uploadDir, stored))
		return nil, fmt.Errorf("writing file: %w", err)
	}

	return &models.FileInfo{
		Name:       stored,
		Original:   name,
		URL:        path.Join(s.publicPath, stored),
		Size:       size,
		UploadedAt: s.now(),
	}, nil
}

func (s *LocalStore) createExclusive(base string) (*os.File, string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := base
	for i := 1; i <= maxNameAttempts; i++ {
		f, err := os.OpenFile(filepath.Join(s.uploadDir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("creating file: %w", err)
		}
		candidate = stem + "-" + strconv.Itoa(i) + ext
	}
	return nil, "", fmt.Errorf("creating file: no free name for %s", base)
}

// Delete removes a stored file. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, storedName string) error {
	p := filepath.Join(s.uploadDir, filepath.Base(storedName))
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// StoredName builds "<name>-<unix millis><ext>" from an uploaded file name,
// stripping any directory components.
func StoredName(original string, at time.Time) string {
	name := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '/', r == '?', r == '#', r == '%':
			return '_'
		}
		return r
	}, name)
	return name + "-" + strconv.FormatInt(at.UnixMilli(), 10) + strings.ToLower(filepath.Ext(name))
}
