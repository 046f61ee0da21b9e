package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/snaptext/backend/internal/models"
)

// GCSStore implements Store on a Cloud Storage bucket. Objects are written
// with a DoesNotExist precondition so concurrent uploads never overwrite
// each other.
type GCSStore struct {
	client     *gcs.Client
	bucket     *gcs.BucketHandle
	bucketName string
	prefix     string
	publicBase string
	now        func() time.Time
}

// NewGCSStore opens a client using application default credentials.
// publicBase is the URL objects are reachable under; when empty the
// storage.googleapis.com URL of the bucket is used.
func NewGCSStore(ctx context.Context, bucket, prefix, publicBase string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	if publicBase == "" {
		publicBase = "https://storage.googleapis.com/" + bucket
	}
	return &GCSStore{
		client:     client,
		bucket:     client.Bucket(bucket),
		bucketName: bucket,
		prefix:     strings.Trim(prefix, "/"),
		publicBase: strings.TrimRight(publicBase, "/"),
		now:        time.Now,
	}, nil
}

func (s *GCSStore) objectName(stored string) string {
	if s.prefix == "" {
		return stored
	}
	return s.prefix + "/" + stored
}

// Save uploads r as a new object.
func (s *GCSStore) Save(ctx context.Context, name string, r io.Reader) (*models.FileInfo, error) {
	stored := StoredName(name, s.now())
	object := s.objectName(stored)

	w := s.bucket.Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = mime.TypeByExtension(filepath.Ext(stored))

	size, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("writing object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing object %s: %w", object, err)
	}

	return &models.FileInfo{
		Name:       stored,
		Original:   name,
		URL:        s.publicBase + "/" + object,
		Size:       size,
		UploadedAt: s.now(),
	}, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, storedName string) error {
	err := s.bucket.Object(s.objectName(storedName)).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
