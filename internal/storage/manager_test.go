// manager_test.go - Tests for storage layer
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir(), "/upload")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	store.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return store
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		store, err := NewLocalStore(uploadDir, "")
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
		if store.PublicPath() != "/upload" {
			t.Errorf("Expected default public path /upload, got %s", store.PublicPath())
		}
	})

	t.Run("normalizes public path", func(t *testing.T) {
		store, err := NewLocalStore(t.TempDir(), "images/")
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if store.PublicPath() != "/images" {
			t.Errorf("Expected /images, got %s", store.PublicPath())
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("writes file under timestamped name", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save(context.Background(), "scan.PNG", strings.NewReader("pngdata"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.Name != "scan.PNG-1700000000123.png" {
			t.Errorf("Unexpected stored name %q", info.Name)
		}
		if info.URL != "/upload/scan.PNG-1700000000123.png" {
			t.Errorf("Unexpected url %q", info.URL)
		}
		if info.Original != "scan.PNG" {
			t.Errorf("Unexpected original name %q", info.Original)
		}
		if info.Size != 7 {
			t.Errorf("Expected size 7, got %d", info.Size)
		}

		data, err := os.ReadFile(filepath.Join(store.Dir(), info.Name))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != "pngdata" {
			t.Errorf("Unexpected content %q", data)
		}
	})

	t.Run("same name in same millisecond gets suffix", func(t *testing.T) {
		store := createTestStore(t)

		first, err := store.Save(context.Background(), "a.jpg", strings.NewReader("1"))
		if err != nil {
			t.Fatalf("first save: %v", err)
		}
		second, err := store.Save(context.Background(), "a.jpg", strings.NewReader("2"))
		if err != nil {
			t.Fatalf("second save: %v", err)
		}

		if first.Name == second.Name {
			t.Fatalf("Expected distinct names, both %q", first.Name)
		}
		if second.Name != "a.jpg-1700000000123-1.jpg" {
			t.Errorf("Unexpected suffixed name %q", second.Name)
		}
		data, _ := os.ReadFile(filepath.Join(store.Dir(), first.Name))
		if string(data) != "1" {
			t.Errorf("First file was overwritten: %q", data)
		}
	})

	t.Run("strips directories from name", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save(context.Background(), "../../etc/passwd.png", strings.NewReader("x"))
		if err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
		if strings.Contains(info.Name, "/") || strings.Contains(info.Name, "..") {
			t.Errorf("Stored name escapes upload dir: %q", info.Name)
		}
		if _, err := os.Stat(filepath.Join(store.Dir(), info.Name)); err != nil {
			t.Errorf("Expected file inside upload dir: %v", err)
		}
	})

	t.Run("removes partial file on read error", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Save(context.Background(), "bad.png", failingReader{}); err == nil {
			t.Fatal("Expected error from failing reader")
		}
		entries, _ := os.ReadDir(store.Dir())
		if len(entries) != 0 {
			t.Errorf("Expected no leftover files, found %d", len(entries))
		}
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		store := createTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := store.Save(ctx, "a.png", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save(context.Background(), "gone.png", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := store.Delete(context.Background(), info.Name); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), info.Name)); !os.IsNotExist(err) {
		t.Error("Expected file to be removed")
	}
	if err := store.Delete(context.Background(), info.Name); err != nil {
		t.Errorf("Deleting a missing file should not fail: %v", err)
	}
}

func TestStoredName(t *testing.T) {
	at := time.UnixMilli(42)
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpeg", "photo.jpeg-42.jpeg"},
		{"UPPER.JPG", "UPPER.JPG-42.jpg"},
		{"dir/sub/receipt.png", "receipt.png-42.png"},
		{`C:\Users\me\pic.png`, "pic.png-42.png"},
		{"", "upload-42"},
		{"odd?#%.png", "odd___.png-42.png"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := StoredName(tt.in, at); got != tt.want {
				t.Errorf("StoredName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
