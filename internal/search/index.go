// Package search keeps a DuckDB table of completed OCR results so they can
// be queried by text.
package search

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/marcboeker/go-duckdb"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
	snippetRunes = 80
)

var ErrEmptyQuery = errors.New("search query is empty")

// Entry is one completed file.
type Entry struct {
	JobID     string
	FileIndex int
	URL       string
	Text      string
}

// Hit is a search result.
type Hit struct {
	JobID     string    `json:"jobId" msgpack:"jobId"`
	FileIndex int       `json:"fileIndex" msgpack:"fileIndex"`
	URL       string    `json:"url" msgpack:"url"`
	Snippet   string    `json:"snippet" msgpack:"snippet"`
	IndexedAt time.Time `json:"indexedAt" msgpack:"indexedAt"`
}

// Index stores OCR results in DuckDB. An empty path keeps the database in
// memory for the lifetime of the process.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the results table if needed.
func Open(path string, threads int, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if threads <= 0 {
		threads = 2
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA threads=%d", threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			job_id     VARCHAR NOT NULL,
			file_index INTEGER NOT NULL,
			url        VARCHAR NOT NULL,
			text       VARCHAR NOT NULL,
			indexed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (job_id, file_index)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Info("search index ready", "path", displayPath(path))
	return &Index{db: db, logger: logger}, nil
}

func displayPath(p string) string {
	if p == "" {
		return ":memory:"
	}
	return p
}

// Add inserts or replaces the text for a file.
func (x *Index) Add(ctx context.Context, e Entry) error {
	_, err := x.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO results (job_id, file_index, url, text, indexed_at) VALUES (?, ?, ?, ?, ?)`,
		e.JobID, e.FileIndex, e.URL, e.Text, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("index %s/%d: %w", e.JobID, e.FileIndex, err)
	}
	return nil
}

// Search returns files whose text contains q, case-insensitively, newest
// first.
func (x *Index) Search(ctx context.Context, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT job_id, file_index, url, text, indexed_at
		FROM results
		WHERE contains(lower(text), lower(?))
		ORDER BY indexed_at DESC, job_id, file_index
		LIMIT ?`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0)
	for rows.Next() {
		var h Hit
		var text string
		if err := rows.Scan(&h.JobID, &h.FileIndex, &h.URL, &text, &h.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		h.Snippet = snippet(text, q)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return hits, nil
}

// Count returns the number of indexed files.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT count(*) FROM results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// snippet returns up to snippetRunes runes of text around the first match.
func snippet(text, q string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}

	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	needle := []rune(strings.ToLower(q))

	pos := indexRunes(lower, needle)
	if pos < 0 {
		pos = 0
	}
	start := pos - snippetRunes/4
	if start < 0 {
		start = 0
	}
	end := start + snippetRunes
	if end > len(runes) {
		end = len(runes)
		start = end - snippetRunes
	}

	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

func indexRunes(hay, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
