package models

import "time"

// FileStatus represents the OCR status of a single uploaded image.
type FileStatus string

const (
	FileStatusPending  FileStatus = "pending"
	FileStatusComplete FileStatus = "complete"
	FileStatusFailed   FileStatus = "failed"
)

// Terminal reports whether the worker is done with the file.
func (s FileStatus) Terminal() bool {
	return s == FileStatusComplete || s == FileStatusFailed
}

// FileResult is one entry per uploaded image within a job.
type FileResult struct {
	Status FileStatus `json:"status" msgpack:"status"`
	URL    string     `json:"url" msgpack:"url"`
	Text   string     `json:"text,omitempty" msgpack:"text,omitempty"`
	Error  string     `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Job tracks the OCR results for one uploaded batch.
type Job struct {
	ID          string       `json:"id" msgpack:"id"`
	Files       []FileResult `json:"files" msgpack:"files"`
	CreatedAt   time.Time    `json:"createdAt" msgpack:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty" msgpack:"completedAt,omitempty"`
}

// NewJob creates a job with one pending file per url.
func NewJob(id string, urls []string) *Job {
	files := make([]FileResult, len(urls))
	for i, u := range urls {
		files[i] = FileResult{Status: FileStatusPending, URL: u}
	}
	return &Job{
		ID:        id,
		Files:     files,
		CreatedAt: time.Now(),
	}
}

// Done reports whether every file has reached a terminal status.
func (j *Job) Done() bool {
	for _, f := range j.Files {
		if !f.Status.Terminal() {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() Job {
	c := *j
	c.Files = append([]FileResult(nil), j.Files...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// PendingBatch is a queued submission awaiting OCR. Payload i belongs to
// file i of the job with the same id.
type PendingBatch struct {
	JobID    string
	Payloads [][]byte
}
