package models

import "time"

// FileInfo represents metadata about a stored upload.
type FileInfo struct {
	Name       string    `json:"name"`     // stored object name
	Original   string    `json:"original"` // name as uploaded
	URL        string    `json:"url"`      // public path or URL
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}
