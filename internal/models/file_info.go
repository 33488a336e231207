package models

import "time"

// FileInfo represents metadata about a file received by the backend.
type FileInfo struct {
	ID         string    `json:"id" msgpack:"id"`
	Name       string    `json:"name" msgpack:"name"`
	Size       int64     `json:"size" msgpack:"size"`
	MIME       string    `json:"type" msgpack:"type"`
	UploadedAt time.Time `json:"uploadedAt" msgpack:"uploadedAt"`
	Status     string    `json:"status" msgpack:"status"` // "uploaded", "processing", "analyzed", "error"
}
