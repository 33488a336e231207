package models

import "time"

// Intake validation messages.
const (
	ErrMsgUnsupportedType = "Unsupported file type"
	ErrMsgTooLarge        = "File too large (max 10MB)"
)

// UploadedItem is one file the user added to the batch.
type UploadedItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	MIME       string    `json:"type"`
	ModTime    time.Time `json:"lastModified"`
	PreviewRef string    `json:"previewRef,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Analyzable reports whether the item passed validation.
func (i UploadedItem) Analyzable() bool {
	return i.Error == ""
}

// SizeKB is the size in whole kilobytes, rounded down.
func (i UploadedItem) SizeKB() int64 {
	return i.Size / 1024
}

// FileRef is the name/size pair recorded in exports and history.
type FileRef struct {
	Name string `json:"name" msgpack:"name"`
	Size int64  `json:"size" msgpack:"size"`
}
