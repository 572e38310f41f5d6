package models

import "io"

// UploadFile is one file picked in a single upload action.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadResponse is the body returned by POST /api/upload.
type UploadResponse struct {
	Links []string `json:"links"`
}
