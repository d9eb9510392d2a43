package model

import "time"

// UploadHandle references a file announced over a session. It is consumed by
// exactly one file job.
type UploadHandle struct {
	FileID           string    `json:"fileId"`
	OriginalFilename string    `json:"originalFilename"`
	StoragePath      string    `json:"storagePath"`
	CreatedAt        time.Time `json:"createdAt"`
}

// StorageKey is the blob key an upload is stored under.
func StorageKey(fileID, filename string) string {
	return fileID + "-" + filename
}

// UploadResponse is returned by the byte upload endpoint.
type UploadResponse struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}
