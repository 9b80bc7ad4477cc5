package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Blob is content-addressable storage for large payloads (tool outputs,
// fetched pages) kept out of the event row to keep it compact.
type Blob struct {
	ID               string    `json:"id"`
	Hash             string    `json:"hash"`
	Data             []byte    `json:"-"`
	MimeType         string    `json:"mimeType"`
	OriginalSize     int64     `json:"originalSize"`
	CompressedSize   int64     `json:"compressedSize"`
	Compression      string    `json:"compression,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	RefCount         int       `json:"refCount"`
}

// HashContent returns the hex-encoded SHA-256 hash used as a blob's content
// address.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewBlobID derives a blob's ID from its content hash so that identical
// content always yields the same ID.
func NewBlobID(hash string) string {
	return "blob_" + hash
}
