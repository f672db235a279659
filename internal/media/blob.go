// Package media holds the upload ingestion stages: format normalization,
// metadata extraction and thumbnail derivation. Every stage reads from an
// immutable Blob and derives its own reader, so no stage depends on where a
// previous one left a stream cursor.
package media

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Blob is an uploaded file: raw bytes plus the declared filename.
type Blob struct {
	Name string
	Data []byte
}

// Reader returns a fresh reader positioned at the start of the data.
func (b Blob) Reader() *bytes.Reader {
	return bytes.NewReader(b.Data)
}

// SizeKB is the stored file size in whole kilobytes (truncated).
func (b Blob) SizeKB() int {
	return len(b.Data) / 1024
}

// Ext returns the lower-cased extension including the dot.
func (b Blob) Ext() string {
	return strings.ToLower(filepath.Ext(b.Name))
}
