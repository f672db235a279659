// Package storage keeps uploaded originals and thumbnails, either on the
// local filesystem or in an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"galleria/internal/config"
)

var (
	ErrNotExist   = errors.New("object does not exist")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store is a flat key/value blob store. Keys use forward slashes.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

// New builds the store selected by the configuration.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.Root)
	case "minio":
		return NewMinio(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Keys are laid out by upload month: uploads/2024/05/<uuid>.jpg and
// thumbs/2024/05/<uuid>_thumb.jpg.
const (
	OriginalPrefix  = "uploads"
	ThumbnailPrefix = "thumbs"
)

// NewKeys returns a fresh original/thumbnail key pair sharing one id.
func NewKeys(now time.Time, ext string) (original, thumb string) {
	id := uuid.NewString()
	month := now.Format("2006/01")
	ext = strings.ToLower(ext)
	return path.Join(OriginalPrefix, month, id+ext), path.Join(ThumbnailPrefix, month, id+"_thumb.jpg")
}

// CleanKey validates a key coming from a URL and returns its canonical form.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "\\") || strings.Contains(key, "\x00") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrInvalidKey
		}
	}
	return key, nil
}

// URL builds the public link for a key. An empty key yields "".
func URL(baseURL, publicPath, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(publicPath, "/") + "/" + key
}

// ContentType guesses a MIME type from the key extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".heic", ".heif":
		return "image/heic"
	default:
		return "application/octet-stream"
	}
}
