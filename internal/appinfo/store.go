// Package appinfo keeps process-wide counters served by the stats endpoint.
package appinfo

import (
	"sync/atomic"
	"time"
)

var StartTime = time.Now()

var (
	TotalImagesCount atomic.Int64
	TotalImagesSize  atomic.Int64 // bytes of stored originals

	ThumbnailFailures atomic.Int64
	GeocodedImages    atomic.Int64
	TagSuggestions    atomic.Int64
)

// AddImage: Called when a new image is stored
func AddImage(size int64) {
	TotalImagesCount.Add(1)
	TotalImagesSize.Add(size)
}

// RemoveImage: Called when an image is deleted
func RemoveImage(size int64) {
	TotalImagesCount.Add(-1)
	TotalImagesSize.Add(-size)
}

// ReplaceImage: Called when an edit swaps the stored original
func ReplaceImage(oldSize, newSize int64) {
	TotalImagesSize.Add(newSize - oldSize)
}

// SetInitialStats: Writes the first data received from the database when the server starts up.
func SetInitialStats(count, size int64) {
	TotalImagesCount.Store(count)
	TotalImagesSize.Store(size)
}

// Snapshot is a consistent-enough copy of the counters for reporting.
type Snapshot struct {
	Images            int64 `json:"images"`
	StorageBytes      int64 `json:"storage_bytes"`
	ThumbnailFailures int64 `json:"thumbnail_failures"`
	GeocodedImages    int64 `json:"geocoded_images"`
	TagSuggestions    int64 `json:"tag_suggestions"`
}

func Read() Snapshot {
	return Snapshot{
		Images:            TotalImagesCount.Load(),
		StorageBytes:      TotalImagesSize.Load(),
		ThumbnailFailures: ThumbnailFailures.Load(),
		GeocodedImages:    GeocodedImages.Load(),
		TagSuggestions:    TagSuggestions.Load(),
	}
}
