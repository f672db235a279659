// Package ingest turns an uploaded file into a persisted gallery record:
// normalize, extract metadata (with reverse geocoding), derive a thumbnail,
// store both objects and write the row.
package ingest

import (
	"context"
	"time"

	"galleria/internal/appinfo"
	"galleria/internal/media"
	"galleria/pkg/logger"
)

// Result is what the pipeline derived from one upload.
type Result struct {
	// Blob is the normalized upload (a JPEG copy for HEIC input).
	Blob   media.Blob
	Meta   media.Metadata
	SizeKB int
	// Thumb is nil when the image could not be rendered.
	Thumb *media.Thumbnail
}

type Pipeline struct {
	Normalizer  *media.Normalizer
	Extractor   *media.Extractor
	Thumbnailer *media.Thumbnailer
}

func NewPipeline(n *media.Normalizer, e *media.Extractor, t *media.Thumbnailer) *Pipeline {
	return &Pipeline{Normalizer: n, Extractor: e, Thumbnailer: t}
}

// Process runs the stages in order. It never fails; every stage degrades on
// its own.
func (p *Pipeline) Process(ctx context.Context, b media.Blob) Result {
	start := time.Now()

	b = p.Normalizer.Normalize(b)
	meta := p.Extractor.Extract(ctx, b)
	thumb := p.Thumbnailer.Generate(b)

	if thumb == nil {
		appinfo.ThumbnailFailures.Add(1)
	}
	if meta.HasGPS() {
		appinfo.GeocodedImages.Add(1)
	}

	logger.LogDebug("Pipeline: %q %dx%d %dKB in %s", b.Name, meta.Width, meta.Height, b.SizeKB(), time.Since(start).Round(time.Millisecond))

	return Result{
		Blob:   b,
		Meta:   meta,
		SizeKB: b.SizeKB(),
		Thumb:  thumb,
	}
}
