package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"galleria/pkg/logger"
)

const (
	DefaultThumbnailSize    = 300
	DefaultThumbnailQuality = 85
	DefaultSafetyCap        = 4096

	thumbSuffix      = "_thumb.jpg"
	fallbackBaseName = "image"
)

// Thumbnail is a derived JPEG preview.
type Thumbnail struct {
	Name   string
	Data   []byte
	Width  int
	Height int
}

type Thumbnailer struct {
	MaxWidth  int
	MaxHeight int
	Quality   int

	// SafetyCap bounds the working copy; larger sources are shrunk before
	// the final resample.
	SafetyCap int
}

func NewThumbnailer(size, quality, safetyCap int) *Thumbnailer {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultThumbnailQuality
	}
	if safetyCap <= 0 {
		safetyCap = DefaultSafetyCap
	}
	return &Thumbnailer{MaxWidth: size, MaxHeight: size, Quality: quality, SafetyCap: safetyCap}
}

// ThumbnailName derives "<base>_thumb.jpg" from an original filename.
func ThumbnailName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = fallbackBaseName
	}
	return base + thumbSuffix
}

// Generate renders an orientation-corrected preview that fits the box while
// keeping the aspect ratio. It returns nil when the source cannot be rendered.
func (t *Thumbnailer) Generate(b Blob) *Thumbnail {
	thumb, err := t.render(b)
	if err != nil {
		logger.LogWarn("Thumbnail: could not render %q: %v", b.Name, err)
		return nil
	}
	return thumb
}

func (t *Thumbnailer) render(b Blob) (thumb *Thumbnail, err error) {
	defer func() {
		if r := recover(); r != nil {
			thumb, err = nil, fmt.Errorf("panic while rendering: %v", r)
		}
	}()

	src, err := imaging.Decode(b.Reader(), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if capEdge := t.SafetyCap; capEdge > 0 {
		if src.Bounds().Dx() > capEdge || src.Bounds().Dy() > capEdge {
			src = imaging.Fit(src, capEdge, capEdge, imaging.Lanczos)
		}
	}

	var img image.Image = flattenRGB(src)

	// imaging.Fit never upscales.
	img = imaging.Fit(img, t.MaxWidth, t.MaxHeight, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return &Thumbnail{
		Name:   ThumbnailName(b.Name),
		Data:   buf.Bytes(),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}
