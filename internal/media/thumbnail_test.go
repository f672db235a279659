package media_test

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"
	"testing"

	"galleria/internal/media"
	"galleria/internal/media/mediatest"
)

func TestThumbnailName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"holiday.png", "holiday_thumb.jpg"},
		{"IMG_0001.HEIC", "IMG_0001_thumb.jpg"},
		{"archive.tar.gz", "archive.tar_thumb.jpg"},
		{"noext", "noext_thumb.jpg"},
		{"", "image_thumb.jpg"},
		{".jpg", "image_thumb.jpg"},
		{"dir/photo.jpeg", "photo_thumb.jpg"},
	}

	for _, tt := range tests {
		if got := media.ThumbnailName(tt.in); got != tt.want {
			t.Errorf("ThumbnailName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerate_FitsBoxAndKeepsAspect(t *testing.T) {
	th := media.NewThumbnailer(300, 85, 4096)

	tests := []struct {
		name string
		w, h int
	}{
		{"landscape", 1200, 600},
		{"portrait", 600, 1200},
		{"square", 800, 800},
		{"panorama", 3000, 200},
		{"small", 120, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thumb := th.Generate(media.Blob{Name: tt.name + ".jpg", Data: mediatest.JPEG(tt.w, tt.h)})
			if thumb == nil {
				t.Fatal("Generate() returned nil")
			}
			if thumb.Width > 300 || thumb.Height > 300 {
				t.Errorf("thumbnail %dx%d exceeds 300x300", thumb.Width, thumb.Height)
			}
			if tt.w <= 300 && tt.h <= 300 && (thumb.Width != tt.w || thumb.Height != tt.h) {
				t.Errorf("small source was resized to %dx%d", thumb.Width, thumb.Height)
			}

			want := float64(tt.w) / float64(tt.h)
			got := float64(thumb.Width) / float64(thumb.Height)
			if math.Abs(got-want)/want > 0.05 {
				t.Errorf("aspect = %.3f, want %.3f", got, want)
			}

			cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb.Data))
			if err != nil || format != "jpeg" {
				t.Fatalf("thumbnail is not a jpeg: %v (%s)", err, format)
			}
			if cfg.Width != thumb.Width || cfg.Height != thumb.Height {
				t.Errorf("encoded %dx%d, reported %dx%d", cfg.Width, cfg.Height, thumb.Width, thumb.Height)
			}
		})
	}
}

func TestGenerate_AppliesOrientation(t *testing.T) {
	data, err := media.InjectExif(mediatest.JPEG(400, 200), mediatest.TIFF(mediatest.Exif{Orientation: 6}))
	if err != nil {
		t.Fatalf("InjectExif() error = %v", err)
	}

	thumb := media.NewThumbnailer(300, 85, 4096).Generate(media.Blob{Name: "rotated.jpg", Data: data})
	if thumb == nil {
		t.Fatal("Generate() returned nil")
	}
	if thumb.Height <= thumb.Width {
		t.Errorf("thumbnail %dx%d, want portrait after rotation", thumb.Width, thumb.Height)
	}
}

func TestGenerate_SafetyCap(t *testing.T) {
	thumb := media.NewThumbnailer(300, 85, 1024).Generate(media.Blob{Name: "huge.jpg", Data: mediatest.JPEG(2400, 600)})
	if thumb == nil {
		t.Fatal("Generate() returned nil")
	}
	if thumb.Width != 300 || thumb.Height != 75 {
		t.Errorf("thumbnail %dx%d, want 300x75", thumb.Width, thumb.Height)
	}
}

func TestGenerate_FlattensAlpha(t *testing.T) {
	thumb := media.NewThumbnailer(300, 85, 4096).Generate(media.Blob{Name: "alpha.png", Data: mediatest.PNG(40, 20)})
	if thumb == nil {
		t.Fatal("Generate() returned nil")
	}
	if _, err := jpeg.Decode(bytes.NewReader(thumb.Data)); err != nil {
		t.Errorf("thumbnail does not decode: %v", err)
	}
	if thumb.Name != "alpha_thumb.jpg" {
		t.Errorf("Name = %q", thumb.Name)
	}
}

func TestGenerate_Undecodable(t *testing.T) {
	th := media.NewThumbnailer(300, 85, 4096)
	for _, data := range [][]byte{nil, []byte("not an image"), mediatest.JPEG(10, 10)[:40]} {
		if thumb := th.Generate(media.Blob{Name: "broken.jpg", Data: data}); thumb != nil {
			t.Errorf("Generate(%d bytes) = %+v, want nil", len(data), thumb)
		}
	}
}
