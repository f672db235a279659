package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/big"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"galleria/pkg/logger"
)

// ShootTimeLayout is the fixed EXIF DateTimeOriginal pattern.
const ShootTimeLayout = "2006:01:02 15:04:05"

// LocationResolver turns decimal coordinates into a caption. Implementations
// must not fail; they degrade to a coordinate string instead.
type LocationResolver interface {
	Resolve(ctx context.Context, lat, lon float64) string
}

// Metadata is everything the extractor could read. Absent fields are nil;
// Width and Height are 0 when the image could not be decoded.
type Metadata struct {
	Width  int
	Height int

	CameraModel  *string
	ShootTime    *time.Time
	ISO          *int
	FStop        *float64
	ExposureTime *string

	Latitude  *float64
	Longitude *float64
	Location  *string
}

// HasGPS reports whether both coordinates were resolved.
func (m Metadata) HasGPS() bool {
	return m.Latitude != nil && m.Longitude != nil
}

type Extractor struct {
	Locations LocationResolver
}

func NewExtractor(locations LocationResolver) *Extractor {
	return &Extractor{Locations: locations}
}

// Extract reads dimensions and EXIF fields from b. It never fails: an
// undecodable blob yields an empty Metadata with zero dimensions.
func (e *Extractor) Extract(ctx context.Context, b Blob) Metadata {
	cfg, format, err := image.DecodeConfig(b.Reader())
	if err != nil {
		logger.LogDebug("Metadata: %q is not a decodable image: %v", b.Name, err)
		return Metadata{}
	}

	meta := Metadata{Width: cfg.Width, Height: cfg.Height}

	x, err := decodeExif(b)
	if err != nil {
		logger.LogDebug("Metadata: no EXIF in %q (%s): %v", b.Name, format, err)
		return meta
	}

	readCaptureFields(x, &meta)

	lat, lon, err := readGPS(x)
	if err != nil {
		if !errors.Is(err, exif.TagNotPresentError(exif.GPSLatitude)) {
			logger.LogDebug("Metadata: GPS ignored for %q: %v", b.Name, err)
		}
		return meta
	}

	meta.Latitude = &lat
	meta.Longitude = &lon

	var location string
	if e != nil && e.Locations != nil {
		location = e.Locations.Resolve(ctx, lat, lon)
	} else {
		location = CoordinateString(lat, lon)
	}
	meta.Location = &location

	return meta
}

// CoordinateString is the caption used when no place name is available.
func CoordinateString(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}

func decodeExif(b Blob) (x *exif.Exif, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exif decoder panic: %v", r)
		}
	}()
	return exif.Decode(b.Reader())
}

func readCaptureFields(x *exif.Exif, meta *Metadata) {
	if s, ok := stringField(x, exif.DateTimeOriginal); ok {
		if t, err := time.Parse(ShootTimeLayout, s); err == nil {
			meta.ShootTime = &t
		}
	}

	if s, ok := stringField(x, exif.Model); ok {
		meta.CameraModel = &s
	}

	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if iso, err := tag.Int(0); err == nil {
			meta.ISO = &iso
		}
	}

	if tag, err := x.Get(exif.FNumber); err == nil {
		if f, err := ratFloat(tag, 0); err == nil && f != 0 {
			meta.FStop = &f
		}
	}

	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if s, err := ratString(tag, 0); err == nil {
			meta.ExposureTime = &s
		}
	}
}

// stringField returns an ASCII tag with NUL bytes and surrounding space removed.
func stringField(x *exif.Exif, name exif.FieldName) (string, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return "", false
	}
	s, err := tag.StringVal()
	if err != nil {
		return "", false
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
	return s, s != ""
}

func readGPS(x *exif.Exif) (lat, lon float64, err error) {
	lat, err = gpsComponent(x, exif.GPSLatitude)
	if err != nil {
		return 0, 0, err
	}
	lon, err = gpsComponent(x, exif.GPSLongitude)
	if err != nil {
		return 0, 0, err
	}

	if ref, _ := stringField(x, exif.GPSLatitudeRef); strings.EqualFold(ref, "S") {
		lat = -lat
	}
	if ref, _ := stringField(x, exif.GPSLongitudeRef); strings.EqualFold(ref, "W") {
		lon = -lon
	}
	return lat, lon, nil
}

func gpsComponent(x *exif.Exif, name exif.FieldName) (float64, error) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, err
	}
	if tag.Count < 3 {
		return 0, fmt.Errorf("%s: expected 3 values, got %d", name, tag.Count)
	}

	var dms [3]float64
	for i := range dms {
		v, err := ratFloat(tag, i)
		if err != nil {
			return 0, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		dms[i] = v
	}
	return ToDecimal(dms[0], dms[1], dms[2]), nil
}

func ratFloat(tag *tiff.Tag, i int) (float64, error) {
	if tag.Format() != tiff.RatVal {
		if tag.Format() == tiff.IntVal {
			v, err := tag.Int64(i)
			return float64(v), err
		}
		return tag.Float(i)
	}
	num, den, err := tag.Rat2(i)
	if err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, errors.New("zero denominator")
	}
	return float64(num) / float64(den), nil
}

// ratString keeps fractional notation ("1/100"); whole values print as integers.
func ratString(tag *tiff.Tag, i int) (string, error) {
	if tag.Format() != tiff.RatVal {
		v, err := ratFloat(tag, i)
		if err != nil {
			return "", err
		}
		return fmt.Sprint(v), nil
	}
	num, den, err := tag.Rat2(i)
	if err != nil {
		return "", err
	}
	if den == 0 {
		return "", errors.New("zero denominator")
	}
	r := big.NewRat(num, den)
	if r.IsInt() {
		return r.Num().String(), nil
	}
	return r.String(), nil
}
