package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"

	"github.com/jdeng/goheif"

	"galleria/pkg/logger"
)

// DefaultNormalizeQuality keeps converted HEIC uploads visually lossless.
const DefaultNormalizeQuality = 100

// maxAPP1Payload is the largest segment body a JPEG length field can describe.
const maxAPP1Payload = 0xffff - 2

var (
	exifHeader = []byte("Exif\x00\x00")

	errExifTooLarge = errors.New("exif block does not fit in one APP1 segment")
)

// heifExtensions lists suffixes that get converted at ingestion.
var heifExtensions = map[string]bool{
	".heic": true,
	".heif": true,
}

// Normalizer converts upload formats most clients cannot display (HEIC/HEIF)
// into JPEG, keeping the embedded EXIF block.
type Normalizer struct {
	Quality int
}

func NewNormalizer(quality int) *Normalizer {
	if quality <= 0 || quality > 100 {
		quality = DefaultNormalizeQuality
	}
	return &Normalizer{Quality: quality}
}

// NeedsConversion reports whether the filename carries a HEIC/HEIF suffix.
func NeedsConversion(name string) bool {
	return heifExtensions[Blob{Name: name}.Ext()]
}

// Normalize returns b untouched unless it is a HEIC/HEIF file, in which case a
// JPEG copy named "<base>.jpg" is returned. Conversion failures fall back to
// the original blob; later stages degrade on their own.
func (n *Normalizer) Normalize(b Blob) Blob {
	if !NeedsConversion(b.Name) {
		return b
	}

	out, err := n.convert(b)
	if err != nil {
		logger.LogWarn("HEIC conversion failed for %q, keeping original: %v", b.Name, err)
		return b
	}
	logger.LogDebug("Converted %q to %q (%d -> %d bytes)", b.Name, out.Name, len(b.Data), len(out.Data))
	return out
}

func (n *Normalizer) convert(b Blob) (out Blob, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("heif decoder panic: %v", r)
		}
	}()

	img, err := goheif.Decode(b.Reader())
	if err != nil {
		return Blob{}, fmt.Errorf("decode heif: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flattenRGB(img), &jpeg.Options{Quality: n.Quality}); err != nil {
		return Blob{}, fmt.Errorf("encode jpeg: %w", err)
	}
	data := buf.Bytes()

	if raw, exifErr := goheif.ExtractExif(b.Reader()); exifErr == nil && len(raw) > 0 {
		if withExif, err := InjectExif(data, raw); err == nil {
			data = withExif
		} else {
			logger.LogWarn("Dropping EXIF of %q: %v", b.Name, err)
		}
	}

	return Blob{Name: replaceExt(b.Name, ".jpg"), Data: data}, nil
}

// InjectExif inserts an EXIF block as an APP1 segment right after the JPEG SOI
// marker. raw may be a bare TIFF structure, an "Exif\0\0" prefixed block, or a
// HEIF Exif item (4-byte header offset followed by the block).
func InjectExif(jpegData, raw []byte) ([]byte, error) {
	if len(jpegData) < 2 || jpegData[0] != 0xff || jpegData[1] != 0xd8 {
		return nil, errors.New("not a jpeg stream")
	}

	payload, err := exifPayload(raw)
	if err != nil {
		return nil, err
	}
	if len(payload) > maxAPP1Payload {
		return nil, errExifTooLarge
	}

	segLen := len(payload) + 2
	out := make([]byte, 0, len(jpegData)+segLen+2)
	out = append(out, 0xff, 0xd8, 0xff, 0xe1, byte(segLen>>8), byte(segLen))
	out = append(out, payload...)
	out = append(out, jpegData[2:]...)
	return out, nil
}

func exifPayload(raw []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, exifHeader):
		return raw, nil
	case isTIFFHeader(raw):
		return append(append([]byte{}, exifHeader...), raw...), nil
	case len(raw) > 4:
		offset := int(binary.BigEndian.Uint32(raw[:4]))
		if rest := raw[4:]; offset >= 0 && offset < len(rest) {
			tail := rest[offset:]
			if bytes.HasPrefix(tail, exifHeader) {
				return tail, nil
			}
			if isTIFFHeader(tail) {
				return append(append([]byte{}, exifHeader...), tail...), nil
			}
		}
		if idx := bytes.Index(raw, exifHeader); idx >= 0 {
			return raw[idx:], nil
		}
	}
	return nil, errors.New("unrecognised exif block")
}

func isTIFFHeader(b []byte) bool {
	return bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*"))
}

func replaceExt(name, ext string) string {
	if i := strings.LastIndex(name, "."); i >= 0 && !strings.ContainsAny(name[i:], `/\`) {
		return name[:i] + ext
	}
	return name + ext
}
