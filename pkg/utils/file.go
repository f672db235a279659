package utils

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// heifBrands are the ISO-BMFF major brands used by HEIC/HEIF stills.
var heifBrands = [][]byte{
	[]byte("heic"), []byte("heix"), []byte("hevc"), []byte("heim"),
	[]byte("heis"), []byte("mif1"), []byte("msf1"),
}

// IsImageUpload sniffs the first bytes of an upload. http.DetectContentType does
// not know HEIC or TIFF, so those are checked by signature.
func IsImageUpload(head []byte, filename string) bool {
	if allowedContentTypes[http.DetectContentType(head)] {
		return true
	}
	if IsHEIF(head) {
		return true
	}
	if bytes.HasPrefix(head, []byte("II*\x00")) || bytes.HasPrefix(head, []byte("MM\x00*")) {
		ext := strings.ToLower(filepath.Ext(filename))
		return ext == ".tif" || ext == ".tiff"
	}
	return false
}

func IsHEIF(head []byte) bool {
	if len(head) < 12 || !bytes.Equal(head[4:8], []byte("ftyp")) {
		return false
	}
	for _, brand := range heifBrands {
		if bytes.Equal(head[8:12], brand) {
			return true
		}
	}
	return false
}
