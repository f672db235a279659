// Package mediatest builds small in-memory images and EXIF blocks for tests.
package mediatest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"sort"
)

// JPEG encodes a w×h gradient.
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNG encodes a w×h gradient with a translucent alpha channel.
func PNG(w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0x40})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / max(w, 1)), G: uint8(y * 255 / max(h, 1)), B: 0x60, A: 0xff})
		}
	}
	return img
}

// Rational is a TIFF RATIONAL value.
type Rational struct{ Num, Den uint32 }

// GPS holds signed decimal coordinates; the builder writes hemisphere refs.
type GPS struct {
	Lat, Lon float64
}

// Exif describes the tags to emit. Zero values are omitted.
type Exif struct {
	Orientation      uint16
	Model            string
	DateTimeOriginal string
	ISO              uint16
	FNumber          Rational
	ExposureTime     Rational
	GPS              *GPS
}

const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var le = binary.LittleEndian

func ascii(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag, typeASCII, uint32(len(b)), b}
}

func short(tag uint16, v uint16) entry {
	b := make([]byte, 2)
	le.PutUint16(b, v)
	return entry{tag, typeShort, 1, b}
}

func long(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	le.PutUint32(b, v)
	return entry{tag, typeLong, 1, b}
}

func rationals(tag uint16, vals ...Rational) entry {
	b := make([]byte, 8*len(vals))
	for i, r := range vals {
		le.PutUint32(b[8*i:], r.Num)
		le.PutUint32(b[8*i+4:], r.Den)
	}
	return entry{tag, typeRational, uint32(len(vals)), b}
}

// DMS splits an unsigned decimal degree value into TIFF rationals,
// seconds kept to two decimals.
func DMS(deg float64) [3]Rational {
	deg = math.Abs(deg)
	d := math.Floor(deg)
	m := math.Floor((deg - d) * 60)
	s := math.Round(((deg-d)*60 - m) * 60 * 100)
	return [3]Rational{{uint32(d), 1}, {uint32(m), 1}, {uint32(s), 100}}
}

// TIFF builds a little-endian TIFF structure with IFD0, an Exif sub-IFD and
// a GPS sub-IFD, as found inside a JPEG APP1 segment.
func TIFF(x Exif) []byte {
	var ifd0, exifIFD, gpsIFD []entry

	if x.Model != "" {
		ifd0 = append(ifd0, ascii(0x0110, x.Model))
	}
	if x.Orientation != 0 {
		ifd0 = append(ifd0, short(0x0112, x.Orientation))
	}
	if x.DateTimeOriginal != "" {
		exifIFD = append(exifIFD, ascii(0x9003, x.DateTimeOriginal))
	}
	if x.ISO != 0 {
		exifIFD = append(exifIFD, short(0x8827, x.ISO))
	}
	if x.FNumber.Den != 0 {
		exifIFD = append(exifIFD, rationals(0x829D, x.FNumber))
	}
	if x.ExposureTime.Den != 0 {
		exifIFD = append(exifIFD, rationals(0x829A, x.ExposureTime))
	}
	if x.GPS != nil {
		latRef, lonRef := "N", "E"
		if x.GPS.Lat < 0 {
			latRef = "S"
		}
		if x.GPS.Lon < 0 {
			lonRef = "W"
		}
		lat, lon := DMS(x.GPS.Lat), DMS(x.GPS.Lon)
		gpsIFD = append(gpsIFD,
			ascii(0x0001, latRef),
			rationals(0x0002, lat[:]...),
			ascii(0x0003, lonRef),
			rationals(0x0004, lon[:]...),
		)
	}

	// Pointer placeholders are patched once offsets are known.
	exifPtr, gpsPtr := -1, -1
	if len(exifIFD) > 0 {
		exifPtr = len(ifd0)
		ifd0 = append(ifd0, long(0x8769, 0))
	}
	if len(gpsIFD) > 0 {
		gpsPtr = len(ifd0)
		ifd0 = append(ifd0, long(0x8825, 0))
	}

	off0 := uint32(8)
	offExif := off0 + blockSize(ifd0)
	offGPS := offExif + blockSize(exifIFD)
	if exifPtr >= 0 {
		le.PutUint32(ifd0[exifPtr].data, offExif)
	}
	if gpsPtr >= 0 {
		le.PutUint32(ifd0[gpsPtr].data, offGPS)
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, off0)
	buf.Write(serialize(ifd0, off0))
	buf.Write(serialize(exifIFD, offExif))
	buf.Write(serialize(gpsIFD, offGPS))
	return buf.Bytes()
}

func blockSize(entries []entry) uint32 {
	if len(entries) == 0 {
		return 0
	}
	size := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			size += uint32(padded(len(e.data)))
		}
	}
	return size
}

func padded(n int) int { return n + n%2 }

func serialize(entries []entry, offset uint32) []byte {
	if len(entries) == 0 {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	var head, data bytes.Buffer
	dataOff := offset + uint32(2+12*len(entries)+4)

	binary.Write(&head, le, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&head, le, e.tag)
		binary.Write(&head, le, e.typ)
		binary.Write(&head, le, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			head.Write(v)
			continue
		}
		binary.Write(&head, le, dataOff)
		data.Write(e.data)
		if len(e.data)%2 == 1 {
			data.WriteByte(0)
		}
		dataOff += uint32(padded(len(e.data)))
	}
	binary.Write(&head, le, uint32(0))
	head.Write(data.Bytes())
	return head.Bytes()
}
