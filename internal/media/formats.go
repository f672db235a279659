package media

import (
	"image"
	"image/color"
	"image/draw"

	// Decoders available to the extractor and thumbnailer.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// flattenRGB drops the alpha channel and palette, producing an opaque 8-bit
// RGB image. Colour values are kept as stored, not composited onto a background.
func flattenRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch s := src.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			si := s.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				dst.Pix[di+0] = s.Pix[si+0]
				dst.Pix[di+1] = s.Pix[si+1]
				dst.Pix[di+2] = s.Pix[si+2]
				dst.Pix[di+3] = 0xff
				si += 4
				di += 4
			}
		}
		return dst
	case *image.YCbCr, *image.Gray, *image.RGBA:
		if opaque, ok := src.(interface{ Opaque() bool }); ok && opaque.Opaque() {
			draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
			return dst
		}
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}
