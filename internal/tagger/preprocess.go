package tagger

import (
	"image"

	"github.com/disintegration/imaging"
)

// InputSize is the CLIP ViT-B/32 input edge.
const InputSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess center-crops img to InputSize² and returns a normalized NCHW
// float32 tensor (1×3×224×224) in RGB order.
func Preprocess(img image.Image) []float32 {
	sq := imaging.Fill(img, InputSize, InputSize, imaging.Center, imaging.CatmullRom)

	const plane = InputSize * InputSize
	out := make([]float32, 3*plane)
	for y := 0; y < InputSize; y++ {
		row := sq.Pix[y*sq.Stride:]
		for x := 0; x < InputSize; x++ {
			px := row[x*4 : x*4+3]
			i := y*InputSize + x
			for c := 0; c < 3; c++ {
				out[c*plane+i] = (float32(px[c])/255 - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}
