package embedding

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// clipImageSize is the input resolution of the CLIP vision encoder.
const clipImageSize = 224

// Per-channel normalization constants from CLIP preprocessing.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// PreprocessImage decodes the image bytes and converts them into the CLIP
// vision encoder's input: the shorter side scaled to size, a centered
// size x size crop, channels normalized and laid out CHW.
func PreprocessImage(data []byte, size int) ([]float32, error) {
	if size <= 0 {
		size = clipImageSize
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("empty image")
	}

	// Scale so the shorter side matches size, then crop the center square.
	scale := float64(size) / float64(srcW)
	if srcH < srcW {
		scale = float64(size) / float64(srcH)
	}
	scaledW := float64(srcW) * scale
	scaledH := float64(srcH) * scale
	cropX := (scaledW - float64(size)) / 2
	cropY := (scaledH - float64(size)) / 2

	out := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		srcY := (float64(y) + cropY + 0.5) / scale
		for x := 0; x < size; x++ {
			srcX := (float64(x) + cropX + 0.5) / scale
			r, g, b := sampleBilinear(img, srcX, srcY)
			i := y*size + x
			out[i] = (r - clipMean[0]) / clipStd[0]
			out[plane+i] = (g - clipMean[1]) / clipStd[1]
			out[2*plane+i] = (b - clipMean[2]) / clipStd[2]
		}
	}
	return out, nil
}

// sampleBilinear reads an interpolated RGB sample at fractional coordinates,
// with channel values scaled to [0, 1].
func sampleBilinear(img image.Image, x, y float64) (r, g, b float32) {
	bounds := img.Bounds()
	x0 := int(x)
	y0 := int(y)
	fx := float32(x - float64(x0))
	fy := float32(y - float64(y0))

	r00, g00, b00 := pixelAt(img, bounds, x0, y0)
	r10, g10, b10 := pixelAt(img, bounds, x0+1, y0)
	r01, g01, b01 := pixelAt(img, bounds, x0, y0+1)
	r11, g11, b11 := pixelAt(img, bounds, x0+1, y0+1)

	r = lerp(lerp(r00, r10, fx), lerp(r01, r11, fx), fy)
	g = lerp(lerp(g00, g10, fx), lerp(g01, g11, fx), fy)
	b = lerp(lerp(b00, b10, fx), lerp(b01, b11, fx), fy)
	return r, g, b
}

func pixelAt(img image.Image, bounds image.Rectangle, x, y int) (float32, float32, float32) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x > bounds.Dx()-1 {
		x = bounds.Dx() - 1
	}
	if y > bounds.Dy()-1 {
		y = bounds.Dy() - 1
	}
	r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
	return float32(r) / 65535, float32(g) / 65535, float32(b) / 65535
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
