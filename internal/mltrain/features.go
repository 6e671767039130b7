package mltrain

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// featureGrid is the side length of the downsampled grayscale grid each
// image is reduced to before classification. Kept small and fixed so the
// resulting feature vector length matches InputSize's spirit (a resize to
// a canonical resolution) without requiring a real tensor/convolution
// stack.
const featureGrid = 16

// FeatureLength is the fixed dimensionality of every image's feature
// vector.
const FeatureLength = featureGrid * featureGrid

// LoadFeatures decodes an image file and reduces it to a fixed-length
// grayscale intensity vector, normalized to [0,1] — the feature
// representation the reference Train implementation classifies on.
func LoadFeatures(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return downsampleGrayscale(img), nil
}

func downsampleGrayscale(img image.Image) []float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	features := make([]float64, FeatureLength)
	if w == 0 || h == 0 {
		return features
	}

	cellW := float64(w) / featureGrid
	cellH := float64(h) / featureGrid

	for gy := 0; gy < featureGrid; gy++ {
		for gx := 0; gx < featureGrid; gx++ {
			x0 := bounds.Min.X + int(float64(gx)*cellW)
			y0 := bounds.Min.Y + int(float64(gy)*cellH)
			x1 := bounds.Min.X + int(float64(gx+1)*cellW)
			y1 := bounds.Min.Y + int(float64(gy+1)*cellH)
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			var sum float64
			var count int
			for y := y0; y < y1 && y < bounds.Max.Y; y++ {
				for x := x0; x < x1 && x < bounds.Max.X; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					gray := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
					sum += gray
					count++
				}
			}
			if count > 0 {
				features[gy*featureGrid+gx] = sum / float64(count)
			}
		}
	}
	return features
}
