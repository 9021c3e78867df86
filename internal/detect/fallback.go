package detect

import (
	"image"

	"github.com/platerecon/platerecon/pkg/models"
)

// FallbackDetector returns a single centred box covering
// (1-2*paddingRatio) of each dimension with confidence 0.5, used when the
// model-backed detector cannot be loaded (§4.2).
type FallbackDetector struct {
	paddingRatio float64
}

// NewFallbackDetector creates a fallback detector with the given padding
// ratio (fraction of each dimension trimmed from both sides).
func NewFallbackDetector(paddingRatio float64) *FallbackDetector {
	return &FallbackDetector{paddingRatio: paddingRatio}
}

const fallbackConfidence = 0.5

func (f *FallbackDetector) DetectAll(img image.Image) []models.DetectionResult {
	det, ok := f.Detect(img)
	if !ok {
		return nil
	}
	return []models.DetectionResult{det}
}

func (f *FallbackDetector) Detect(img image.Image) (models.DetectionResult, bool) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return models.DetectionResult{}, false
	}

	marginX := int(float64(width) * f.paddingRatio)
	marginY := int(float64(height) * f.paddingRatio)

	box := models.BoundingBox{
		X:      marginX,
		Y:      marginY,
		Width:  width - 2*marginX,
		Height: height - 2*marginY,
	}.Clamp(width, height)

	return models.DetectionResult{
		BoundingBox: box,
		Confidence:  fallbackConfidence,
		ClassName:   "plate_fallback",
	}, true
}

func (f *FallbackDetector) CropPlate(img image.Image, det models.DetectionResult, padding int) image.Image {
	return cropWithPadding(img, det.BoundingBox, padding)
}
