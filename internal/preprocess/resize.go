package preprocess

import (
	"image"

	"golang.org/x/image/draw"
)

// ResizeConfig controls the final resize step of the adaptive pipeline.
type ResizeConfig struct {
	Enabled   bool
	TargetLongSide int
}

// resizeToTarget scales img so its longer side equals cfg.TargetLongSide,
// preserving aspect ratio, using the high-quality CatmullRom scaler --
// grounded on the teacher pack's own resize call
// (golang.org/v1 wudi-pdfkit `optimize/images.go`'s `draw.CatmullRom.Scale`).
func resizeToTarget(img image.Image, cfg ResizeConfig) image.Image {
	if !cfg.Enabled || cfg.TargetLongSide <= 0 {
		return img
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return img
	}

	longSide := width
	if height > longSide {
		longSide = height
	}
	if longSide == cfg.TargetLongSide {
		return img
	}

	scale := float64(cfg.TargetLongSide) / float64(longSide)
	newWidth := int(float64(width)*scale + 0.5)
	newHeight := int(float64(height)*scale + 0.5)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
