// Package preprocess implements the Preprocessing Pipeline (§4.3 of
// SPEC_FULL.md): an adaptive pipeline driven by quality metrics and a
// parameterized pipeline applying a fixed, named set of transforms.
package preprocess

import (
	"image"

	"github.com/platerecon/platerecon/pkg/models"
)

const blurThreshold = 0.3

// Pipeline runs both pipeline entry points over a grayscale working copy,
// since every downstream stage (OCR, validation) operates on intensity
// alone. The result is an *image.Gray, or an *image.RGBA holding the
// resized gray values when the resize step is enabled.
type Pipeline struct {
	resizeConfig ResizeConfig
}

// NewPipeline builds a Pipeline. Pass a zero ResizeConfig to disable the
// final resize step.
func NewPipeline(resizeConfig ResizeConfig) *Pipeline {
	return &Pipeline{resizeConfig: resizeConfig}
}

// Process is the adaptive pipeline: it consults quality (if given) to
// decide which corrective stages to run, or runs every stage when
// forceAll is set (§4.3 step list).
func (p *Pipeline) Process(img image.Image, quality *models.ImageQuality, forceAll bool) image.Image {
	gray := toGray(img)

	if forceAll || (quality != nil && quality.IsSkewed) {
		gray = correctPerspective(gray)
	}

	if forceAll || (quality != nil && quality.BlurScore < blurThreshold) {
		gray = unsharpMask(gray, 3, 1.5)
	}

	if forceAll || needsAdaptiveEnhancement(quality) {
		gray = enhanceAdaptive(gray, quality)
	}

	var out image.Image = gray
	if p.resizeConfig.Enabled {
		out = resizeToTarget(out, p.resizeConfig)
	}
	return out
}

func needsAdaptiveEnhancement(q *models.ImageQuality) bool {
	if q == nil {
		return false
	}
	if q.ContrastScore < 0.3 || q.NoiseLevel > 0.3 {
		return true
	}
	if q.BrightnessScore < 0.3 || q.BrightnessScore > 0.7 {
		return true
	}
	return false
}

// enhanceAdaptive implements the adaptive-enhancement sub-routine: CLAHE
// clip limit chosen by contrast score, conditional denoise by noise level,
// and conditional brightness rescaling (§4.3).
func enhanceAdaptive(gray *image.Gray, q *models.ImageQuality) *image.Gray {
	clipLimit := 1.5
	contrast := 1.0
	if q != nil {
		contrast = q.ContrastScore
	}
	switch {
	case contrast < 0.3:
		clipLimit = 4.0
	case contrast < 0.6:
		clipLimit = 2.5
	}
	gray = clahe(gray, clipLimit)

	if q != nil && q.NoiseLevel > 0.3 {
		strength := DenoiseNormal
		if q.NoiseLevel > 0.6 {
			strength = DenoiseHeavy
		}
		gray = denoise(gray, strength)
	}

	if q != nil && (q.BrightnessScore < 0.3 || q.BrightnessScore > 0.7) {
		gray = rescaleBrightness(gray, q.BrightnessScore)
	}

	return gray
}

// rescaleBrightness multiplies every pixel so the image mean approaches
// 0.5*255, clamping the scale factor to [0.5, 2.0] (§4.3).
func rescaleBrightness(gray *image.Gray, brightnessScore float64) *image.Gray {
	current := brightnessScore * 255
	if current <= 0 {
		return gray
	}
	target := 0.5 * 255
	factor := target / current
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 2.0 {
		factor = 2.0
	}

	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(gray.GrayAt(x, y).Y) * factor
			out.SetGray(x, y, grayColor(v))
		}
	}
	return out
}

// ParameterizedConfig names the transforms the ProcessWithConfig entry
// point applies, in the fixed order: denoise, sharpen, CLAHE, adaptive
// threshold, morphology (§4.3).
type ParameterizedConfig struct {
	Denoise DenoiseStrength // "" disables

	Sharpen bool

	CLAHEClip float64 // <= 0 disables

	AdaptiveThreshold   bool
	ThresholdBlockSize  int
	ThresholdC          float64

	Morphology    bool
	DilateIterations int
	ErodeIterations  int
}

// ProcessWithConfig applies only the transforms opts names, in the fixed
// stage order.
func (p *Pipeline) ProcessWithConfig(img image.Image, opts ParameterizedConfig) image.Image {
	gray := toGray(img)

	if opts.Denoise != "" {
		gray = denoise(gray, opts.Denoise)
	}
	if opts.Sharpen {
		gray = unsharpMask(gray, 3, 1.5)
	}
	if opts.CLAHEClip > 0 {
		gray = clahe(gray, opts.CLAHEClip)
	}
	if opts.AdaptiveThreshold {
		blockSize := opts.ThresholdBlockSize
		if blockSize <= 0 {
			blockSize = 11
		}
		gray = adaptiveThreshold(gray, blockSize, opts.ThresholdC)
	}
	if opts.Morphology {
		if opts.DilateIterations > 0 {
			gray = dilate(gray, opts.DilateIterations)
		}
		if opts.ErodeIterations > 0 {
			gray = erode(gray, opts.ErodeIterations)
		}
	}

	var out image.Image = gray
	if p.resizeConfig.Enabled {
		out = resizeToTarget(out, p.resizeConfig)
	}
	return out
}
