package quality

import (
	"image"

	"github.com/platerecon/platerecon/pkg/models"
)

// Assessor computes an ImageQuality snapshot for a decoded image. It is
// pure and deterministic per input (§4.1 of SPEC_FULL.md).
type Assessor interface {
	Assess(img image.Image) models.ImageQuality
}

type assessor struct {
	buffers *laplacianBuffers
}

// NewAssessor creates a quality assessor with its own Laplacian scratch
// buffer pool.
func NewAssessor() Assessor {
	return &assessor{buffers: newLaplacianBuffers()}
}

func (a *assessor) Assess(img image.Image) models.ImageQuality {
	gray := ToGray(img)

	laplacian := a.buffers.computeLaplacian(gray)
	defer a.buffers.release(laplacian)

	q := models.ImageQuality{
		BlurScore:       blurScore(laplacian),
		ContrastScore:   contrastScore(gray),
		BrightnessScore: brightnessScore(gray),
		NoiseLevel:      noiseLevel(laplacian),
	}

	if angle, ok := detectSkewAngle(gray); ok {
		angleCopy := angle
		q.SkewAngle = &angleCopy
		q.IsSkewed = absFloat(angle) > skewThresholdDeg
	} else {
		q.IsSkewed = false
	}

	return q
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ToGray derives a grayscale view of img, reusing the decoded image
// directly when it is already *image.Gray.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}
