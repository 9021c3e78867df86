package preprocess

import (
	"image"
	"image/color"

	"github.com/platerecon/platerecon/internal/quality"
)

// toGray reuses the quality assessor's grayscale conversion (returns the
// input unchanged if it is already *image.Gray) so the pipeline and the
// assessor never disagree on luminance weighting.
func toGray(img image.Image) *image.Gray {
	return quality.ToGray(img)
}

func grayColor(v float64) color.Gray {
	return color.Gray{Y: clampByte(v)}
}
