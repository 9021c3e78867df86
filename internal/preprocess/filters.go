package preprocess

import (
	"image"
	"image/color"
	"math"
)

// gaussianKernel1D returns a normalized 1D Gaussian kernel with the given
// sigma, sized to cover +/-3 sigma.
func gaussianKernel1D(sigma float64) []float64 {
	if sigma <= 0 {
		sigma = 1
	}
	radius := int(math.Ceil(sigma * 3))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// gaussianBlur applies a separable Gaussian blur to a grayscale image.
func gaussianBlur(gray *image.Gray, sigma float64) *image.Gray {
	kernel := gaussianKernel1D(sigma)
	radius := len(kernel) / 2
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	horizontal := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sx := clampInt(x+k, 0, w-1)
				sum += float64(gray.GrayAt(bounds.Min.X+sx, bounds.Min.Y+y).Y) * kernel[k+radius]
			}
			horizontal[y*w+x] = sum
		}
	}

	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sy := clampInt(y+k, 0, h-1)
				sum += horizontal[sy*w+x] * kernel[k+radius]
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: clampByte(sum)})
		}
	}
	return out
}

// unsharpMask sharpens gray by out = strength*src + (1-strength)*blur,
// clamped to [0,255]. Grounded on the default sigma=3, strength=1.5 from
// the preprocessing spec's sharpening sub-routine.
func unsharpMask(gray *image.Gray, sigma, strength float64) *image.Gray {
	blurred := gaussianBlur(gray, sigma)
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			src := float64(gray.GrayAt(x, y).Y)
			bl := float64(blurred.GrayAt(x, y).Y)
			v := strength*src + (1-strength)*bl
			out.SetGray(x, y, color.Gray{Y: clampByte(v)})
		}
	}
	return out
}

// bilateralFilter is a direct edge-preserving smoothing filter: each output
// pixel is a Gaussian-weighted average over a (d x d) neighbourhood,
// weighted jointly by spatial distance (sigmaSpace) and intensity
// difference (sigmaColor). Strength presets (d, sigmaColor, sigmaSpace) are
// (9,12,12) light, (11,17,17) normal, (15,25,25) heavy, per the
// preprocessing spec's denoise option.
func bilateralFilter(gray *image.Gray, d int, sigmaColor, sigmaSpace float64) *image.Gray {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	radius := d / 2
	out := image.NewGray(bounds)

	twoSigmaColorSq := 2 * sigmaColor * sigmaColor
	twoSigmaSpaceSq := 2 * sigmaSpace * sigmaSpace

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			centerX, centerY := bounds.Min.X+x, bounds.Min.Y+y
			center := float64(gray.GrayAt(centerX, centerY).Y)

			var weightSum, valueSum float64
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					sx := clampInt(x+dx, 0, w-1)
					sy := clampInt(y+dy, 0, h-1)
					sample := float64(gray.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy).Y)

					spatialDist := float64(dx*dx + dy*dy)
					colorDist := (sample - center) * (sample - center)
					weight := math.Exp(-spatialDist/twoSigmaSpaceSq) * math.Exp(-colorDist/twoSigmaColorSq)

					weightSum += weight
					valueSum += weight * sample
				}
			}

			v := center
			if weightSum > 0 {
				v = valueSum / weightSum
			}
			out.SetGray(centerX, centerY, color.Gray{Y: clampByte(v)})
		}
	}
	return out
}

// DenoiseStrength names a bilateral-filter preset.
type DenoiseStrength string

const (
	DenoiseLight  DenoiseStrength = "light"
	DenoiseNormal DenoiseStrength = "normal"
	DenoiseHeavy  DenoiseStrength = "heavy"
)

func denoiseParams(strength DenoiseStrength) (d int, sigmaColor, sigmaSpace float64) {
	switch strength {
	case DenoiseLight:
		return 9, 12, 12
	case DenoiseHeavy:
		return 15, 25, 25
	default:
		return 11, 17, 17
	}
}

func denoise(gray *image.Gray, strength DenoiseStrength) *image.Gray {
	d, sigmaColor, sigmaSpace := denoiseParams(strength)
	return bilateralFilter(gray, d, sigmaColor, sigmaSpace)
}

// clahe applies contrast-limited adaptive histogram equalization over an
// 8x8 tile grid with the given clip limit, then bilinearly interpolates
// tile mappings across pixel positions to avoid tile-boundary artifacts.
func clahe(gray *image.Gray, clipLimit float64) *image.Gray {
	const tilesX, tilesY = 8, 8
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return gray
	}

	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY

	// mappings[ty][tx] is a 256-entry cumulative histogram mapping for tile (tx,ty).
	mappings := make([][][256]uint8, tilesY)
	for ty := 0; ty < tilesY; ty++ {
		mappings[ty] = make([][256]uint8, tilesX)
		for tx := 0; tx < tilesX; tx++ {
			mappings[ty][tx] = buildClaheTileMapping(gray, bounds, tx, ty, tileW, tileH, w, h, clipLimit)
		}
	}

	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			mapped := interpolateClahe(mappings, x, y, tileW, tileH, tilesX, tilesY, uint8(v+0.5))
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: mapped})
		}
	}
	return out
}

func buildClaheTileMapping(gray *image.Gray, bounds image.Rectangle, tx, ty, tileW, tileH, w, h int, clipLimit float64) [256]uint8 {
	var hist [256]int
	x0 := tx * tileW
	y0 := ty * tileH
	x1 := clampInt(x0+tileW, 0, w)
	y1 := clampInt(y0+tileH, 0, h)

	count := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y]++
			count++
		}
	}

	if count == 0 {
		var identity [256]uint8
		for i := range identity {
			identity[i] = uint8(i)
		}
		return identity
	}

	clipValue := int(clipLimit * float64(count) / 256.0)
	if clipValue < 1 {
		clipValue = 1
	}

	excess := 0
	for i, c := range hist {
		if c > clipValue {
			excess += c - clipValue
			hist[i] = clipValue
		}
	}
	redistribute := excess / 256
	for i := range hist {
		hist[i] += redistribute
	}

	var mapping [256]uint8
	cumulative := 0
	for i, c := range hist {
		cumulative += c
		scaled := float64(cumulative) * 255.0 / float64(count)
		mapping[i] = clampByte(scaled)
	}
	return mapping
}

func interpolateClahe(mappings [][][256]uint8, x, y, tileW, tileH, tilesX, tilesY int, v uint8) uint8 {
	tx := float64(x)/float64(tileW) - 0.5
	ty := float64(y)/float64(tileH) - 0.5

	tx0 := int(math.Floor(tx))
	ty0 := int(math.Floor(ty))
	fx := tx - float64(tx0)
	fy := ty - float64(ty0)

	tx0c := clampInt(tx0, 0, tilesX-1)
	tx1c := clampInt(tx0+1, 0, tilesX-1)
	ty0c := clampInt(ty0, 0, tilesY-1)
	ty1c := clampInt(ty0+1, 0, tilesY-1)

	v00 := float64(mappings[ty0c][tx0c][v])
	v10 := float64(mappings[ty0c][tx1c][v])
	v01 := float64(mappings[ty1c][tx0c][v])
	v11 := float64(mappings[ty1c][tx1c][v])

	top := v00*(1-fx) + v10*fx
	bottom := v01*(1-fx) + v11*fx
	return clampByte(top*(1-fy) + bottom*fy)
}

// adaptiveThreshold binarizes gray using a Gaussian-weighted local mean
// (computed via gaussianBlur as the smoothing kernel) minus c as the
// per-pixel threshold.
func adaptiveThreshold(gray *image.Gray, blockSize int, c float64) *image.Gray {
	sigma := float64(blockSize) / 6.0
	if sigma <= 0 {
		sigma = 1
	}
	localMean := gaussianBlur(gray, sigma)
	bounds := gray.Bounds()
	out := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(gray.GrayAt(x, y).Y)
			threshold := float64(localMean.GrayAt(x, y).Y) - c
			if v > threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

// dilate grows bright (255) regions using a 3x3 rectangular structuring
// element, run `iterations` times.
func dilate(gray *image.Gray, iterations int) *image.Gray {
	return morphology(gray, iterations, true)
}

// erode shrinks bright (255) regions using a 3x3 rectangular structuring
// element, run `iterations` times.
func erode(gray *image.Gray, iterations int) *image.Gray {
	return morphology(gray, iterations, false)
}

func morphology(gray *image.Gray, iterations int, isDilate bool) *image.Gray {
	current := gray
	for i := 0; i < iterations; i++ {
		current = morphologyPass(current, isDilate)
	}
	return current
}

func morphologyPass(gray *image.Gray, isDilate bool) *image.Gray {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(bounds)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			extreme := uint8(0)
			if !isDilate {
				extreme = 255
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sx := clampInt(x+dx, 0, w-1)
					sy := clampInt(y+dy, 0, h-1)
					v := gray.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy).Y
					if isDilate && v > extreme {
						extreme = v
					}
					if !isDilate && v < extreme {
						extreme = v
					}
				}
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: extreme})
		}
	}
	return out
}
