package quality

import (
	"image"
	"math"
	"sort"
)

// houghLine is one accumulator peak: rho/theta in the standard Hough
// parametrization, reported back as an angle in degrees.
type houghLine struct {
	angleDeg float64
}

const (
	houghRhoStep    = 1.0
	houghThetaStep  = math.Pi / 180
	houghThreshold  = 100
	houghMaxGap     = 10
)

// detectSkewAngle implements the Canny+Hough skew rule from §4.1: Sobel
// gradient magnitude thresholding stands in for Canny edge detection (the
// teacher's existing edge-detection code uses the same Sobel operators for
// its own skew heuristic), binned into a Hough accumulator over (rho,
// theta). Lines with |angle| < 45 degrees contribute their angle; the
// median of those angles is returned. Returns (0, false) when no lines are
// found.
// DetectSkewAngle exposes the Hough-based skew estimate for reuse outside
// the quality assessor (the preprocessing pipeline's deskew fallback).
func DetectSkewAngle(gray *image.Gray) (float64, bool) {
	return detectSkewAngle(gray)
}

func detectSkewAngle(gray *image.Gray) (float64, bool) {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	minLineLength := float64(width) / 4

	edges := sobelEdgePixels(gray)
	if len(edges) == 0 {
		return 0, false
	}

	diag := int(math.Hypot(float64(width), float64(height))) + 1
	numTheta := int(math.Pi / houghThetaStep)
	if numTheta <= 0 {
		numTheta = 180
	}
	numRho := 2*diag + 1

	accumulator := make([][]int, numTheta)
	for i := range accumulator {
		accumulator[i] = make([]int, numRho)
	}

	cosCache := make([]float64, numTheta)
	sinCache := make([]float64, numTheta)
	for t := 0; t < numTheta; t++ {
		theta := float64(t) * houghThetaStep
		cosCache[t] = math.Cos(theta)
		sinCache[t] = math.Sin(theta)
	}

	for _, p := range edges {
		for t := 0; t < numTheta; t++ {
			rho := float64(p.X)*cosCache[t] + float64(p.Y)*sinCache[t]
			rhoIdx := int(math.Round(rho/houghRhoStep)) + diag
			if rhoIdx < 0 || rhoIdx >= numRho {
				continue
			}
			accumulator[t][rhoIdx]++
		}
	}

	var angles []float64
	for t := 0; t < numTheta; t++ {
		for r := 0; r < numRho; r++ {
			votes := accumulator[t][r]
			if votes < houghThreshold {
				continue
			}
			// Approximate the line length supported by this bin by the
			// vote count itself (each vote is one edge pixel consistent
			// with this rho/theta); reject short spurious peaks the same
			// way a probabilistic Hough transform rejects short segments.
			if float64(votes) < minLineLength {
				continue
			}
			theta := float64(t) * houghThetaStep
			// Line angle (direction of the line itself, perpendicular to
			// theta) in degrees, via atan2 convention from §4.1.
			angleDeg := (theta*180/math.Pi - 90)
			for angleDeg > 180 {
				angleDeg -= 360
			}
			for angleDeg < -180 {
				angleDeg += 360
			}
			if math.Abs(angleDeg) < 45 {
				angles = append(angles, angleDeg)
			}
		}
	}

	if len(angles) == 0 {
		return 0, false
	}
	sort.Float64s(angles)
	mid := len(angles) / 2
	var med float64
	if len(angles)%2 == 0 {
		med = (angles[mid-1] + angles[mid]) / 2
	} else {
		med = angles[mid]
	}
	return med, true
}

type edgePoint struct{ X, Y int }

// sobelEdgePixels thresholds Sobel gradient magnitude at 50, the same
// threshold the teacher's DetectSkew/DetectContours use for their own Sobel
// edge passes.
func sobelEdgePixels(gray *image.Gray) []edgePoint {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var points []edgePoint
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			gx := sobelX(gray, x, y)
			gy := sobelY(gray, x, y)
			magnitude := math.Sqrt(float64(gx*gx + gy*gy))
			if magnitude > 50 {
				points = append(points, edgePoint{X: x, Y: y})
			}
		}
	}
	return points
}

func sobelX(gray *image.Gray, x, y int) int {
	return -1*int(gray.GrayAt(x-1, y-1).Y) + 1*int(gray.GrayAt(x+1, y-1).Y) +
		-2*int(gray.GrayAt(x-1, y).Y) + 2*int(gray.GrayAt(x+1, y).Y) +
		-1*int(gray.GrayAt(x-1, y+1).Y) + 1*int(gray.GrayAt(x+1, y+1).Y)
}

func sobelY(gray *image.Gray, x, y int) int {
	return -1*int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x, y-1).Y) - 1*int(gray.GrayAt(x+1, y-1).Y) +
		1*int(gray.GrayAt(x-1, y+1).Y) + 2*int(gray.GrayAt(x, y+1).Y) + 1*int(gray.GrayAt(x+1, y+1).Y)
}
