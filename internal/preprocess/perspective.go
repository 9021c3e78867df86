package preprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/platerecon/platerecon/internal/quality"
)

const (
	minContourAreaRatio = 0.1
	maxSkewAngleDeg      = 45.0
	minSkewAngleDeg      = 0.5
)

// correctPerspective attempts to find a large, edge-bounded rectangular
// region and crop to it; if none clears minContourAreaRatio of the image
// area, it falls back to a Hough-based deskew rotation. No
// contour-following/polygon-approximation library exists anywhere in the
// retrieved example pack, so the general arbitrary-quadrilateral case is
// approximated by its axis-aligned bounding rectangle (a degenerate quad):
// for an axis-aligned region there is no projective distortion left to
// correct, so "warping" to it reduces to a crop. See DESIGN.md.
func correctPerspective(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	imgArea := float64(bounds.Dx() * bounds.Dy())
	if imgArea == 0 {
		return gray
	}

	if box, ok := largestEdgeBoundingBox(gray); ok {
		area := float64(box.Dx() * box.Dy())
		if area >= minContourAreaRatio*imgArea && box.Dx() >= 10 && box.Dy() >= 10 {
			return cropGray(gray, box)
		}
	}

	return deskewByRotation(gray)
}

// largestEdgeBoundingBox finds the tight bounding box of all Sobel edge
// pixels above the detection threshold.
func largestEdgeBoundingBox(gray *image.Gray) (image.Rectangle, bool) {
	edges := sobelEdgePixelsLocal(gray)
	if len(edges) == 0 {
		return image.Rectangle{}, false
	}

	minX, minY := edges[0].x, edges[0].y
	maxX, maxY := edges[0].x, edges[0].y
	for _, p := range edges[1:] {
		if p.x < minX {
			minX = p.x
		}
		if p.x > maxX {
			maxX = p.x
		}
		if p.y < minY {
			minY = p.y
		}
		if p.y > maxY {
			maxY = p.y
		}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

type edgeXY struct{ x, y int }

// sobelEdgePixelsLocal duplicates the lightweight Sobel-magnitude
// thresholding used by internal/quality/hough.go (kept package-local to
// avoid a cross-package dependency for a five-line helper).
func sobelEdgePixelsLocal(gray *image.Gray) []edgeXY {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	const threshold = 50.0

	var pts []edgeXY
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := sobelGx(gray, bounds, x, y)
			gy := sobelGy(gray, bounds, x, y)
			mag := math.Sqrt(gx*gx + gy*gy)
			if mag > threshold {
				pts = append(pts, edgeXY{x: x, y: y})
			}
		}
	}
	return pts
}

func sobelGx(gray *image.Gray, bounds image.Rectangle, x, y int) float64 {
	p := func(dx, dy int) float64 {
		return float64(gray.GrayAt(bounds.Min.X+x+dx, bounds.Min.Y+y+dy).Y)
	}
	return (p(1, -1) + 2*p(1, 0) + p(1, 1)) - (p(-1, -1) + 2*p(-1, 0) + p(-1, 1))
}

func sobelGy(gray *image.Gray, bounds image.Rectangle, x, y int) float64 {
	p := func(dx, dy int) float64 {
		return float64(gray.GrayAt(bounds.Min.X+x+dx, bounds.Min.Y+y+dy).Y)
	}
	return (p(-1, 1) + 2*p(0, 1) + p(1, 1)) - (p(-1, -1) + 2*p(0, -1) + p(1, -1))
}

func cropGray(gray *image.Gray, box image.Rectangle) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, box.Dx(), box.Dy()))
	bounds := gray.Bounds()
	for y := 0; y < box.Dy(); y++ {
		for x := 0; x < box.Dx(); x++ {
			out.SetGray(x, y, gray.GrayAt(bounds.Min.X+box.Min.X+x, bounds.Min.Y+box.Min.Y+y))
		}
	}
	return out
}

// deskewByRotation estimates a skew angle via the Hough-line median-angle
// rule and rotates the image to cancel it, expanding the canvas to the
// rotated bounding box with a white background. If the estimated angle is
// below minSkewAngleDeg, the image is returned unchanged.
func deskewByRotation(gray *image.Gray) *image.Gray {
	angle, ok := quality.DetectSkewAngle(gray)
	if !ok || math.Abs(angle) < minSkewAngleDeg || math.Abs(angle) > maxSkewAngleDeg {
		return gray
	}
	return rotateGray(gray, -angle)
}

func rotateGray(gray *image.Gray, angleDeg float64) *image.Gray {
	theta := angleDeg * math.Pi / 180.0
	sinT, cosT := math.Sin(theta), math.Cos(theta)

	bounds := gray.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	cx, cy := w/2, h/2

	corners := [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		dx, dy := c[0]-cx, c[1]-cy
		rx := dx*cosT - dy*sinT
		ry := dx*sinT + dy*cosT
		if rx < minX {
			minX = rx
		}
		if rx > maxX {
			maxX = rx
		}
		if ry < minY {
			minY = ry
		}
		if ry > maxY {
			maxY = ry
		}
	}

	newW := int(math.Ceil(maxX - minX))
	newH := int(math.Ceil(maxY - minY))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	out := image.NewGray(image.Rect(0, 0, newW, newH))
	for y := 0; y < newW*newH; y++ {
		// initialize to white background
		out.Pix[y] = 255
	}

	newCx, newCy := float64(newW)/2, float64(newH)/2
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			// inverse-rotate the destination coordinate back into source space
			dx, dy := float64(x)-newCx, float64(y)-newCy
			sx := dx*cosT + dy*sinT + cx
			sy := -dx*sinT + dy*cosT + cy

			ix, iy := int(math.Round(sx)), int(math.Round(sy))
			if ix >= 0 && ix < bounds.Dx() && iy >= 0 && iy < bounds.Dy() {
				out.SetGray(x, y, gray.GrayAt(bounds.Min.X+ix, bounds.Min.Y+iy))
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}
