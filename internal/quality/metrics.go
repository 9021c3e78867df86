// Package quality implements the recognition pipeline's Quality Assessor:
// blur, contrast, brightness, noise, and skew detection over a grayscale
// view of the input image.
package quality

import (
	"image"
	"math"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Calibration constants from the blur/contrast/noise scoring formulas.
const (
	blurCalibration     = 500.0
	contrastCalibration = 1000.0
	noiseCalibration    = 10.0
	skewThresholdDeg    = 5.0
)

// laplacianBuffers computes the Laplacian convolution once per call and is
// reused by both blur_score and noise_level so the 3x3 kernel pass only
// happens once, mirroring the pooled-scratch-slice idiom the metrics
// calculator this package is grounded on already used for Laplacian
// variance.
type laplacianBuffers struct {
	slicePool sync.Pool
}

func newLaplacianBuffers() *laplacianBuffers {
	return &laplacianBuffers{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// computeLaplacian returns the Laplacian value at every interior pixel.
func (lb *laplacianBuffers) computeLaplacian(gray *image.Gray) []float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	data := lb.slicePool.Get().([]float64)
	data = data[:0]
	if cap(data) < (width-2)*(height-2) {
		data = make([]float64, 0, (width-2)*(height-2))
	}

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)
			data = append(data, -4*center+top+bottom+left+right)
		}
	}
	return data
}

func (lb *laplacianBuffers) release(data []float64) {
	lb.slicePool.Put(data[:0])
}

// blurScore is the Laplacian variance divided by a calibration constant,
// clamped to [0,1]. Higher means sharper.
func blurScore(laplacian []float64) float64 {
	if len(laplacian) == 0 {
		return 0
	}
	v := stat.Variance(laplacian, nil)
	return clamp01(v / blurCalibration)
}

// noiseLevel is the median absolute Laplacian value divided by a
// calibration constant, clamped to [0,1]. Higher means noisier.
func noiseLevel(laplacian []float64) float64 {
	if len(laplacian) == 0 {
		return 0
	}
	abs := make([]float64, len(laplacian))
	for i, v := range laplacian {
		abs[i] = math.Abs(v)
	}
	return clamp01(median(abs) / noiseCalibration)
}

// contrastScore is the standard deviation of the 256-bin intensity
// histogram, divided by a calibration constant, clamped to [0,1].
func contrastScore(gray *image.Gray) float64 {
	var hist [256]float64
	bounds := gray.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}
	return clamp01(stat.StdDev(hist[:], nil) / contrastCalibration)
}

// brightnessScore is mean(gray)/255, computed with the teacher's
// parallel/sequential split depending on image size.
func brightnessScore(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	if width*height < 100000 {
		return brightnessSequential(gray) / 255.0
	}

	numWorkers := runtime.NumCPU()
	if height < numWorkers {
		numWorkers = height
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	results := make(chan float64, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		startY := bounds.Min.Y + i*rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 || endY > bounds.Max.Y {
			endY = bounds.Max.Y
		}
		go func(startY, endY int) {
			defer wg.Done()
			var total float64
			for y := startY; y < endY && y < bounds.Max.Y; y++ {
				for x := bounds.Min.X; x < bounds.Max.X; x++ {
					total += float64(gray.GrayAt(x, y).Y)
				}
			}
			results <- total
		}(startY, endY)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var total float64
	for r := range results {
		total += r
	}
	return (total / float64(width*height)) / 255.0
}

func brightnessSequential(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	var total float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			total += float64(gray.GrayAt(x, y).Y)
		}
	}
	return total / float64(width*height)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
