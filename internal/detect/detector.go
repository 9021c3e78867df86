// Package detect implements the Plate Detector (§4.2 of SPEC_FULL.md): a
// model-backed detector with lazy initialization and a centred-crop
// fallback used when no inference backend is available or model load
// fails.
package detect

import (
	"image"
	"strings"
	"sync"

	"github.com/platerecon/platerecon/internal/errors"
	"github.com/platerecon/platerecon/pkg/models"
)

// Detector is the capability set the orchestrator depends on.
type Detector interface {
	// Detect returns the highest-confidence accepted detection, or false if
	// none was found.
	Detect(img image.Image) (models.DetectionResult, bool)
	// DetectAll returns every accepted detection sorted by confidence
	// descending.
	DetectAll(img image.Image) []models.DetectionResult
	// CropPlate expands det's bounding box by padding pixels on each side,
	// clamped to img's bounds, and returns the cropped subimage.
	CropPlate(img image.Image, det models.DetectionResult, padding int) image.Image
}

// Inferer is the external object-detection inference engine the
// model-backed detector delegates to. No ONNX/TFLite/gocv inference
// runtime was available anywhere in the retrieved example pack, so callers
// inject their own (a NullInferer ships as the default wiring and always
// reports unavailability, so the system runs end-to-end on the fallback
// detector until a real backend is plugged in).
type Inferer interface {
	// Load performs one-time model loading; called at most once, guarded
	// by a sync.Once in ModelDetector.
	Load(modelPath string) error
	// Infer returns raw (class_name, confidence, bbox) detections for img.
	Infer(img image.Image) ([]RawDetection, error)
}

// RawDetection is one unfiltered detection returned by an Inferer before
// class-name/confidence-threshold acceptance.
type RawDetection struct {
	ClassName  string
	Confidence float64
	Box        models.BoundingBox
}

// plateClassNames are accepted verbatim (case/underscore/hyphen
// insensitive) or via substring match on "plate".
var plateClassNames = map[string]bool{
	"licenseplate": true,
	"plate":        true,
	"numberplate":  true,
	"carplate":     true,
	"vehicleplate": true,
}

var vehicleClassNames = map[string]bool{
	"car":     true,
	"truck":   true,
	"bus":     true,
	"vehicle": true,
}

func normalizeClassName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, " ", "")
	return name
}

func isAcceptedClass(name string) bool {
	n := normalizeClassName(name)
	if plateClassNames[n] {
		return true
	}
	if strings.Contains(n, "plate") {
		return true
	}
	return false
}

func isVehicleFallbackClass(name string) bool {
	return vehicleClassNames[normalizeClassName(name)]
}

// ModelDetector delegates to an injected Inferer, loaded lazily on first
// use behind a sync.Once barrier (§9: "construct cheap, load on first
// use").
type ModelDetector struct {
	modelPath           string
	confidenceThreshold float64

	inferer Inferer
	once    sync.Once
	loadErr error

	fallback Detector
}

// NewModelDetector constructs a detector that will lazily load inferer on
// first Detect/DetectAll call. If loading fails, every call transparently
// falls back to a centred-crop detector (§4.2 failure semantics).
func NewModelDetector(inferer Inferer, modelPath string, confidenceThreshold float64) *ModelDetector {
	return &ModelDetector{
		modelPath:           modelPath,
		confidenceThreshold: confidenceThreshold,
		inferer:             inferer,
		fallback:            NewFallbackDetector(0.1),
	}
}

func (d *ModelDetector) ensureLoaded() error {
	d.once.Do(func() {
		d.loadErr = d.inferer.Load(d.modelPath)
	})
	return d.loadErr
}

func (d *ModelDetector) DetectAll(img image.Image) []models.DetectionResult {
	if err := d.ensureLoaded(); err != nil {
		return d.fallback.DetectAll(img)
	}

	raw, err := d.inferer.Infer(img)
	if err != nil {
		// Per-image inference failure returns an empty detection list,
		// not a fallback to the centred crop (§4.2).
		return nil
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	hasPlateClass := false
	for _, r := range raw {
		if isAcceptedClass(r.ClassName) {
			hasPlateClass = true
			break
		}
	}

	var accepted []models.DetectionResult
	for _, r := range raw {
		if r.Confidence < d.confidenceThreshold {
			continue
		}
		accept := isAcceptedClass(r.ClassName)
		if !accept && !hasPlateClass && isVehicleFallbackClass(r.ClassName) {
			accept = true
		}
		if !accept {
			continue
		}
		accepted = append(accepted, models.DetectionResult{
			BoundingBox: r.Box.Clamp(width, height),
			Confidence:  r.Confidence,
			ClassName:   r.ClassName,
		})
	}

	sortByConfidenceDesc(accepted)
	return accepted
}

func (d *ModelDetector) Detect(img image.Image) (models.DetectionResult, bool) {
	all := d.DetectAll(img)
	if len(all) == 0 {
		return models.DetectionResult{}, false
	}
	return all[0], true
}

func (d *ModelDetector) CropPlate(img image.Image, det models.DetectionResult, padding int) image.Image {
	return cropWithPadding(img, det.BoundingBox, padding)
}

func sortByConfidenceDesc(results []models.DetectionResult) {
	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && results[j-1].Confidence < results[j].Confidence {
			results[j-1], results[j] = results[j], results[j-1]
			j--
		}
	}
}

// cropWithPadding is shared by every Detector implementation's CropPlate.
func cropWithPadding(img image.Image, box models.BoundingBox, padding int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	expanded := models.BoundingBox{
		X:      box.X - padding,
		Y:      box.Y - padding,
		Width:  box.Width + 2*padding,
		Height: box.Height + 2*padding,
	}.Clamp(width, height)

	sub := image.NewRGBA(image.Rect(0, 0, expanded.Width, expanded.Height))
	for y := 0; y < expanded.Height; y++ {
		for x := 0; x < expanded.Width; x++ {
			sub.Set(x, y, img.At(bounds.Min.X+expanded.X+x, bounds.Min.Y+expanded.Y+y))
		}
	}
	return sub
}

// NullInferer always reports the model as unavailable, so ModelDetector
// transparently runs on the fallback detector until a real Inferer is
// wired in (the default container wiring, §4.2 expansion note).
type NullInferer struct{}

func (NullInferer) Load(string) error {
	return errors.NewDetectionUnavailableError("no plate-detection inference backend configured", nil)
}

func (NullInferer) Infer(image.Image) ([]RawDetection, error) {
	return nil, errors.NewDetectionUnavailableError("no plate-detection inference backend configured", nil)
}
