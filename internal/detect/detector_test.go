package detect

import (
	"image"
	"image/color"
	"testing"

	"github.com/platerecon/platerecon/pkg/models"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 100, B: 100, A: 255})
		}
	}
	return img
}

func TestFallbackDetector_ReturnsCentredBox(t *testing.T) {
	fb := NewFallbackDetector(0.1)
	img := testImage(200, 100)

	det, ok := fb.Detect(img)
	if !ok {
		t.Fatal("expected fallback detector to return a detection")
	}
	if det.Confidence != fallbackConfidence {
		t.Errorf("expected confidence %f, got %f", fallbackConfidence, det.Confidence)
	}
	if det.BoundingBox.X <= 0 || det.BoundingBox.Y <= 0 {
		t.Errorf("expected centred box with positive margins, got %+v", det.BoundingBox)
	}
	if det.BoundingBox.X+det.BoundingBox.Width > 200 || det.BoundingBox.Y+det.BoundingBox.Height > 100 {
		t.Errorf("box exceeds image bounds: %+v", det.BoundingBox)
	}
}

type stubInferer struct {
	loadErr error
	raw     []RawDetection
	inferErr error
}

func (s *stubInferer) Load(string) error { return s.loadErr }
func (s *stubInferer) Infer(image.Image) ([]RawDetection, error) {
	return s.raw, s.inferErr
}

func TestModelDetector_AcceptsPlateClassAboveThreshold(t *testing.T) {
	inferer := &stubInferer{
		raw: []RawDetection{
			{ClassName: "License_Plate", Confidence: 0.9, Box: models.BoundingBox{X: 10, Y: 10, Width: 50, Height: 20}},
			{ClassName: "license_plate", Confidence: 0.2, Box: models.BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}},
		},
	}
	det := NewModelDetector(inferer, "model.onnx", 0.5)
	img := testImage(200, 100)

	result, ok := det.Detect(img)
	if !ok {
		t.Fatal("expected a detection above the confidence threshold")
	}
	if result.Confidence != 0.9 {
		t.Errorf("expected the higher-confidence detection, got %f", result.Confidence)
	}
}

func TestModelDetector_FallsBackWhenLoadFails(t *testing.T) {
	inferer := &stubInferer{loadErr: errTestLoad}
	det := NewModelDetector(inferer, "model.onnx", 0.5)
	img := testImage(200, 100)

	result, ok := det.Detect(img)
	if !ok {
		t.Fatal("expected fallback detection when model load fails")
	}
	if result.ClassName != "plate_fallback" {
		t.Errorf("expected fallback class name, got %q", result.ClassName)
	}
}

func TestModelDetector_InferenceFailureReturnsEmpty(t *testing.T) {
	inferer := &stubInferer{inferErr: errTestInfer}
	det := NewModelDetector(inferer, "model.onnx", 0.5)
	img := testImage(200, 100)

	all := det.DetectAll(img)
	if all != nil {
		t.Errorf("expected nil detections on per-image inference failure, got %v", all)
	}
}

var (
	errTestLoad  = fmtErr("load failed")
	errTestInfer = fmtErr("infer failed")
)

type fmtErr string

func (e fmtErr) Error() string { return string(e) }
