package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/platerecon/platerecon/pkg/models"
)

func TestGetCandidates_FiltersAndSortsByConfidenceDescending(t *testing.T) {
	result := models.OCRResult{
		Segments: []models.OCRSegment{
			{Text: "ABC", Confidence: 0.2},
			{Text: "1234", Confidence: 0.9},
			{Text: "XYZ", Confidence: 0.5},
		},
	}

	candidates := GetCandidates(result, 0.3)

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates above threshold, got %d", len(candidates))
	}
	if candidates[0].Text != "1234" || candidates[1].Text != "XYZ" {
		t.Errorf("expected descending confidence order, got %+v", candidates)
	}
}

func TestGetCandidates_EmptyWhenNoneClearThreshold(t *testing.T) {
	result := models.OCRResult{
		Segments: []models.OCRSegment{{Text: "ABC", Confidence: 0.1}},
	}
	candidates := GetCandidates(result, 0.5)
	if len(candidates) != 0 {
		t.Errorf("expected no candidates, got %+v", candidates)
	}
}

func TestGetLowConfidencePositions_ReturnsOnlyBelowThreshold(t *testing.T) {
	result := models.OCRResult{
		Characters: []models.CharacterResult{
			{Char: "A", Position: 0, Confidence: 0.9},
			{Char: "B", Position: 1, Confidence: 0.2},
			{Char: "C", Position: 2, Confidence: 0.4},
		},
	}

	positions := GetLowConfidencePositions(result, 0.5)
	if len(positions) != 2 || positions[0] != 1 || positions[1] != 2 {
		t.Errorf("expected positions [1 2], got %v", positions)
	}
}

func TestEncodeForOCR_ProducesNonEmptyJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}

	encoded, err := encodeForOCR(img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(encoded) == 0 {
		t.Error("expected non-empty encoded bytes")
	}
}
