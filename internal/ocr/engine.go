// Package ocr implements the OCR Engine (§4.4 of SPEC_FULL.md): text
// extraction, per-character confidence estimation, candidate-string
// generation, and optional accuracy auditing against a known expected
// value.
package ocr

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"

	"github.com/platerecon/platerecon/pkg/models"
)

// Engine is the capability the orchestrator and OCR retry loop depend on.
type Engine interface {
	// ExtractText runs OCR over img and returns the aggregate result.
	ExtractText(img image.Image) (models.OCRResult, error)
	// CompareToExpected runs ExtractText then scores the result against
	// expected with word- and character-error rate.
	CompareToExpected(img image.Image, expected string) (models.OCRResult, float64, float64, error)
	// Close releases the underlying Tesseract client. Safe to call once.
	Close() error
}

// TesseractEngine wraps a gosseract.Client. A gosseract.Client is NOT safe
// for concurrent use (§9 / teacher's image_analyzer.go comment on
// tesseractClient) -- the Job Runner pool (internal/runner) constructs one
// TesseractEngine per worker goroutine rather than sharing a single client.
const defaultMinSegmentConfidence = 0.3

type TesseractEngine struct {
	client        *gosseract.Client
	minConfidence float64
}

// NewTesseractEngine constructs a client configured for license-plate text:
// single-line page segmentation and an alphanumeric whitelist. minConfidence
// gates which word-level segments contribute to ExtractText's aggregate
// text/confidence (§4.4); pass <= 0 to use the default of 0.3.
func NewTesseractEngine(lang string, minConfidence float64) (*TesseractEngine, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, err
	}
	client.SetPageSegMode(gosseract.PSM_SINGLE_LINE)
	if err := client.SetWhitelist("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"); err != nil {
		client.Close()
		return nil, err
	}
	if minConfidence <= 0 {
		minConfidence = defaultMinSegmentConfidence
	}
	return &TesseractEngine{client: client, minConfidence: minConfidence}, nil
}

func (e *TesseractEngine) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// encodeForOCR mirrors the teacher's AnalyzeWithOCR encoding fallback:
// JPEG first, PNG if JPEG encoding fails.
func encodeForOCR(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 95}); err != nil {
		buf.Reset()
		if err := png.Encode(buf, img); err != nil {
			return nil, errors.New("failed to encode image for OCR processing (tried both JPEG and PNG): " + err.Error())
		}
	}
	return buf.Bytes(), nil
}

// ExtractText runs word-level OCR and aggregates every segment whose
// confidence clears e.minConfidence (default 0.3): their texts are
// concatenated in engine order into OCRResult.Text, OCRResult.Confidence is
// the arithmetic mean of the accepted segments' confidences (0 if none
// cleared the bar), and every character of every accepted segment produces
// a CharacterResult positioned by its offset in the concatenated text
// (§4.4). Segments holds every raw word-level detection, accepted or not,
// so callers needing the full set (e.g. GetCandidates) don't re-run OCR.
func (e *TesseractEngine) ExtractText(img image.Image) (models.OCRResult, error) {
	encoded, err := encodeForOCR(img)
	if err != nil {
		return models.OCRResult{}, err
	}

	if err := e.client.SetImageFromBytes(encoded); err != nil {
		return models.OCRResult{}, err
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		logrus.WithError(err).Warn("ocr bounding box extraction failed")
		return models.OCRResult{}, err
	}

	segments := make([]models.OCRSegment, 0, len(boxes))
	for _, b := range boxes {
		segments = append(segments, models.OCRSegment{
			BoundingBox: models.BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
			Text:       b.Word,
			Confidence: float64(b.Confidence) / 100.0,
		})
	}

	var textParts []string
	var characters []models.CharacterResult
	var confidenceSum float64
	accepted := 0
	pos := 0

	for _, seg := range segments {
		if seg.Confidence < e.minConfidence {
			continue
		}
		textParts = append(textParts, seg.Text)
		confidenceSum += seg.Confidence
		accepted++
		for _, r := range seg.Text {
			characters = append(characters, models.CharacterResult{
				Char:       string(r),
				Position:   pos,
				Confidence: seg.Confidence,
			})
			pos++
		}
	}

	overallConfidence := 0.0
	if accepted > 0 {
		overallConfidence = confidenceSum / float64(accepted)
	}

	return models.OCRResult{
		Text:       strings.TrimSpace(strings.Join(textParts, "")),
		Confidence: overallConfidence,
		Characters: characters,
		Segments:   segments,
	}, nil
}

// Candidate is one (text, confidence) pair drawn from an OCRResult's raw
// segments, independent of the min-confidence bar applied by ExtractText.
type Candidate struct {
	Text       string
	Confidence float64
}

// GetCandidates returns every raw segment of result with confidence >=
// minConfidence, sorted by confidence descending (§4.4).
func GetCandidates(result models.OCRResult, minConfidence float64) []Candidate {
	candidates := make([]Candidate, 0, len(result.Segments))
	for _, seg := range result.Segments {
		if seg.Confidence < minConfidence {
			continue
		}
		candidates = append(candidates, Candidate{Text: seg.Text, Confidence: seg.Confidence})
	}
	for i := 1; i < len(candidates); i++ {
		j := i
		for j > 0 && candidates[j-1].Confidence < candidates[j].Confidence {
			candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
			j--
		}
	}
	return candidates
}

// GetLowConfidencePositions returns the positions of every character in
// result.Characters whose confidence is below threshold (§4.4).
func GetLowConfidencePositions(result models.OCRResult, threshold float64) []int {
	var positions []int
	for _, c := range result.Characters {
		if c.Confidence < threshold {
			positions = append(positions, c.Position)
		}
	}
	return positions
}

// CompareToExpected computes word-error-rate and character-error-rate
// against expected, using the same libraries as the teacher's accuracy
// audit path (AnalyzeWithOCR).
func (e *TesseractEngine) CompareToExpected(img image.Image, expected string) (models.OCRResult, float64, float64, error) {
	result, err := e.ExtractText(img)
	if err != nil {
		return result, 0, 0, err
	}
	if expected == "" {
		return result, 0, 0, nil
	}

	expectedLower := strings.ToLower(expected)
	ocrLower := strings.ToLower(result.Text)

	werValue, _ := wer.WER(strings.Fields(expectedLower), strings.Fields(ocrLower))

	var cerValue float64
	runesRef := []rune(expectedLower)
	if len(runesRef) > 0 {
		runesOcr := []rune(ocrLower)
		cerValue = float64(levenshtein.Distance(string(runesRef), string(runesOcr))) / float64(len(runesRef))
	}

	return result, werValue, cerValue, nil
}
