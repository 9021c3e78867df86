// Package recognize implements the Recognition Orchestrator (§4.6 of
// SPEC_FULL.md): the stateless pipeline driving one image to one
// RecognitionResult over the quality/detect/ocr/validate collaborators.
package recognize

import (
	"image"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platerecon/platerecon/internal/detect"
	"github.com/platerecon/platerecon/internal/ocr"
	"github.com/platerecon/platerecon/internal/preprocess"
	"github.com/platerecon/platerecon/internal/quality"
	"github.com/platerecon/platerecon/internal/validate"
	"github.com/platerecon/platerecon/pkg/models"
)

// Config enumerates the recognition tunables (§3's RecognitionConfig).
// DetectionConfidence is applied by the detector, not read by the
// orchestrator itself.
type Config struct {
	DetectionConfidence   float64
	DetectionPadding      int
	MinOCRConfidence      float64
	DefaultRegion         string
	NeedsReviewThreshold  float64
	AutoAcceptThreshold   float64
	EnableEnhancedRetry   bool
	MaxProcessingAttempts int
}

// Orchestrator drives the full recognition pipeline over its collaborators.
type Orchestrator struct {
	assessor  quality.Assessor
	detector  detect.Detector
	engine    ocr.Engine
	validator *validate.Validator
	pipeline  *preprocess.Pipeline
	cfg       Config
}

// New constructs an Orchestrator over its collaborators and config.
func New(assessor quality.Assessor, detector detect.Detector, engine ocr.Engine, validator *validate.Validator, pipeline *preprocess.Pipeline, cfg Config) *Orchestrator {
	return &Orchestrator{
		assessor:  assessor,
		detector:  detector,
		engine:    engine,
		validator: validator,
		pipeline:  pipeline,
		cfg:       cfg,
	}
}

var (
	mercosulPattern = regexp.MustCompile(`[A-Z]{3}\d[A-Z]\d{2}`)
	oldPattern      = regexp.MustCompile(`[A-Z]{3}\d{4}`)
)

type candidate struct {
	text       string
	confidence float64
}

// Process runs the full §4.6 pipeline over img and returns one
// RecognitionResult.
func (o *Orchestrator) Process(img image.Image) models.RecognitionResult {
	attempts := 0
	var stagesApplied []string

	q := o.assessor.Assess(img)
	metadata := models.RecognitionMetadata{Quality: &q}

	crop, box, detectionConfidence := o.detectOrSkip(img)
	if box == nil && detectionConfidence == 0.8 {
		// Only the plate-like fast path returns no box with confidence 0.8.
		stagesApplied = append(stagesApplied, "pre_cropped_plate")
	}

	initialOCR, err := o.engine.ExtractText(crop)
	attempts++
	if err != nil {
		logrus.WithError(err).Warn("initial ocr extraction failed")
		initialOCR = models.OCRResult{}
	}
	stagesApplied = append(stagesApplied, "initial_ocr")

	candidates := buildCandidates(initialOCR, o.cfg.MinOCRConfidence)
	validation := o.validateBest(candidates, initialOCR, o.cfg.DefaultRegion)
	ocrConfidence := initialOCR.Confidence
	overall := o.overallConfidence(detectionConfidence, ocrConfidence, validation.Confidence)

	best := resultState{
		validation:           validation,
		detectionConfidence:  detectionConfidence,
		ocrConfidence:        ocrConfidence,
		overall:              overall,
	}

	if o.cfg.EnableEnhancedRetry && overall < o.cfg.NeedsReviewThreshold {
		best, attempts, stagesApplied = o.retry(crop, detectionConfidence, best, attempts, stagesApplied)
	}

	metadata.Attempts = attempts
	metadata.StagesApplied = stagesApplied

	var plateNumber *string
	if best.validation.IsValid || best.validation.Confidence > 0.3 {
		text := best.validation.Text
		plateNumber = &text
	}

	var region *string
	if best.validation.Region != "" {
		r := best.validation.Region
		region = &r
	}

	return models.RecognitionResult{
		PlateNumber:         plateNumber,
		ConfidenceScore:     best.overall,
		DetectionConfidence: best.detectionConfidence,
		OCRConfidence:       best.ocrConfidence,
		BoundingBox:         box,
		PlateRegion:         region,
		NeedsReview:         best.overall < o.cfg.NeedsReviewThreshold,
		Metadata:            metadata,
	}
}

// CompareToExpected audits the OCR engine's raw output against a known-good
// plate text, for a regression-fixture job (§4.4's accuracy-auditing hook).
// It runs OCR directly over img rather than the full pipeline: the hook
// measures the engine's own accuracy, not the orchestrator's.
func (o *Orchestrator) CompareToExpected(img image.Image, expected string) (wordErrorRate, characterErrorRate float64, err error) {
	_, wer, cer, err := o.engine.CompareToExpected(img, expected)
	return wer, cer, err
}

type resultState struct {
	validation          models.ValidationResult
	detectionConfidence float64
	ocrConfidence       float64
	overall             float64
}

// detectOrSkip implements §4.6 step 2: the "already plate-like" fast path
// bypasses detection entirely, using the whole image with a fixed
// detection_confidence of 0.8 and a nil bounding box (§9 pinned
// resolution: subsequent retries then also operate on the whole image,
// since no crop occurred).
func (o *Orchestrator) detectOrSkip(img image.Image) (crop image.Image, box *models.BoundingBox, detectionConfidence float64) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > 0 && h > 0 {
		ratio := float64(w) / float64(h)
		if w < 800 && h < 300 && ratio >= 1.5 && ratio <= 7.0 {
			return img, nil, 0.8
		}
	}

	det, ok := o.detector.Detect(img)
	if !ok {
		return img, nil, 0.5
	}

	cropped := o.detector.CropPlate(img, det, o.cfg.DetectionPadding)
	b := det.BoundingBox
	return cropped, &b, det.Confidence
}

// buildCandidates implements §4.6 step 4's candidate fusion.
func buildCandidates(result models.OCRResult, minConfidence float64) []candidate {
	seen := make(map[string]bool)
	var candidates []candidate

	add := func(text string, confidence float64) {
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		candidates = append(candidates, candidate{text: text, confidence: confidence})
	}

	segCandidates := ocr.GetCandidates(result, minConfidence)
	sort.SliceStable(segCandidates, func(i, j int) bool {
		return segCandidates[i].Confidence > segCandidates[j].Confidence
	})
	for _, c := range segCandidates {
		add(c.Text, c.Confidence)
	}

	if result.Confidence >= minConfidence {
		add(result.Text, result.Confidence)
	}

	accepted := make([]models.OCRSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		if seg.Confidence >= minConfidence {
			accepted = append(accepted, seg)
		}
	}
	for i := range accepted {
		for runLen := 2; runLen <= 3 && i+runLen <= len(accepted); runLen++ {
			run := accepted[i : i+runLen]
			var b strings.Builder
			var sum float64
			for _, s := range run {
				b.WriteString(s.Text)
				sum += s.Confidence
			}
			add(b.String(), sum/float64(len(run)))
		}
	}

	// Pattern extraction runs over a snapshot of what's been assembled so
	// far, since it derives new candidates from existing ones.
	base := make([]candidate, len(candidates))
	copy(base, candidates)
	for _, c := range base {
		normalized := normalizeForPattern(c.text)
		for _, match := range mercosulPattern.FindAllString(normalized, -1) {
			add(match, 0.95*c.confidence)
		}
		for _, match := range oldPattern.FindAllString(normalized, -1) {
			add(match, 0.95*c.confidence)
		}
	}

	return candidates
}

func normalizeForPattern(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// validateBest implements §4.6 step 5: validate every candidate
// region-restricted to defaultRegion, picking the best by the validator's
// own batch ordering, falling back to the top-ranked candidate (discounted,
// marked invalid) if none validates.
func (o *Orchestrator) validateBest(candidates []candidate, ocrResult models.OCRResult, defaultRegion string) models.ValidationResult {
	if len(candidates) == 0 {
		return models.ValidationResult{}
	}

	texts := make([]string, len(candidates))
	confs := make([]float64, len(candidates))
	for i, c := range candidates {
		texts[i] = c.text
		confs[i] = c.confidence
	}

	results := o.validator.ValidateBatch(texts, confs, defaultRegion)
	for _, r := range results {
		if r.IsValid || r.Confidence > 0 {
			return r
		}
	}

	top := candidates[0]
	fallback := o.validator.Validate(top.text, top.confidence, defaultRegion)
	fallback.IsValid = false
	fallback.Confidence = 0.3 * top.confidence
	return fallback
}

// overallConfidence implements §4.6 step 6's fusion formula:
// 0.3·detection_conf + 0.4·ocr_conf + 0.3·validation_conf.
func (o *Orchestrator) overallConfidence(detectionConfidence, ocrConfidence, validationConfidence float64) float64 {
	return 0.3*detectionConfidence + 0.4*ocrConfidence + 0.3*validationConfidence
}

// retryConfigs is the fixed, ordered preprocessing configuration list from
// §4.6 step 7.
func retryConfigs() []preprocess.ParameterizedConfig {
	return []preprocess.ParameterizedConfig{
		{Denoise: preprocess.DenoiseNormal, Sharpen: true, CLAHEClip: 2.0},
		{Denoise: preprocess.DenoiseHeavy, Sharpen: true, CLAHEClip: 3.0},
		{AdaptiveThreshold: true, ThresholdBlockSize: 11, ThresholdC: 2},
		{Morphology: true, DilateIterations: 1, ErodeIterations: 1},
	}
}

// retry implements §4.6 step 7: iterate the fixed preprocessing configs
// against the original crop, re-running OCR/candidate-assembly/validation
// each time, keeping the best overall score and early-exiting once it
// clears auto_accept_threshold. Per-attempt failures are logged and
// skipped, never propagated.
func (o *Orchestrator) retry(crop image.Image, detectionConfidence float64, best resultState, attempts int, stagesApplied []string) (resultState, int, []string) {
	for i, cfg := range retryConfigs() {
		if attempts >= o.cfg.MaxProcessingAttempts {
			break
		}

		processed := o.pipeline.ProcessWithConfig(crop, cfg)
		result, err := o.engine.ExtractText(processed)
		attempts++
		stagesApplied = append(stagesApplied, retryStageName(i))

		if err != nil {
			logrus.WithError(err).WithField("retry_index", i).Warn("retry preprocessing attempt failed, skipping")
			continue
		}

		candidates := buildCandidates(result, o.cfg.MinOCRConfidence)
		validation := o.validateBest(candidates, result, o.cfg.DefaultRegion)
		ocrConfidence := result.Confidence
		overall := o.overallConfidence(detectionConfidence, ocrConfidence, validation.Confidence)

		if overall > best.overall {
			best = resultState{
				validation:          validation,
				detectionConfidence: detectionConfidence,
				ocrConfidence:       ocrConfidence,
				overall:             overall,
			}
		}

		if best.overall >= o.cfg.AutoAcceptThreshold {
			break
		}
	}
	return best, attempts, stagesApplied
}

func retryStageName(index int) string {
	names := []string{"retry_denoise_normal", "retry_denoise_heavy", "retry_adaptive_threshold", "retry_morphology"}
	if index >= 0 && index < len(names) {
		return names[index]
	}
	return "retry_unknown"
}
