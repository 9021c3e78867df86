package models

import "time"

// BoundingBox is a pixel-space rectangle, clamped to its source image extents.
// Invariant: 0 <= X, 0 <= Y, X+Width <= image width, Y+Height <= image height.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Corners returns the box in (x1,y1,x2,y2) corner form.
func (b BoundingBox) Corners() (x1, y1, x2, y2 int) {
	return b.X, b.Y, b.X + b.Width, b.Y + b.Height
}

// Clamp returns a copy of b clamped to an image of the given width/height.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	x1, y1, x2, y2 := b.Corners()
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > width {
		x2 = width
	}
	if y2 > height {
		y2 = height
	}
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// DetectionResult is one accepted detection emitted by a plate detector.
type DetectionResult struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
	ClassName   string      `json:"class_name"`
}

// ImageQuality is the output of the quality assessor (§4.1 of SPEC_FULL.md).
// All four scalar fields are clipped to [0,1]; higher is better for
// BlurScore and ContrastScore.
type ImageQuality struct {
	BlurScore      float64  `json:"blur_score"`
	ContrastScore  float64  `json:"contrast_score"`
	BrightnessScore float64 `json:"brightness_score"`
	NoiseLevel     float64  `json:"noise_level"`
	IsSkewed       bool     `json:"is_skewed"`
	SkewAngle      *float64 `json:"skew_angle,omitempty"`
}

// CharacterResult is a single recognized character with its estimated
// confidence and offset within the concatenated OCR text.
type CharacterResult struct {
	Char       string  `json:"char"`
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence"`
}

// OCRSegment is one raw word-level detection from the OCR engine.
type OCRSegment struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"`
}

// OCRResult is the aggregate output of one extract_text call (§4.4).
type OCRResult struct {
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Characters []CharacterResult `json:"characters,omitempty"`
	Segments   []OCRSegment      `json:"segments,omitempty"`
}

// Correction records one position-level character substitution applied by
// the validator while soft-matching a candidate against a plate format.
type Correction struct {
	Position  int    `json:"position"`
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Reason    string `json:"reason"`
}

// ValidationResult is the outcome of validating one OCR candidate string
// against the plate format registry (§4.5). MatchScore is the registry's
// raw, UNCORRECTED soft-match score, carried into the correction-path
// Confidence without being recomputed after correction. The orchestrator's
// confidence fusion (§4.6) reads Confidence, not MatchScore.
type ValidationResult struct {
	Text         string       `json:"text"`
	OriginalText string       `json:"original_text"`
	Confidence   float64      `json:"confidence"`
	MatchScore   float64      `json:"match_score"`
	Region       string       `json:"region,omitempty"`
	FormatName   string       `json:"format_name,omitempty"`
	Corrections  []Correction `json:"corrections,omitempty"`
	IsValid      bool         `json:"is_valid"`
}

// RecognitionMetadata accumulates per-job bookkeeping produced across the
// orchestrator's stages (§4.6 step 8).
type RecognitionMetadata struct {
	Attempts       int               `json:"attempts"`
	StagesApplied  []string          `json:"stages_applied"`
	Quality        *ImageQuality     `json:"quality,omitempty"`
}

// RecognitionResult is the final, per-image output of the orchestrator (§3).
type RecognitionResult struct {
	PlateNumber        *string              `json:"plate_number"`
	ConfidenceScore    float64              `json:"confidence_score"`
	DetectionConfidence float64             `json:"detection_confidence"`
	OCRConfidence      float64              `json:"ocr_confidence"`
	BoundingBox        *BoundingBox         `json:"bounding_box,omitempty"`
	PlateRegion        *string              `json:"plate_region,omitempty"`
	NeedsReview        bool                 `json:"needs_review"`
	Metadata           RecognitionMetadata  `json:"metadata"`
}

// ImageMetadata contains metadata about a fetched/persisted image.
type ImageMetadata struct {
	ContentType   string `json:"content_type"`
	ContentLength int64  `json:"content_length"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Format        string `json:"format"`
}

// ValidationError represents a structured request validation error.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// JobStatus enumerates the lifecycle states of a recognition job (§6).
type JobStatus string

const (
	JobStatusNotStarted  JobStatus = "NOT_STARTED"
	JobStatusPending     JobStatus = "PENDING"
	JobStatusCompleted   JobStatus = "COMPLETED"
	JobStatusFailed      JobStatus = "FAILED"
	JobStatusNeedsReview JobStatus = "NEEDS_REVIEW"
)

// RecognitionJob is the persisted job row the HTTP surface and job runner
// operate on (§6).
type RecognitionJob struct {
	ID                  string       `json:"id"`
	ImageURL            string       `json:"image_url"`
	Status              JobStatus    `json:"status"`
	PlateNumber         *string      `json:"plate_number,omitempty"`
	ErrorMessage        *string      `json:"error_message,omitempty"`
	ConfidenceScore     *float64     `json:"confidence_score,omitempty"`
	DetectionConfidence *float64     `json:"detection_confidence,omitempty"`
	OCRConfidence       *float64     `json:"ocr_confidence,omitempty"`
	NeedsReview         bool         `json:"needs_review"`
	BoundingBox         *BoundingBox `json:"bounding_box,omitempty"`
	PlateRegion         *string      `json:"plate_region,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`

	// ExpectedPlateText is an optional submission-time hint carrying the
	// known-correct plate text for a regression fixture. When present, the
	// job runner audits the OCR result against it and persists the
	// resulting error rates below (§4.4's accuracy-auditing hook).
	ExpectedPlateText  *string  `json:"expected_plate_text,omitempty"`
	WordErrorRate      *float64 `json:"word_error_rate,omitempty"`
	CharacterErrorRate *float64 `json:"character_error_rate,omitempty"`
}
