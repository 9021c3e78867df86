// Package factory builds the recognition pipeline's pluggable
// collaborators -- the storage backend and the per-worker orchestrator --
// selected by configuration the way the teacher's AnalyzerFactory/
// StorageFactory selected analyzer/storage implementations by type.
package factory

import (
	"fmt"
	"image"
	"os"

	"github.com/platerecon/platerecon/internal/config"
	"github.com/platerecon/platerecon/internal/detect"
	"github.com/platerecon/platerecon/internal/ocr"
	"github.com/platerecon/platerecon/internal/platefmt"
	"github.com/platerecon/platerecon/internal/preprocess"
	"github.com/platerecon/platerecon/internal/quality"
	"github.com/platerecon/platerecon/internal/recognize"
	"github.com/platerecon/platerecon/internal/runner"
	"github.com/platerecon/platerecon/internal/storage"
	"github.com/platerecon/platerecon/internal/validate"
	"github.com/platerecon/platerecon/pkg/models"
)

// CreateStorage builds the BlobStore selected by cfg.StorageBackend
// ("http", the default, or "azure"), finally giving the teacher's
// previously-stubbed CreateStorage("azure") TODO a real implementation.
func CreateStorage(cfg *config.Config, localDir, localBaseURL string) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case "http", "":
		return storage.NewLocalHTTPStore(localDir, localBaseURL, cfg.ImageFetchTimeout)
	case "azure":
		accountName := os.Getenv("AZURE_STORAGE_ACCOUNT")
		accountKey := os.Getenv("AZURE_STORAGE_KEY")
		containerName := os.Getenv("AZURE_STORAGE_CONTAINER")
		if accountName == "" || accountKey == "" || containerName == "" {
			return nil, fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT, AZURE_STORAGE_KEY and AZURE_STORAGE_CONTAINER")
		}
		return storage.NewAzureBlobStore(accountName, accountKey, containerName)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.StorageBackend)
	}
}

// recognitionConfig projects a config.Config onto the orchestrator's own
// tunables (§3 of SPEC_FULL.md).
func recognitionConfig(cfg *config.Config) recognize.Config {
	return recognize.Config{
		DetectionConfidence:    cfg.DetectionConfidence,
		DetectionPadding:       cfg.DetectionPadding,
		MinOCRConfidence:       cfg.MinOCRConfidence,
		DefaultRegion:          cfg.DefaultRegion,
		NeedsReviewThreshold:   cfg.NeedsReviewThreshold,
		AutoAcceptThreshold:    cfg.AutoAcceptThreshold,
		EnableEnhancedRetry:    cfg.EnableEnhancedRetry,
		MaxProcessingAttempts:  cfg.MaxProcessingAttempts,
	}
}

// NewOrchestratorFactory builds a runner.OrchestratorFactory: each call
// constructs a fresh Tesseract OCR engine (not concurrency-safe, §9), paired
// with shared-safe assessor/detector/validator/pipeline collaborators, and
// returns the engine's Close as the worker's shutdown hook.
func NewOrchestratorFactory(cfg *config.Config) runner.OrchestratorFactory {
	rc := recognitionConfig(cfg)
	registry := platefmt.NewDefaultRegistry()
	validator := validate.NewValidator(registry)
	pipeline := preprocess.NewPipeline(preprocess.ResizeConfig{Enabled: true, TargetLongSide: 1000})
	detector := detect.NewModelDetector(detect.NullInferer{}, "", rc.DetectionConfidence)
	assessor := quality.NewAssessor()

	return func() (runner.Recognizer, func() error) {
		engine, err := ocr.NewTesseractEngine("eng", cfg.MinOCRConfidence)
		if err != nil {
			// No working OCR backend: the worker still starts so queued
			// jobs fail fast and visibly instead of blocking forever.
			return brokenRecognizer{err: err}, func() error { return nil }
		}
		orchestrator := recognize.New(assessor, detector, engine, validator, pipeline, rc)
		return orchestrator, engine.Close
	}
}

// brokenRecognizer reports every job FAILED when OCR engine construction
// itself failed -- a model/library load failure is fatal to the job, not to
// the process (§7).
type brokenRecognizer struct{ err error }

func (b brokenRecognizer) Process(image.Image) models.RecognitionResult {
	return models.RecognitionResult{
		NeedsReview: true,
		Metadata:    models.RecognitionMetadata{StagesApplied: []string{"ocr_engine_unavailable: " + b.err.Error()}},
	}
}

func (b brokenRecognizer) CompareToExpected(image.Image, string) (float64, float64, error) {
	return 0, 0, b.err
}
