package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all environment-driven tunables for the recognition service:
// the HTTP surface (inherited from the original image-inspection service) and
// the recognition pipeline's own thresholds, retry budget, and queue policy.
type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64

	// Recognition pipeline tunables (RecognitionConfig, §3 of SPEC_FULL.md).
	NeedsReviewThreshold  float64
	AutoAcceptThreshold   float64
	MaxProcessingAttempts int
	MinOCRConfidence      float64
	DetectionConfidence   float64
	DetectionPadding      int
	DefaultRegion         string
	EnableEnhancedRetry   bool

	// Job runner / queue policy.
	JobTimeout      time.Duration
	QueueRetryBase  time.Duration
	QueueMaxRetries int
	StorageBackend  string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 20*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB

		NeedsReviewThreshold:  parseFloatOrDefault("RECOGNITION_NEEDS_REVIEW_THRESHOLD", 0.6),
		AutoAcceptThreshold:   parseFloatOrDefault("RECOGNITION_AUTO_ACCEPT_THRESHOLD", 0.85),
		MaxProcessingAttempts: int(parseIntOrDefault("RECOGNITION_MAX_ATTEMPTS", 3)),
		MinOCRConfidence:      parseFloatOrDefault("RECOGNITION_MIN_OCR_CONFIDENCE", 0.3),
		DetectionConfidence:   parseFloatOrDefault("RECOGNITION_DETECTION_CONFIDENCE", 0.5),
		DetectionPadding:      int(parseIntOrDefault("RECOGNITION_DETECTION_PADDING", 10)),
		DefaultRegion:         getEnvOrDefault("RECOGNITION_DEFAULT_REGION", "BR"),
		EnableEnhancedRetry:   parseBoolOrDefault("RECOGNITION_ENABLE_ENHANCED_RETRY", true),

		JobTimeout:      parseDurationOrDefault("JOB_TIMEOUT", 5*time.Minute),
		QueueRetryBase:  parseDurationOrDefault("QUEUE_RETRY_BASE_DELAY", 5*time.Second),
		QueueMaxRetries: int(parseIntOrDefault("QUEUE_MAX_RETRIES", 3)),
		StorageBackend:  getEnvOrDefault("STORAGE_BACKEND", "http"),
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.RequestTimeout <= 0 || cfg.ImageFetchTimeout <= 0 || cfg.AnalysisTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			cfg.RequestTimeout, cfg.ImageFetchTimeout, cfg.AnalysisTimeout)
	}
	if cfg.NeedsReviewThreshold <= 0 || cfg.NeedsReviewThreshold > 1 {
		return nil, fmt.Errorf("RECOGNITION_NEEDS_REVIEW_THRESHOLD must be in (0,1] (got %f)", cfg.NeedsReviewThreshold)
	}
	if cfg.AutoAcceptThreshold <= 0 || cfg.AutoAcceptThreshold > 1 {
		return nil, fmt.Errorf("RECOGNITION_AUTO_ACCEPT_THRESHOLD must be in (0,1] (got %f)", cfg.AutoAcceptThreshold)
	}
	if cfg.MaxProcessingAttempts < 1 {
		return nil, fmt.Errorf("RECOGNITION_MAX_ATTEMPTS must be >= 1 (got %d)", cfg.MaxProcessingAttempts)
	}
	if cfg.StorageBackend != "http" && cfg.StorageBackend != "azure" {
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %q", cfg.StorageBackend)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
