/**
 * Configuration for the Bubble Extraction Worker
 *
 * Loads configuration from environment variables. Storage backends (Redis
 * queue, Postgres run store, Qdrant dialogue index) are optional so the
 * worker can run one-shot against a local directory with nothing but the
 * upstream service URLs configured.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds worker configuration
type Config struct {
	// Upstream services
	DetectorURL  string // region detection endpoint
	VisionURL    string // vision-language endpoint (transcription + classification)
	VisionAPIKey string

	// Redis configuration (queue mode)
	RedisURL  string
	QueueName string

	// PostgreSQL run store (optional)
	DatabaseURL string

	// Qdrant dialogue index (optional)
	QdrantURL        string
	QdrantCollection string
	EmbeddingAPIKey  string

	// One-shot mode: process this directory and exit instead of consuming
	// the queue
	InputDir string

	// Output paths
	CachePath string
	AuditDir  string // region crop PNGs for manual review
	DebugDir  string // raw detection dumps + annotated pages, empty = disabled

	// Pipeline tuning
	PageConcurrency    int
	SpatialDedupEnable bool
	SpatialDedupTol    float64
	ClassifyDelayMs    int
	ProcessingTimeout  int // per-run timeout in milliseconds (queue mode)

	// Tesseract fallback transcription tier
	TesseractEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DetectorURL:        getEnvOrDefault("DETECTOR_URL", "http://localhost:8601"),
		VisionURL:          getEnvOrDefault("VISION_URL", "http://localhost:8602"),
		VisionAPIKey:       getEnvOrDefault("VISION_API_KEY", ""),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		QueueName:          getEnvOrDefault("QUEUE_NAME", "comic:process"),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:          getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:   getEnvOrDefault("QDRANT_COLLECTION", "comic_bubbles"),
		EmbeddingAPIKey:    getEnvOrDefault("EMBEDDING_API_KEY", ""),
		InputDir:           getEnvOrDefault("INPUT_DIR", ""),
		CachePath:          getEnvOrDefault("CACHE_PATH", "bubbles.json"),
		AuditDir:           getEnvOrDefault("AUDIT_DIR", "crops"),
		DebugDir:           getEnvOrDefault("DEBUG_DIR", ""),
		PageConcurrency:    getEnvAsIntOrDefault("PAGE_CONCURRENCY", 2),
		SpatialDedupEnable: getEnvAsBoolOrDefault("SPATIAL_DEDUP", false),
		SpatialDedupTol:    getEnvAsFloatOrDefault("SPATIAL_DEDUP_TOLERANCE", 0.15),
		ClassifyDelayMs:    getEnvAsIntOrDefault("CLASSIFY_DELAY_MS", 1000),
		ProcessingTimeout:  getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 1800000), // 30 minutes
		TesseractEnabled:   getEnvAsBoolOrDefault("TESSERACT_FALLBACK", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DetectorURL == "" {
		return fmt.Errorf("DETECTOR_URL is required")
	}

	if c.VisionURL == "" {
		return fmt.Errorf("VISION_URL is required")
	}

	if c.InputDir == "" && c.RedisURL == "" {
		return fmt.Errorf("either INPUT_DIR (one-shot mode) or REDIS_URL (queue mode) is required")
	}

	if c.CachePath == "" {
		return fmt.Errorf("CACHE_PATH is required")
	}

	if c.PageConcurrency < 1 || c.PageConcurrency > 16 {
		return fmt.Errorf("PAGE_CONCURRENCY must be between 1 and 16, got %d", c.PageConcurrency)
	}

	if c.SpatialDedupTol <= 0 || c.SpatialDedupTol >= 1 {
		return fmt.Errorf("SPATIAL_DEDUP_TOLERANCE must be in (0, 1), got %f", c.SpatialDedupTol)
	}

	if c.ClassifyDelayMs < 0 || c.ClassifyDelayMs > 60000 {
		return fmt.Errorf("CLASSIFY_DELAY_MS must be between 0 and 60000, got %d", c.ClassifyDelayMs)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
