/**
 * Configuration for the text extraction worker
 *
 * Loads configuration from environment variables. When CONFIG_FILE names a
 * YAML file of KEY: value pairs, those values act as defaults underneath the
 * environment; a variable set in the environment always wins.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (queue + result cache)
	RedisURL     string
	QueueBackend string
	QueueName    string

	// PostgreSQL configuration
	DatabaseURL string

	// Qdrant chunk index configuration; disabled when QdrantURL is empty
	QdrantURL        string
	QdrantCollection string

	// VoyageAI key for chunk embeddings; indexing disabled when empty
	VoyageAPIKey string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds
	MaxFileSize       int64
	MaxPages          int
	ImageConcurrency  int
	ResultCacheTTL    int // seconds, 0 disables

	// Tesseract configuration
	TesseractPath      string
	TessdataPrefix     string
	OCRLanguages       []string
	OCRParallelConfigs bool

	// Default extraction options
	ExtractImages       bool
	PreserveLayout      bool
	ConfidenceThreshold float64

	// Temporary directory for the PDF reader
	TempDir string

	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	env, err := newEnvSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RedisURL:            env.getOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueBackend:        env.getOrDefault("QUEUE_BACKEND", "redis"),
		QueueName:           env.getOrDefault("QUEUE_NAME", "textextract:jobs"),
		DatabaseURL:         env.getOrDefault("DATABASE_URL", ""),
		QdrantURL:           env.getOrDefault("QDRANT_URL", ""),
		QdrantCollection:    env.getOrDefault("QDRANT_COLLECTION", "textextract_chunks"),
		VoyageAPIKey:        env.getOrDefault("VOYAGE_API_KEY", ""),
		WorkerConcurrency:   env.getIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:   env.getIntOrDefault("PROCESSING_TIMEOUT", 300000),    // 5 minutes
		MaxFileSize:         env.getInt64OrDefault("MAX_FILE_SIZE", 50*1024*1024), // 50MB
		MaxPages:            env.getIntOrDefault("MAX_PAGES", 100),
		ImageConcurrency:    env.getIntOrDefault("IMAGE_CONCURRENCY", 1),
		ResultCacheTTL:      env.getIntOrDefault("RESULT_CACHE_TTL", 86400),
		TesseractPath:       env.getOrDefault("TESSERACT_PATH", "/usr/bin/tesseract"),
		TessdataPrefix:      env.getOrDefault("TESSDATA_PREFIX", ""),
		OCRLanguages:        env.getListOrDefault("OCR_LANGUAGES", []string{"eng"}),
		OCRParallelConfigs:  env.getBoolOrDefault("OCR_PARALLEL_CONFIGS", false),
		ExtractImages:       env.getBoolOrDefault("EXTRACT_IMAGES", true),
		PreserveLayout:      env.getBoolOrDefault("PRESERVE_LAYOUT", true),
		ConfidenceThreshold: env.getFloatOrDefault("CONFIDENCE_THRESHOLD", 0.7),
		TempDir:             env.getOrDefault("TEMP_DIR", os.TempDir()),
		LogLevel:            env.getOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.QueueBackend != "redis" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	if c.MaxPages < 1 || c.MaxPages > 10000 {
		return fmt.Errorf("MAX_PAGES must be between 1 and 10000, got %d", c.MaxPages)
	}

	if c.ImageConcurrency < 1 || c.ImageConcurrency > 32 {
		return fmt.Errorf("IMAGE_CONCURRENCY must be between 1 and 32, got %d", c.ImageConcurrency)
	}

	if c.ResultCacheTTL < 0 {
		return fmt.Errorf("RESULT_CACHE_TTL must not be negative, got %d", c.ResultCacheTTL)
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be between 0 and 1, got %v", c.ConfidenceThreshold)
	}

	if len(c.OCRLanguages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES must name at least one language")
	}

	return nil
}

// envSource resolves keys from the process environment, then the optional file
type envSource struct {
	file map[string]string
}

func newEnvSource(path string) (*envSource, error) {
	src := &envSource{file: map[string]string{}}
	if path == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	for k, v := range raw {
		switch val := v.(type) {
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			src.file[strings.ToUpper(k)] = strings.Join(parts, ",")
		case nil:
		default:
			src.file[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}

	return src, nil
}

func (s *envSource) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

// getOrDefault gets the value or returns default
func (s *envSource) getOrDefault(key, defaultValue string) string {
	if value := s.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (s *envSource) getIntOrDefault(key string, defaultValue int) int {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func (s *envSource) getInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func (s *envSource) getFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func (s *envSource) getBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getListOrDefault splits a comma separated value, dropping blanks
func (s *envSource) getListOrDefault(key string, defaultValue []string) []string {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
