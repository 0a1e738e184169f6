package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported backends.
const (
	ProviderNative = "native"
	ProviderOpenAI = "openai"

	IndexBackendFile   = "file"
	IndexBackendQdrant = "qdrant"
)

// Config holds all configuration for the application.
type Config struct {
	LLMProvider        string
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	// EmbeddingDimension is the expected vector size. Zero disables the client-side check;
	// the index still refuses to mix dimensions.
	EmbeddingDimension int
	EmbeddingBatchSize int
	// EmbeddingRPS paces embedding requests. Zero means unlimited.
	EmbeddingRPS      float64
	EmbeddingTimeout  time.Duration
	CompletionTimeout time.Duration
	FetchTimeout      time.Duration

	TopK            int
	MaxContextChars int
	Temperature     float32
	MaxTokens       int
	ChunkSize       int
	ChunkOverlap    int

	StorageDir       string
	SourcesFile      string
	IndexBackend     string
	QdrantURL        string
	QdrantCollection string

	DBPath    string
	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// FilesDir is where fetched HTML and extracted text live.
func (c *Config) FilesDir() string { return filepath.Join(c.StorageDir, "files") }

// ChunksDir is where chunk files are written.
func (c *Config) ChunksDir() string { return filepath.Join(c.FilesDir(), "chunks") }

// IndexDir is where the flat index generations are persisted.
func (c *Config) IndexDir() string { return filepath.Join(c.StorageDir, "index") }

// RegistryPath is the source registry mapping file.
func (c *Config) RegistryPath() string { return filepath.Join(c.FilesDir(), "url_mapping.json") }

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates the values that are set.
// If a .env file exists in the current directory or one of its parents, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	llmBaseURL := getEnv("LLM_BASE_URL", "http://localhost:1234")

	cfg := &Config{
		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", ProviderNative)),
		LLMBaseURL:   strings.TrimRight(llmBaseURL, "/"),
		LLMModelName: getEnv("LLM_MODEL", "local-model"),
		LLMAPIKey:    getEnv("LLM_API_KEY", "lm-studio"),
		// Embeddings default to the same server; LM Studio serves both endpoints.
		EmbeddingBaseURL:   strings.TrimRight(getEnv("EMBEDDING_BASE_URL", llmBaseURL), "/"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL", "text-embedding-multilingual-e5-base"),
		StorageDir:         getEnv("STORAGE_DIR", "./storage"),
		SourcesFile:        getEnv("SOURCES_FILE", "sources.txt"),
		IndexBackend:       strings.ToLower(getEnv("INDEX_BACKEND", IndexBackendFile)),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "cases"),
		DBPath:             getEnv("DB_PATH", "./data/ragbot.db"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	switch cfg.LLMProvider {
	case ProviderNative, ProviderOpenAI:
	default:
		return nil, fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderNative, ProviderOpenAI, cfg.LLMProvider)
	}
	switch cfg.IndexBackend {
	case IndexBackendFile, IndexBackendQdrant:
	default:
		return nil, fmt.Errorf("INDEX_BACKEND must be %q or %q, got %q", IndexBackendFile, IndexBackendQdrant, cfg.IndexBackend)
	}

	ints := []struct {
		key string
		def int
		min int
		dst *int
	}{
		{"EMBEDDING_DIMENSION", 0, 0, &cfg.EmbeddingDimension},
		{"EMBEDDING_BATCH_SIZE", 16, 1, &cfg.EmbeddingBatchSize},
		{"TOP_K", 4, 1, &cfg.TopK},
		{"MAX_CONTEXT_CHARS", 6000, 1, &cfg.MaxContextChars},
		{"MAX_TOKENS", 512, 0, &cfg.MaxTokens},
		{"CHUNK_SIZE", 800, 1, &cfg.ChunkSize},
		{"CHUNK_OVERLAP", 100, 0, &cfg.ChunkOverlap},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.def)
		if err != nil {
			return nil, err
		}
		if n < v.min {
			return nil, fmt.Errorf("%s must be at least %d, got %d", v.key, v.min, n)
		}
		*v.dst = n
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"EMBEDDING_TIMEOUT", 30 * time.Second, &cfg.EmbeddingTimeout},
		{"COMPLETION_TIMEOUT", 60 * time.Second, &cfg.CompletionTimeout},
		{"FETCH_TIMEOUT", 15 * time.Second, &cfg.FetchTimeout},
	}
	for _, v := range durations {
		d, err := getEnvDuration(v.key, v.def)
		if err != nil {
			return nil, err
		}
		*v.dst = d
	}

	rps, err := strconv.ParseFloat(getEnv("EMBEDDING_RPS", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("EMBEDDING_RPS must be a valid number: %w", err)
	}
	if rps < 0 {
		return nil, fmt.Errorf("EMBEDDING_RPS must not be negative")
	}
	cfg.EmbeddingRPS = rps

	temperature, err := strconv.ParseFloat(getEnv("TEMPERATURE", "0.2"), 32)
	if err != nil {
		return nil, fmt.Errorf("TEMPERATURE must be a valid number: %w", err)
	}
	if temperature < 0 || temperature > 2 {
		return nil, fmt.Errorf("TEMPERATURE must be between 0 and 2, got %v", temperature)
	}
	cfg.Temperature = float32(temperature)

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", cfg.LogFormat)
	}

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.ChunksDir(), cfg.IndexDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

// getEnvDuration accepts Go duration strings ("30s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", raw)
}
