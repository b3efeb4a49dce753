package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port string

	ElasticURL      string
	ElasticUser     string
	ElasticPassword string
	ElasticTimeout  time.Duration

	DefaultUser       string
	DefaultAPIKey     string
	DefaultCollection string
	DefaultModel      string

	EmbeddingService    string
	EmbeddingURL        string
	EmbeddingAPIKey     string
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration

	ChunkSize    int
	ChunkOverlap int

	ForceRecreate bool
	Debug         bool
	OTelEnabled   bool
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		ElasticURL:      getEnv("ELASTIC_URL", "http://localhost:9200"),
		ElasticUser:     getEnv("ELASTIC_USER", ""),
		ElasticPassword: getSecret("ELASTIC_PASSWORD", "ELASTIC_PASSWORD_FILE", ""),
		ElasticTimeout:  getEnvDuration("ELASTIC_TIMEOUT_SECONDS", 30*time.Second),

		DefaultUser:       getEnv("RAG_DEFAULT_USER", "admin"),
		DefaultAPIKey:     getSecret("RAG_DEFAULT_API_KEY", "RAG_DEFAULT_API_KEY_FILE", ""),
		DefaultCollection: getEnv("RAG_DEFAULT_COLLECTION", "default"),
		DefaultModel:      getEnv("RAG_DEFAULT_MODEL", ""),

		EmbeddingService:    getEnv("EMBEDDING_SERVICE", "hugging_face"),
		EmbeddingURL:        getEnv("EMBEDDING_URL", ""),
		EmbeddingAPIKey:     getSecret("EMBEDDING_API_KEY", "EMBEDDING_API_KEY_FILE", ""),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 384),
		EmbeddingTimeout:    getEnvDuration("EMBEDDING_TIMEOUT_SECONDS", 60*time.Second),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 512),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 16),

		ForceRecreate: getEnvBool("FORCE_RECREATE", false),
		Debug:         getEnvBool("DEBUG", false),
		OTelEnabled:   getEnvBool("OTEL_ENABLED", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getSecret reads envKey directly, falling back to the file named by
// fileEnvKey for secrets mounted on disk.
func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return fallback
}
