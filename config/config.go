package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"knowledge/types"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	ServerAddr  string
	DatabaseURL string

	Strategy            types.Strategy
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingCacheSize  int
	EmbeddingRateLimit  float64
	OpenAIKey           string
	OpenAIBaseURL       string
	OllamaURL           string
	ChatProvider        string
	ChatModel           string
	TokenizerEncoding   string

	Chunk     ChunkConfig
	Retrieval RetrievalConfig

	IngestConcurrency int
	DefaultLanguage   string
	StorageDir        string
	Loader            LoaderConfig
	LogLevel          string
}

type ChunkConfig struct {
	TargetTokens  int
	OverlapTokens int
	MaxTokens     int
}

type RetrievalConfig struct {
	PoolSize           int
	TopK               int
	ScoreThreshold     float64
	WeakMatchThreshold float64
}

type LoaderConfig struct {
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	CollectionID   string
	MonitoringTime time.Duration
	CropTop        float64
	CropBottom     float64
}

// Load reads the process configuration from the environment.
func Load() *Config {
	return &Config{
		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
		DatabaseURL: databaseURL(),

		Strategy:            parseStrategy(getEnv("RETRIEVAL_STRATEGY", string(types.StrategySemantic))),
		EmbeddingProvider:   strings.ToLower(getEnv("EMBEDDING_PROVIDER", "openai")),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingCacheSize:  getEnvInt("EMBEDDING_CACHE_SIZE", 4096),
		EmbeddingRateLimit:  getEnvFloat("EMBEDDING_RATE_LIMIT", 0),
		OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		OllamaURL:           strings.TrimRight(getEnv("OLLAMA_URL", "http://localhost:11434"), "/"),
		ChatProvider:        strings.ToLower(getEnv("CHAT_PROVIDER", "openai")),
		ChatModel:           getEnv("CHAT_MODEL", "gpt-4.1-mini"),
		TokenizerEncoding:   getEnv("TOKENIZER_ENCODING", "o200k_base"),

		Chunk: ChunkConfig{
			TargetTokens:  getEnvInt("CHUNK_TARGET_TOKENS", 1000),
			OverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 125),
			MaxTokens:     getEnvInt("CHUNK_MAX_TOKENS", 1200),
		},
		Retrieval: RetrievalConfig{
			PoolSize:           getEnvInt("RETRIEVAL_POOL_SIZE", 30),
			TopK:               getEnvInt("RETRIEVAL_TOP_K", 6),
			ScoreThreshold:     getEnvFloat("RETRIEVAL_SCORE_THRESHOLD", 0.30),
			WeakMatchThreshold: getEnvFloat("WEAK_MATCH_SCORE_THRESHOLD", 0.50),
		},

		IngestConcurrency: getEnvInt("INGEST_CONCURRENCY", 4),
		DefaultLanguage:   getEnv("DEFAULT_LANGUAGE", "sv"),
		StorageDir:        getEnv("STORAGE_DIR", "./data/storage"),
		Loader: LoaderConfig{
			SourceDir:      getEnv("LOADER_SOURCE_DIR", "./data/in"),
			ArchiveDir:     getEnv("LOADER_ARCHIVE_DIR", "./data/archive"),
			BadDir:         getEnv("LOADER_BAD_DIR", "./data/bad"),
			CollectionID:   getEnv("LOADER_COLLECTION_ID", ""),
			MonitoringTime: getEnvDuration("LOADER_MONITORING_TIME", 3*time.Second),
			CropTop:        getEnvFloat("PDF_CROP_TOP", 0),
			CropBottom:     getEnvFloat("PDF_CROP_BOTTOM", 0),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func (c *Config) Validate() error {
	var problems []string
	if c.Strategy != types.StrategySemantic && c.Strategy != types.StrategyLexical {
		problems = append(problems, fmt.Sprintf("unknown retrieval strategy %q", c.Strategy))
	}
	if c.Strategy == types.StrategySemantic {
		switch c.EmbeddingProvider {
		case "openai", "ollama":
		default:
			problems = append(problems, fmt.Sprintf("unknown embedding provider %q", c.EmbeddingProvider))
		}
		if c.EmbeddingDimensions <= 0 {
			problems = append(problems, "embedding dimensions must be positive")
		}
	}
	switch c.ChatProvider {
	case "openai", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("unknown chat provider %q", c.ChatProvider))
	}
	if c.Chunk.MaxTokens <= 0 || c.Chunk.TargetTokens <= 0 || c.Chunk.OverlapTokens < 0 {
		problems = append(problems, "chunk token sizes must be positive")
	}
	if c.Chunk.TargetTokens > c.Chunk.MaxTokens {
		problems = append(problems, "chunk target exceeds chunk max")
	}
	if c.Chunk.OverlapTokens >= c.Chunk.MaxTokens {
		problems = append(problems, "chunk overlap must be below chunk max")
	}
	if c.Retrieval.PoolSize <= 0 || c.Retrieval.TopK <= 0 {
		problems = append(problems, "retrieval pool size and top k must be positive")
	}
	if c.Retrieval.TopK > c.Retrieval.PoolSize {
		problems = append(problems, "retrieval top k exceeds pool size")
	}
	if c.Retrieval.ScoreThreshold < -1 || c.Retrieval.ScoreThreshold > 1 {
		problems = append(problems, "retrieval score threshold out of range")
	}
	if c.Retrieval.WeakMatchThreshold < -1 || c.Retrieval.WeakMatchThreshold > 1 {
		problems = append(problems, "weak match threshold out of range")
	}
	if c.IngestConcurrency <= 0 {
		problems = append(problems, "ingest concurrency must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// parseStrategy also accepts the provider names used by older deployments.
func parseStrategy(s string) types.Strategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "semantic", "openai", "vector":
		return types.StrategySemantic
	case "lexical", "fulltext":
		return types.StrategyLexical
	}
	return types.Strategy(s)
}

func databaseURL() string {
	if url, ok := os.LookupEnv("DATABASE_URL"); ok && url != "" {
		return url
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		getEnv("PG_HOST", "localhost"),
		getEnvInt("PG_PORT", 5432),
		getEnv("PG_USER", "postgres"),
		getEnv("PG_PASS", "postgres"),
		getEnv("PG_DB_NAME", "knowledge"),
	)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}
