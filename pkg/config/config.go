package config

import (
	"os"
	"strconv"
)

// Config is read from the environment once at the entrypoints. Every
// component receives explicit values from here; nothing else reads ambient
// process state.
type Config struct {
	GoogleApiKey      string
	DatabaseURL       string
	ReasoningModel    string
	FastModel         string
	Port              string
	SearchProvider    string
	SearchAPIKey      string
	TavilyAPIKey      string
	InitialQueryCount int
	MaxRounds         int
	MaxResults        int
	CallTimeoutSecs   int
	EmbeddingModel    string
	ChunkSize         int
	ChunkOverlap      int
}

func Load() *Config {
	return &Config{
		GoogleApiKey:      getEnv("GOOGLE_API_KEY", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		ReasoningModel:    getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:         getEnv("FAST_MODEL", "gemini-3-flash-preview"),
		Port:              getEnv("PORT", "3000"),
		SearchProvider:    getEnv("SEARCH_PROVIDER", "searchapi"),
		SearchAPIKey:      getEnv("SEARCH_API_KEY", ""),
		TavilyAPIKey:      getEnv("TAVILY_API_KEY", ""),
		InitialQueryCount: getEnvAsInt("INITIAL_QUERY_COUNT", 3),
		MaxRounds:         getEnvAsInt("MAX_ROUNDS", 2),
		MaxResults:        getEnvAsInt("SEARCH_RESULTS_PER_QUERY", 8),
		CallTimeoutSecs:   getEnvAsInt("CALL_TIMEOUT_SECONDS", 90),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		ChunkSize:         getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:      getEnvAsInt("CHUNK_OVERLAP", 200),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
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
