package config

import "time"

// Defaults shared with packages that are used without a config file.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMaxFileSize  = 50 * 1024 * 1024
	DefaultTemperature  = 0.1
	DefaultModel        = "claude-sonnet-4-5-20250929"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "./data/index"
	}
	if cfg.Storage.ExportDir == "" {
		cfg.Storage.ExportDir = "./exports"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = DefaultModel
	}
	if cfg.Generation.APIKeyEnv == "" {
		cfg.Generation.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 4096
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = DefaultTemperature
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 90 * time.Second
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = DefaultChunkSize
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".pdf"}
	}
	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Search.IndexType == "" {
		cfg.Search.IndexType = "hnsw"
	}
	if cfg.Search.KeywordWeight == 0 && cfg.Search.SemanticWeight == 0 {
		cfg.Search.KeywordWeight = 0.3
		cfg.Search.SemanticWeight = 0.7
	}
	if cfg.Search.CandidatePool == 0 {
		cfg.Search.CandidatePool = 50
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
