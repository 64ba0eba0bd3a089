// Package main is the Kessan CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/config"
	"github.com/hyperjump/kessan/internal/embedding"
	"github.com/hyperjump/kessan/internal/export"
	"github.com/hyperjump/kessan/internal/extract"
	"github.com/hyperjump/kessan/internal/indexer"
	"github.com/hyperjump/kessan/internal/llm"
	"github.com/hyperjump/kessan/internal/router"
	"github.com/hyperjump/kessan/internal/search"
	"github.com/hyperjump/kessan/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kessan/config.yaml"

// errReported marks a failure whose details were already written to the output.
var errReported = errors.New("failure already reported")

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "kessan",
		Short: "Question answering and analysis over quarterly financial reports",
		Long: `Kessan ingests quarterly report PDFs into a local hybrid index and runs
insight, comparison, risk and question-answering analyses over them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("kessan version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServerCmd(opts),
		newIngestCmd(opts),
		newAnalyzeCmd(opts),
		newCompaniesCmd(opts),
		newQuartersCmd(opts),
		newStatsCmd(opts),
		newQuestionsCmd(),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory; if neither exists the built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds the logger for a subcommand.
func setup(opts *rootOptions) (*config.Config, string, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || opts.debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, resolved, logger, nil
}

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Index    *search.Index
	Indexer  *indexer.Indexer
	Router   *router.Router
	Exporter *export.Exporter
}

// Close releases the index and the embedder.
func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	idx, err := search.Open(cfg.Storage.IndexDir, embedder,
		search.WithLogger(logger),
		search.WithIndexType(cfg.Search.IndexType),
		search.WithWeights(cfg.Search.KeywordWeight, cfg.Search.SemanticWeight),
		search.WithCandidatePool(cfg.Search.CandidatePool),
	)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	logger.Debug("index opened",
		zap.String("dir", cfg.Storage.IndexDir),
		zap.String("state", idx.State().String()),
		zap.String("type", cfg.Search.IndexType))

	extractor := extract.NewExtractor(
		extract.WithLogger(logger),
		extract.WithMaxFileSize(cfg.Ingest.MaxFileSize),
		extract.WithExtensions(cfg.Ingest.Extensions),
	)
	chunker := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	ing := indexer.NewIndexer(idx, extractor, chunker,
		indexer.WithLogger(logger),
		indexer.WithWorkers(cfg.Ingest.Workers),
	)

	rtr := router.New(idx, newGenerator(cfg, logger),
		router.WithLogger(logger),
		router.WithTemperature(cfg.Generation.Temperature),
	)

	return &Components{
		Embedder: embedder,
		Index:    idx,
		Indexer:  ing,
		Router:   rtr,
		Exporter: export.New(cfg.Storage.ExportDir, export.WithLogger(logger)),
	}, nil
}

// newEmbedder builds the configured embedding backend, wrapped in an LRU cache
// when cache_size is positive.
func newEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	var inner embedding.Embedder
	switch cfg.Embedding.Provider {
	case "mock":
		inner = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	case "openai":
		inner = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     config.APIKey(cfg.Embedding.APIKeyEnv),
			Model:      cfg.Embedding.Model,
			Timeout:    cfg.Embedding.Timeout,
			MaxRetries: cfg.Embedding.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (use mock or openai)", cfg.Embedding.Provider)
	}
	if cfg.Embedding.CacheSize <= 0 {
		return inner, nil
	}
	cached, err := embedding.NewCachedEmbedder(inner, cfg.Embedding.CacheSize)
	if err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return cached, nil
}

// newGenerator builds the Anthropic generator. Without an API key the returned
// generator fails every call, so catalog commands keep working and analyses
// report the problem in their error envelope.
func newGenerator(cfg *config.Config, logger *zap.Logger) llm.Generator {
	gen, err := llm.NewAnthropic(llm.AnthropicConfig{
		APIKey:            config.APIKey(cfg.Generation.APIKeyEnv),
		BaseURL:           cfg.Generation.BaseURL,
		Model:             cfg.Generation.Model,
		MaxTokens:         cfg.Generation.MaxTokens,
		Timeout:           cfg.Generation.Timeout,
		RequestsPerMinute: cfg.Generation.RequestsPerMinute,
	}, llm.WithLogger(logger))
	if err != nil {
		logger.Debug("generation backend unavailable", zap.String("api_key_env", cfg.Generation.APIKeyEnv), zap.Error(err))
		return llm.GeneratorFunc(func(context.Context, string, float64) (string, error) {
			return "", err
		})
	}
	return gen
}
