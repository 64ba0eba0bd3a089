package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kessan/internal/extract"
	"github.com/hyperjump/kessan/internal/fileid"
	"github.com/hyperjump/kessan/internal/models"
)

// Store is the part of the index the indexer writes to.
type Store interface {
	AddFromSource(ctx context.Context, chunks []*models.Chunk, src *models.Source) (int, error)
	SourceIngested(ctx context.Context, src *models.Source) (bool, error)
}

// Indexer extracts, chunks and stores report files.
type Indexer struct {
	store     Store
	extractor *extract.Extractor
	chunker   *Chunker
	workers   int
	logger    *zap.Logger // optional; when set, logs per-file events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for per-file events and failures.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithWorkers bounds how many files are extracted and chunked at once.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// NewIndexer creates an indexer. A nil extractor accepts .pdf only with default limits.
func NewIndexer(store Store, extractor *extract.Extractor, chunker *Chunker, opts ...IndexerOption) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	if chunker == nil {
		chunker = NewChunker(1000, 200)
	}
	idx := &Indexer{
		store:     store,
		extractor: extractor,
		chunker:   chunker,
		workers:   4,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Path    string `json:"path"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report summarizes a batch ingestion.
type Report struct {
	Files   []FileResult `json:"files"`
	Chunks  int          `json:"chunks"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
}

// ChunkFile extracts the pages of path and chunks them.
func (idx *Indexer) ChunkFile(path string) ([]*models.Chunk, error) {
	pages, err := idx.extractor.ExtractPages(path)
	if err != nil {
		return nil, err
	}
	chunks := idx.chunker.Process(pages, path)
	if idx.logger != nil {
		idx.logger.Debug("file chunked",
			zap.String("path", path), zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))
	}
	return chunks, nil
}

// IngestFile chunks one file and adds it to the store. Unless force is set, a
// file already ingested with the same size and modification time is skipped.
// It returns the number of chunks added.
func (idx *Indexer) IngestFile(ctx context.Context, path string, force bool) (int, error) {
	n, _, err := idx.ingest(ctx, path, force)
	return n, err
}

func (idx *Indexer) ingest(ctx context.Context, path string, force bool) (int, bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, false, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, models.Errorf(models.ErrNotFound, "File not found: %s", path)
	}
	if err != nil {
		return 0, false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, false, models.Errorf(models.ErrInvalidInput, "Not a regular file: %s", path)
	}
	if !idx.extractor.Accepts(absPath) {
		return 0, false, models.Errorf(models.ErrInvalidInput, "Unsupported file type: %s", filepath.Ext(absPath))
	}

	src := &models.Source{
		ID:      fileid.SourceID(absPath),
		Path:    absPath,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
	}
	if !force {
		done, err := idx.store.SourceIngested(ctx, src)
		if err != nil {
			return 0, false, fmt.Errorf("check source: %w", err)
		}
		if done {
			if idx.logger != nil {
				idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
			}
			return 0, true, nil
		}
	}

	chunks, err := idx.ChunkFile(absPath)
	if err != nil {
		return 0, false, err
	}
	src.Chunks = len(chunks)
	n, err := idx.store.AddFromSource(ctx, chunks, src)
	if err != nil {
		return 0, false, err
	}
	if idx.logger != nil {
		idx.logger.Info("file ingested", zap.String("path", absPath), zap.Int("chunks", n))
	}
	return n, false, nil
}

// IngestPaths ingests files and directories (walked recursively for accepted
// extensions). Per-file failures are recorded in the report and never abort the
// batch; only context cancellation does. On cancellation the report of the files
// processed so far is returned with the error.
func (idx *Indexer) IngestPaths(ctx context.Context, paths []string, force bool) (*Report, error) {
	files, missing := idx.collect(paths)
	results := make([]FileResult, len(files))
	processed := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, skipped, err := idx.ingest(gctx, path, force)
			results[i] = FileResult{Path: path, Chunks: n, Skipped: skipped}
			processed[i] = true
			if err != nil {
				results[i].Error = errorMessage(err)
				if idx.logger != nil {
					idx.logger.Warn("failed to ingest file", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		})
	}
	waitErr := g.Wait()

	report := &Report{Files: missing}
	for i, r := range results {
		if processed[i] {
			report.Files = append(report.Files, r)
		}
	}
	for _, r := range report.Files {
		switch {
		case r.Error != "":
			report.Failed++
		case r.Skipped:
			report.Skipped++
		default:
			report.Chunks += r.Chunks
		}
	}
	if waitErr != nil {
		return report, waitErr
	}
	return report, nil
}

// collect expands paths into a sorted, de-duplicated file list. Paths that
// cannot be read are returned as failed results.
func (idx *Indexer) collect(paths []string) ([]string, []FileResult) {
	seen := make(map[string]bool)
	var files []string
	var failed []FileResult
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, fs.ErrNotExist) {
				msg = models.Errorf(models.ErrNotFound, "File not found: %s", p).Error()
			}
			failed = append(failed, FileResult{Path: p, Error: msg})
			if idx.logger != nil {
				idx.logger.Warn("skipping unreadable path", zap.String("path", p), zap.Error(err))
			}
			continue
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		_ = filepath.WalkDir(p, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if idx.logger != nil {
					idx.logger.Warn("walk error", zap.String("path", path), zap.Error(walkErr))
				}
				return nil
			}
			if d.IsDir() || !idx.extractor.Accepts(path) {
				return nil
			}
			if finfo, err := os.Stat(path); err == nil && finfo.Mode().IsRegular() {
				add(path)
			}
			return nil
		})
	}
	sort.Strings(files)
	return files, failed
}

func errorMessage(err error) string {
	if msg := models.DisplayMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}
