// Package search provides the chunk index: hybrid (keyword + semantic) retrieval
// with structural metadata filters over a durable catalog.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/embedding"
	"github.com/hyperjump/kessan/internal/keyword"
	"github.com/hyperjump/kessan/internal/models"
	"github.com/hyperjump/kessan/internal/storage"
	"github.com/hyperjump/kessan/internal/vector"
	"github.com/hyperjump/kessan/pkg/utils"
)

const (
	catalogFileName = "chunks.db"
	keywordDirName  = "keyword.bleve"
	metaDimensions  = "dimensions"
	rebuildBatch    = 500

	defaultCandidatePool  = 50
	defaultKeywordWeight  = 0.3
	defaultSemanticWeight = 0.7
	phraseBoost           = 2.0
	headingBoost          = 1.5
)

// State is the index lifecycle state.
type State int

const (
	// StateEmpty means nothing has been added yet. Every search returns no results.
	StateEmpty State = iota
	// StatePopulated means at least one Add has committed.
	StatePopulated
)

func (s State) String() string {
	if s == StatePopulated {
		return "populated"
	}
	return "empty"
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) {
		i.logger = utils.OrNop(l)
	}
}

// WithIndexType selects the ANN backend ("hnsw" or "memory").
func WithIndexType(t string) Option {
	return func(i *Index) {
		if t != "" {
			i.indexType = t
		}
	}
}

// WithWeights sets the keyword and semantic fusion weights. Negative values are ignored.
func WithWeights(keywordWeight, semanticWeight float64) Option {
	return func(i *Index) {
		if keywordWeight < 0 || semanticWeight < 0 || keywordWeight+semanticWeight == 0 {
			return
		}
		i.keywordWeight, i.semanticWeight = keywordWeight, semanticWeight
	}
}

// WithCandidatePool sets how many candidates each retriever contributes before fusion.
func WithCandidatePool(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.candidatePool = n
		}
	}
}

// Index stores chunks with their embeddings and serves filtered similarity search.
// Add calls are serialized; searches run concurrently with each other.
type Index struct {
	dir            string
	embedder       embedding.Embedder
	logger         *zap.Logger
	indexType      string
	keywordWeight  float64
	semanticWeight float64
	candidatePool  int

	lock    *flock.Flock
	writeMu sync.Mutex

	mu       sync.RWMutex
	state    State
	catalog  storage.Catalog
	vectors  vector.VectorIndex
	keywords keyword.KeywordIndex
	speller  *keyword.SpellChecker
}

// Open opens or creates the index stored in dir. A catalog that fails its
// integrity check is moved aside and the index starts empty. Derived artifacts
// (vector file, keyword index) that are missing or stale are rebuilt from the catalog.
func Open(dir string, embedder embedding.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	idx := &Index{
		dir:            dir,
		embedder:       embedder,
		logger:         zap.NewNop(),
		indexType:      string(vector.IndexTypeHNSW),
		keywordWeight:  defaultKeywordWeight,
		semanticWeight: defaultSemanticWeight,
		candidatePool:  defaultCandidatePool,
	}
	for _, opt := range opts {
		opt(idx)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}
	idx.lock = lock

	if err := idx.load(context.Background()); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) load(ctx context.Context) error {
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(i.dir, catalogFileName))
	if err != nil {
		i.logger.Warn("index catalog unreadable, starting empty", zap.String("dir", i.dir), zap.Error(err))
		if qerr := i.quarantine(); qerr != nil {
			return fmt.Errorf("failed to quarantine corrupt index: %w", qerr)
		}
		catalog, err = storage.NewSQLiteCatalog(filepath.Join(i.dir, catalogFileName))
		if err != nil {
			return fmt.Errorf("failed to create catalog: %w", err)
		}
	}
	i.catalog = catalog

	count, err := catalog.CountChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := i.openKeywords(ctx, count); err != nil {
		return err
	}
	if count == 0 {
		i.state = StateEmpty
		return nil
	}

	dims, err := i.storedDimensions(ctx)
	if err != nil {
		return err
	}
	vecs, err := i.openVectors(ctx, dims, count)
	if err != nil {
		return err
	}
	i.vectors = vecs
	i.state = StatePopulated
	i.logger.Debug("index loaded", zap.String("dir", i.dir), zap.Int64("chunks", count))
	return nil
}

// quarantine moves catalog and derived artifacts into dir/corrupt-<unix>/.
func (i *Index) quarantine() error {
	dest := filepath.Join(i.dir, "corrupt-"+strconv.FormatInt(time.Now().Unix(), 10))
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	names := []string{
		catalogFileName, catalogFileName + "-wal", catalogFileName + "-shm",
		keywordDirName, vector.FileName(i.indexType), vector.FileName(i.indexType) + ".meta",
	}
	for _, name := range names {
		src := filepath.Join(i.dir, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, filepath.Join(dest, name)); err != nil {
			return err
		}
	}
	i.logger.Warn("corrupt index moved aside", zap.String("path", dest))
	return nil
}

func (i *Index) storedDimensions(ctx context.Context) (int, error) {
	v, err := i.catalog.Meta(ctx, metaDimensions)
	if err != nil {
		return 0, fmt.Errorf("failed to read index dimensions: %w", err)
	}
	if v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n, nil
		}
	}
	var dims int
	errStop := errors.New("stop")
	err = i.catalog.ScanEmbeddings(ctx, func(_ string, vec []float32) error {
		dims = len(vec)
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return 0, fmt.Errorf("failed to read embeddings: %w", err)
	}
	if dims == 0 {
		return 0, errors.New("index has chunks but no embedding dimension")
	}
	return dims, nil
}

func (i *Index) vectorPath() string {
	return filepath.Join(i.dir, vector.FileName(i.indexType))
}

// openVectors loads the persisted vector index, rebuilding it from catalog
// embeddings when the file is missing, unreadable or out of date.
func (i *Index) openVectors(ctx context.Context, dims int, count int64) (vector.VectorIndex, error) {
	vecs, err := vector.NewVectorIndex(i.indexType, dims)
	if err != nil {
		return nil, err
	}
	loadErr := vecs.Load(i.vectorPath())
	if loadErr == nil && int64(vecs.Size()) == count {
		return vecs, nil
	}
	i.logger.Warn("rebuilding vector index from catalog",
		zap.Int("vectors", vecs.Size()), zap.Int64("chunks", count), zap.NamedError("load_error", loadErr))

	_ = vecs.Close()
	vecs, err = vector.NewVectorIndex(i.indexType, dims)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, rebuildBatch)
	batch := make([][]float32, 0, rebuildBatch)
	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		err := vecs.Add(ctx, ids, batch)
		ids, batch = ids[:0], batch[:0]
		return err
	}
	err = i.catalog.ScanEmbeddings(ctx, func(id string, vec []float32) error {
		ids = append(ids, id)
		batch = append(batch, vec)
		if len(ids) == rebuildBatch {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild vector index: %w", err)
	}
	if err := vecs.Save(i.vectorPath()); err != nil {
		i.logger.Warn("failed to save rebuilt vector index", zap.Error(err))
	}
	return vecs, nil
}

// openKeywords opens the keyword index, rebuilding it when its document count
// disagrees with the catalog.
func (i *Index) openKeywords(ctx context.Context, count int64) error {
	path := filepath.Join(i.dir, keywordDirName)
	kw, err := keyword.NewBleveIndex(path)
	if err == nil {
		n, cerr := kw.DocCount()
		if cerr == nil && int64(n) == count {
			i.setKeywords(kw)
			return nil
		}
		_ = kw.Close()
		i.logger.Warn("rebuilding keyword index from catalog", zap.Uint64("docs", n), zap.Int64("chunks", count))
	} else {
		i.logger.Warn("keyword index unreadable, rebuilding", zap.Error(err))
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove keyword index: %w", err)
	}
	kw, err = keyword.NewBleveIndex(path)
	if err != nil {
		return fmt.Errorf("failed to create keyword index: %w", err)
	}
	batch := make([]*models.Chunk, 0, rebuildBatch)
	err = i.catalog.ScanChunks(ctx, func(c *models.Chunk) error {
		batch = append(batch, c)
		if len(batch) == rebuildBatch {
			err := kw.IndexBatch(ctx, batch)
			batch = batch[:0]
			return err
		}
		return nil
	})
	if err == nil {
		err = kw.IndexBatch(ctx, batch)
	}
	if err != nil {
		_ = kw.Close()
		return fmt.Errorf("failed to rebuild keyword index: %w", err)
	}
	i.setKeywords(kw)
	return nil
}

func (i *Index) setKeywords(kw keyword.KeywordIndex) {
	i.keywords = kw
	i.speller = keyword.NewSpellChecker(kw)
}

// State returns the current lifecycle state.
func (i *Index) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Dir returns the index directory.
func (i *Index) Dir() string {
	return i.dir
}

// Add embeds and stores chunks and returns the number added. An empty slice is a
// no-op. When embedding fails nothing is written.
func (i *Index) Add(ctx context.Context, chunks []*models.Chunk) (int, error) {
	return i.add(ctx, chunks, nil)
}

// AddFromSource is Add that also records src in the same catalog transaction.
func (i *Index) AddFromSource(ctx context.Context, chunks []*models.Chunk, src *models.Source) (int, error) {
	if len(chunks) == 0 {
		if src == nil {
			return 0, nil
		}
		return 0, i.RecordSource(ctx, src)
	}
	return i.add(ctx, chunks, src)
}

func (i *Index) add(ctx context.Context, chunks []*models.Chunk, src *models.Source) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	if _, err := i.openCatalog(); err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Text
		ids[n] = c.ID
	}
	vecs, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, models.WrapError(models.ErrBackendFailure, err, "Error embedding documents")
	}
	if len(vecs) != len(chunks) {
		return 0, models.Errorf(models.ErrBackendFailure, "Error embedding documents: got %d embeddings for %d chunks", len(vecs), len(chunks))
	}
	dims := len(vecs[0])
	for _, v := range vecs {
		if len(v) != dims || dims == 0 {
			return 0, models.Errorf(models.ErrBackendFailure, "Error embedding documents: inconsistent embedding dimensions")
		}
	}

	i.mu.RLock()
	vecs0 := i.vectors
	i.mu.RUnlock()
	if vecs0 != nil && vecs0.Dimensions() != dims {
		return 0, models.Errorf(models.ErrInvalidInput,
			"embedding dimension %d does not match index dimension %d", dims, vecs0.Dimensions())
	}
	if vecs0 == nil {
		if err := i.catalog.SetMeta(ctx, metaDimensions, strconv.Itoa(dims)); err != nil {
			return 0, fmt.Errorf("failed to record index dimensions: %w", err)
		}
	}

	if err := i.catalog.InsertChunks(ctx, chunks, vecs, src); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	// The catalog is committed; the rest is derived and rebuilt on reload if it fails here.
	target := vecs0
	if target == nil {
		target, err = vector.NewVectorIndex(i.indexType, dims)
		if err != nil {
			return 0, err
		}
	}
	if err := target.Add(ctx, ids, vecs); err != nil {
		i.logger.Warn("failed to add vectors", zap.Error(err))
	}
	if err := i.keywords.IndexBatch(ctx, chunks); err != nil {
		i.logger.Warn("failed to index chunks for keyword search", zap.Error(err))
	}
	i.speller.Invalidate()
	if err := target.Save(i.vectorPath()); err != nil {
		i.logger.Warn("failed to save vector index", zap.Error(err))
	}

	i.mu.Lock()
	i.vectors = target
	i.state = StatePopulated
	i.mu.Unlock()

	i.logger.Debug("chunks added", zap.Int("count", len(chunks)))
	return len(chunks), nil
}

// Search returns up to k chunks for query, ordered by decreasing relevance.
// A non-zero filter is a structural pre-filter: only chunks whose metadata
// equals the filter (company case-insensitively) are ranked. An empty index
// returns no results.
func (i *Index) Search(ctx context.Context, query string, k int, filter models.Filter) ([]*models.Chunk, error) {
	return i.search(ctx, query, k, filter, false)
}

// SearchQuestion is Search for free-text user questions: misspelled terms are
// corrected against the indexed vocabulary before keyword matching. The
// semantic side always embeds question as given.
func (i *Index) SearchQuestion(ctx context.Context, question string, k int, filter models.Filter) ([]*models.Chunk, error) {
	return i.search(ctx, question, k, filter, true)
}

func (i *Index) search(ctx context.Context, query string, k int, filter models.Filter, correct bool) ([]*models.Chunk, error) {
	i.mu.RLock()
	state, vecs := i.state, i.vectors
	catalog, keywords, speller := i.catalog, i.keywords, i.speller
	i.mu.RUnlock()
	if catalog == nil {
		return nil, errClosed()
	}
	if state == StateEmpty || k <= 0 {
		return []*models.Chunk{}, nil
	}
	filter = filter.Normalize()
	pool := i.candidatePool
	if pool < k {
		pool = k
	}

	var allowed map[string]bool
	var allowedIDs []string
	if filter != (models.Filter{}) {
		ids, err := catalog.FilterIDs(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to filter chunks: %w", err)
		}
		if len(ids) == 0 {
			return []*models.Chunk{}, nil
		}
		allowedIDs = ids
		allowed = make(map[string]bool, len(ids))
		for _, id := range ids {
			allowed[id] = true
		}
	}

	semantic := make(map[string]float64)
	if i.semanticWeight > 0 {
		qvec, err := i.embedder.Embed(ctx, query)
		if err != nil {
			return nil, models.WrapError(models.ErrBackendFailure, err, "Error embedding query")
		}
		q := make([]float32, len(qvec))
		copy(q, qvec)
		utils.NormalizeL2(q)
		if allowed != nil {
			for _, id := range allowedIDs {
				if v, ok := vecs.Lookup(id); ok {
					semantic[id] = clamp01(utils.Dot(q, v))
				}
			}
		} else {
			results, err := vecs.Search(ctx, q, pool)
			if err != nil {
				return nil, fmt.Errorf("vector search failed: %w", err)
			}
			semantic = NormalizeSemanticScores(results)
		}
	}

	keywordScores := make(map[string]float64)
	if i.keywordWeight > 0 {
		keywordQuery := query
		if correct {
			keywordQuery = i.correctQuery(speller, query)
		}
		results, err := keywords.Search(ctx, keywordQuery, pool, &keyword.SearchOptions{
			Filter:       filter,
			PhraseBoost:  phraseBoost,
			HeadingBoost: headingBoost,
		})
		if err != nil {
			i.logger.Warn("keyword search failed, using semantic scores only", zap.Error(err))
		} else {
			if allowed != nil {
				kept := results[:0]
				for _, r := range results {
					if allowed[r.ID] {
						kept = append(kept, r)
					}
				}
				results = kept
			}
			keywordScores = NormalizeKeywordScores(results)
		}
	}

	fused := Fuse(keywordScores, semantic, i.keywordWeight, i.semanticWeight)
	chunks, err := catalog.GetChunks(ctx, TopIDs(fused, k))
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	i.logger.Debug("search",
		zap.String("query", query), zap.Int("k", k), zap.Int("candidates", len(fused)), zap.Int("results", len(chunks)))
	return chunks, nil
}

// correctQuery returns query with misspelled terms corrected, or query itself
// when the vocabulary cannot be read.
func (i *Index) correctQuery(speller *keyword.SpellChecker, query string) string {
	corrected, corrections, err := speller.Correct(query)
	if err != nil {
		i.logger.Debug("spell correction unavailable", zap.Error(err))
		return query
	}
	for _, c := range corrections {
		i.logger.Debug("corrected query term", zap.String("from", c.From), zap.String("to", c.To))
	}
	return corrected
}

// SimilaritySearch searches without a metadata filter.
func (i *Index) SimilaritySearch(ctx context.Context, query string, k int) ([]*models.Chunk, error) {
	return i.Search(ctx, query, k, models.Filter{})
}

// SearchByCompany searches chunks of one company.
func (i *Index) SearchByCompany(ctx context.Context, query, company string, k int) ([]*models.Chunk, error) {
	return i.Search(ctx, query, k, models.CompanyFilter(company))
}

// SearchByQuarter searches chunks of one reporting period.
func (i *Index) SearchByQuarter(ctx context.Context, query, year, quarter string, k int) ([]*models.Chunk, error) {
	return i.Search(ctx, query, k, models.PeriodFilter(models.Period{Year: year, Quarter: quarter}))
}

// SearchBySection searches chunks with one section label.
func (i *Index) SearchBySection(ctx context.Context, query, section string, k int) ([]*models.Chunk, error) {
	return i.Search(ctx, query, k, models.SectionFilter(section))
}

func errClosed() error {
	return models.Errorf(models.ErrInvalidInput, "index closed")
}

// openCatalog returns the catalog, or an InvalidInput error after Close.
func (i *Index) openCatalog() (storage.Catalog, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.catalog == nil {
		return nil, errClosed()
	}
	return i.catalog, nil
}

// Companies returns the sorted distinct companies, excluding Unknown.
func (i *Index) Companies(ctx context.Context) ([]string, error) {
	catalog, err := i.openCatalog()
	if err != nil {
		return nil, err
	}
	return catalog.Companies(ctx)
}

// Quarters returns the distinct known periods sorted by year, then quarter.
func (i *Index) Quarters(ctx context.Context) ([]models.Period, error) {
	catalog, err := i.openCatalog()
	if err != nil {
		return nil, err
	}
	return catalog.Quarters(ctx)
}

// Stats returns a snapshot of the index contents.
func (i *Index) Stats(ctx context.Context) (*models.Stats, error) {
	catalog, err := i.openCatalog()
	if err != nil {
		return nil, err
	}
	total, err := catalog.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	companies, err := catalog.Companies(ctx)
	if err != nil {
		return nil, err
	}
	quarters, err := catalog.Quarters(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := catalog.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	breakdown, disk, err := storage.DirUsage(i.dir)
	if err != nil {
		i.logger.Debug("disk usage unavailable", zap.Error(err))
	}
	return &models.Stats{
		State:          i.State().String(),
		TotalDocuments: total,
		Companies:      companies,
		Quarters:       quarters,
		Sources:        len(sources),
		DiskBytes:      disk,
		DiskBreakdown:  breakdown,
	}, nil
}

// SourceIngested reports whether src was already ingested with the same size and modification time.
func (i *Index) SourceIngested(ctx context.Context, src *models.Source) (bool, error) {
	catalog, err := i.openCatalog()
	if err != nil {
		return false, err
	}
	got, err := catalog.GetSource(ctx, src.ID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got.Size == src.Size && got.ModTime == src.ModTime, nil
}

// RecordSource stores src in the source registry.
func (i *Index) RecordSource(ctx context.Context, src *models.Source) error {
	catalog, err := i.openCatalog()
	if err != nil {
		return err
	}
	return catalog.PutSource(ctx, src)
}

// Sources lists every recorded source.
func (i *Index) Sources(ctx context.Context) ([]*models.Source, error) {
	catalog, err := i.openCatalog()
	if err != nil {
		return nil, err
	}
	return catalog.ListSources(ctx)
}

// Close releases the backends and the directory lock.
func (i *Index) Close() error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	i.mu.Lock()
	defer i.mu.Unlock()

	var errs []error
	if i.vectors != nil {
		errs = append(errs, i.vectors.Close())
		i.vectors = nil
	}
	if i.keywords != nil {
		errs = append(errs, i.keywords.Close())
		i.keywords = nil
	}
	if i.catalog != nil {
		errs = append(errs, i.catalog.Close())
		i.catalog = nil
	}
	if i.lock != nil {
		errs = append(errs, i.lock.Unlock())
		i.lock = nil
	}
	return errors.Join(errs...)
}
