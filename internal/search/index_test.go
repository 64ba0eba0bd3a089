package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kessan/internal/embedding"
	"github.com/hyperjump/kessan/internal/models"
	"github.com/hyperjump/kessan/internal/vector"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service unavailable")
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service unavailable")
}

func (failingEmbedder) Dimensions() int { return 8 }
func (failingEmbedder) Close() error    { return nil }

func openTestIndex(t *testing.T, dir string, opts ...Option) *Index {
	t.Helper()
	idx, err := Open(dir, embedding.NewMockEmbedder(64), opts...)
	require.NoError(t, err)
	return idx
}

func corpus() []*models.Chunk {
	return []*models.Chunk{
		{ID: "a1", Text: "Revenue was $100B driven by iPhone sales.", Company: "Apple", Year: "2023", Quarter: "Q1", Section: "financial_highlights", SourceFile: "Apple_2023_Q1.pdf", PageNumber: 1, ChunkIndex: 0},
		{ID: "a2", Text: "Supply chain disruption is a key risk.", Company: "Apple", Year: "2023", Quarter: "Q1", Section: "risk_factors", SourceFile: "Apple_2023_Q1.pdf", PageNumber: 2, ChunkIndex: 1},
		{ID: "g1", Text: "Advertising revenue increased year over year.", Company: "Google", Year: "2022", Quarter: "Q4", Section: "page_1", SourceFile: "Google_2022_Q4.pdf", PageNumber: 1, ChunkIndex: 0},
		{ID: "g2", Text: "Antitrust risk factors remain material.", Company: "Google", Year: "2023", Quarter: "Q1", Section: "risk_factors", SourceFile: "Google_2023_Q1.pdf", PageNumber: 3, ChunkIndex: 0},
		{ID: "u1", Text: "General commentary on markets.", Company: models.Unknown, Year: models.Unknown, Quarter: models.Unknown, Section: "page_1", SourceFile: "notes.pdf", PageNumber: 1, ChunkIndex: 0},
	}
}

func ids(chunks []*models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}

func TestIndex_EmptyState(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir())
	defer idx.Close()

	assert.Equal(t, StateEmpty, idx.State())
	got, err := idx.SimilaritySearch(ctx, "revenue", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = idx.SearchByCompany(ctx, "revenue", "Apple", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "empty", stats.State)
	assert.Equal(t, int64(0), stats.TotalDocuments)
	assert.Empty(t, stats.Companies)
	assert.Empty(t, stats.Quarters)
}

func TestIndex_AddEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir())
	defer idx.Close()

	n, err := idx.Add(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, StateEmpty, idx.State())

	_, err = idx.Add(ctx, corpus()[:2])
	require.NoError(t, err)
	before, _ := idx.Stats(ctx)
	n, err = idx.Add(ctx, []*models.Chunk{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	after, _ := idx.Stats(ctx)
	assert.Equal(t, before.TotalDocuments, after.TotalDocuments)
}

func TestIndex_AddUpdatesStats(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir())
	defer idx.Close()

	chunks := corpus()
	n, err := idx.Add(ctx, chunks[:3])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, StatePopulated, idx.State())

	n, err = idx.Add(ctx, chunks[3:])
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalDocuments)
	assert.Equal(t, "populated", stats.State)
	assert.Equal(t, []string{"Apple", "Google"}, stats.Companies)
	assert.Equal(t, []models.Period{{Year: "2022", Quarter: "Q4"}, {Year: "2023", Quarter: "Q1"}}, stats.Quarters)
	assert.Positive(t, stats.DiskBytes)
	for _, name := range []string{catalogFileName, keywordDirName, vector.FileName(string(vector.IndexTypeHNSW))} {
		assert.Positive(t, stats.DiskBreakdown[name], name)
	}
	var sum int64
	for _, n := range stats.DiskBreakdown {
		sum += n
	}
	assert.Equal(t, stats.DiskBytes, sum)
}

func TestIndex_FilteredSearch(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir())
	defer idx.Close()
	_, err := idx.Add(ctx, corpus())
	require.NoError(t, err)

	got, err := idx.SearchByCompany(ctx, "financial performance", "apple", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids(got))

	got, err = idx.SearchByQuarter(ctx, "risk factors", "2023", "q1", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2", "g2"}, ids(got))

	got, err = idx.SearchBySection(ctx, "risk disclosure", "risk_factors", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a2", "g2"}, ids(got))

	got, err = idx.SearchByCompany(ctx, "revenue", "Tesla", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = idx.SearchByCompany(ctx, "revenue", "Apple", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Unknown is unconstrained.
	got, err = idx.Search(ctx, "revenue", 10, models.Filter{Company: models.Unknown})
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestIndex_SearchRanksRelevantFirst(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir(), WithIndexType(string(vector.IndexTypeMemory)))
	defer idx.Close()
	_, err := idx.Add(ctx, corpus())
	require.NoError(t, err)

	got, err := idx.SimilaritySearch(ctx, "antitrust risk factors", 3)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "g2", got[0].ID)
	assert.LessOrEqual(t, len(got), 3)
}

func TestIndex_PersistReload(t *testing.T) {
	for _, indexType := range []string{string(vector.IndexTypeMemory), string(vector.IndexTypeHNSW)} {
		t.Run(indexType, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			idx := openTestIndex(t, dir, WithIndexType(indexType))
			_, err := idx.Add(ctx, corpus())
			require.NoError(t, err)

			queries := []string{"revenue", "risk factors", "supply chain"}
			before := make(map[string][]string)
			for _, q := range queries {
				got, err := idx.SimilaritySearch(ctx, q, 3)
				require.NoError(t, err)
				before[q] = ids(got)
			}
			beforeApple, _ := idx.SearchByCompany(ctx, "revenue", "Apple", 5)
			companies, _ := idx.Companies(ctx)
			quarters, _ := idx.Quarters(ctx)
			require.NoError(t, idx.Close())

			reloaded := openTestIndex(t, dir, WithIndexType(indexType))
			defer reloaded.Close()
			assert.Equal(t, StatePopulated, reloaded.State())
			for _, q := range queries {
				got, err := reloaded.SimilaritySearch(ctx, q, 3)
				require.NoError(t, err)
				assert.Equal(t, before[q], ids(got), "query %q", q)
			}
			afterApple, _ := reloaded.SearchByCompany(ctx, "revenue", "Apple", 5)
			assert.Equal(t, ids(beforeApple), ids(afterApple))
			gotCompanies, _ := reloaded.Companies(ctx)
			gotQuarters, _ := reloaded.Quarters(ctx)
			assert.Equal(t, companies, gotCompanies)
			assert.Equal(t, quarters, gotQuarters)
		})
	}
}

func TestIndex_RebuildsDerivedArtifacts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx := openTestIndex(t, dir)
	_, err := idx.Add(ctx, corpus())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	require.NoError(t, os.Remove(filepath.Join(dir, vector.FileName(string(vector.IndexTypeHNSW)))))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, keywordDirName)))

	idx = openTestIndex(t, dir)
	defer idx.Close()
	got, err := idx.SearchByCompany(ctx, "revenue", "Google", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g1", "g2"}, ids(got))
	got, err = idx.SimilaritySearch(ctx, "iphone", 5)
	require.NoError(t, err)
	assert.Contains(t, ids(got), "a1")
	assert.FileExists(t, filepath.Join(dir, vector.FileName(string(vector.IndexTypeHNSW))))
}

func TestIndex_EmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(t.TempDir(), failingEmbedder{})
	require.NoError(t, err)
	defer idx.Close()

	n, err := idx.Add(ctx, corpus())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrBackendFailure))
	assert.Equal(t, 0, n)
	assert.Equal(t, StateEmpty, idx.State())
	stats, _ := idx.Stats(ctx)
	assert.Equal(t, int64(0), stats.TotalDocuments)
}

func TestIndex_CorruptCatalogStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	garbage := make([]byte, 8192)
	for i := range garbage {
		garbage[i] = byte(i*31 + 7)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalogFileName), garbage, 0644))

	idx := openTestIndex(t, dir)
	defer idx.Close()
	assert.Equal(t, StateEmpty, idx.State())

	matches, err := filepath.Glob(filepath.Join(dir, "corrupt-*", catalogFileName))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	n, err := idx.Add(context.Background(), corpus()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndex_DirectoryLock(t *testing.T) {
	dir := t.TempDir()
	idx := openTestIndex(t, dir)

	_, err := Open(dir, embedding.NewMockEmbedder(64))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, idx.Close())
	again := openTestIndex(t, dir)
	require.NoError(t, again.Close())
}

func TestIndex_SourceRegistry(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir())
	defer idx.Close()

	src := &models.Source{ID: "src:abc", Path: "/reports/Apple_2023_Q1.pdf", Size: 100, ModTime: 1700000000, Chunks: 2}
	ok, err := idx.SourceIngested(ctx, src)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := idx.AddFromSource(ctx, corpus()[:2], src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err = idx.SourceIngested(ctx, src)
	require.NoError(t, err)
	assert.True(t, ok)

	changed := *src
	changed.ModTime++
	ok, err = idx.SourceIngested(ctx, &changed)
	require.NoError(t, err)
	assert.False(t, ok)

	sources, err := idx.Sources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
	stats, _ := idx.Stats(ctx)
	assert.Equal(t, 1, stats.Sources)
}

func TestIndex_SearchQuestionCorrectsKeywordTerms(t *testing.T) {
	ctx := context.Background()
	// Keyword-only fusion isolates the keyword side.
	idx := openTestIndex(t, t.TempDir(), WithWeights(1, 0))
	defer idx.Close()
	_, err := idx.Add(ctx, corpus())
	require.NoError(t, err)

	got, err := idx.Search(ctx, "What was revnue?", 10, models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = idx.SearchQuestion(ctx, "What was revnue?", 10, models.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "g1"}, ids(got))

	got, err = idx.SearchQuestion(ctx, "What was revnue?", 10, models.CompanyFilter("Apple"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(got))
}

func TestIndex_SearchQuestionSeesNewTerms(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir(), WithWeights(1, 0))
	defer idx.Close()
	_, err := idx.Add(ctx, corpus()[:1])
	require.NoError(t, err)

	got, err := idx.SearchQuestion(ctx, "antitrust exposure", 10, models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = idx.Add(ctx, corpus()[3:4])
	require.NoError(t, err)
	got, err = idx.SearchQuestion(ctx, "antitrst exposure", 10, models.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"g2"}, ids(got))
}

func TestIndex_ClosedReturnsError(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir())
	_, err := idx.Add(ctx, corpus())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Stats(ctx)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	_, err = idx.Companies(ctx)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	_, err = idx.Quarters(ctx)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	_, err = idx.Search(ctx, "revenue", 5, models.Filter{})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	_, err = idx.Add(ctx, corpus()[:1])
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	assert.NoError(t, idx.Close())
}
