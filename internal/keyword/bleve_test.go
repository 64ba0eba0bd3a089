package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kessan/internal/models"
)

func newTestIndex(t *testing.T) (*BleveIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyword.bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	return idx, path
}

func sampleChunks() []*models.Chunk {
	return []*models.Chunk{
		{ID: "a1", Text: "Revenue was $100B, driven by iPhone sales.", Company: "Apple", Year: "2023", Quarter: "Q1", Section: "financial_highlights"},
		{ID: "a2", Text: "Supply chain disruption may affect results.", Company: "Apple", Year: "2023", Quarter: "Q1", Section: "risk_factors"},
		{ID: "g1", Text: "Advertising revenue increased year over year.", Company: "Google", Year: "2022", Quarter: "Q4", Section: "page_3"},
		{ID: "g2", Text: "Regulatory risk factors include antitrust matters.", Company: "Google", Year: "2023", Quarter: "Q1", Section: "page_4"},
	}
}

func TestBleveIndex_SearchFindsText(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	if err := idx.IndexBatch(ctx, sampleChunks()); err != nil {
		t.Fatalf("IndexBatch: %v", err)
	}

	results, err := idx.Search(ctx, "iphone", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a1" {
		t.Fatalf("expected a1, got %v", results)
	}

	results, _ = idx.Search(ctx, "revenue", 10, nil)
	if len(results) != 2 {
		t.Errorf("expected 2 hits for revenue, got %d", len(results))
	}
}

func TestBleveIndex_HeadingMatch(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	_ = idx.IndexBatch(ctx, sampleChunks())

	// a2 has no "risk" in its text but is tagged risk_factors.
	results, err := idx.Search(ctx, "risk factors", 10, &SearchOptions{HeadingBoost: 2})
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, r := range results {
		found[r.ID] = true
	}
	if !found["a2"] || !found["g2"] {
		t.Errorf("expected a2 and g2, got %v", results)
	}
}

func TestBleveIndex_Filter(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	_ = idx.IndexBatch(ctx, sampleChunks())

	tests := []struct {
		name   string
		query  string
		filter models.Filter
		want   map[string]bool
	}{
		{"company", "revenue", models.CompanyFilter("APPLE"), map[string]bool{"a1": true}},
		{"period", "risk", models.PeriodFilter(models.Period{Year: "2023", Quarter: "q1"}), map[string]bool{"a2": true, "g2": true}},
		{"section", "", models.SectionFilter("risk_factors"), map[string]bool{"a2": true}},
		{"match all with filter", "", models.CompanyFilter("Google"), map[string]bool{"g1": true, "g2": true}},
		{"no match", "revenue", models.CompanyFilter("Tesla"), map[string]bool{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := idx.Search(ctx, tt.query, 10, &SearchOptions{Filter: tt.filter, HeadingBoost: 2})
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != len(tt.want) {
				t.Fatalf("got %v, want %v", results, tt.want)
			}
			for _, r := range results {
				if !tt.want[r.ID] {
					t.Errorf("unexpected hit %s", r.ID)
				}
			}
		})
	}
}

func TestBleveIndex_PhraseBoost(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	_ = idx.IndexBatch(ctx, []*models.Chunk{
		{ID: "p1", Text: "cash flow from operations was strong", Section: "page_1"},
		{ID: "p2", Text: "operations used cash while flow of goods slowed", Section: "page_1"},
	})
	results, err := idx.Search(ctx, "cash flow", 10, &SearchOptions{PhraseBoost: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) < 2 || results[0].ID != "p1" {
		t.Errorf("phrase match should rank first, got %v", results)
	}
}

func TestBleveIndex_ReopenKeepsDocs(t *testing.T) {
	idx, path := newTestIndex(t)
	ctx := context.Background()
	_ = idx.IndexBatch(ctx, sampleChunks())
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	idx2, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx2.Close()
	n, err := idx2.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("DocCount after reopen = %d, want 4", n)
	}
	results, _ := idx2.Search(ctx, "antitrust", 5, nil)
	if len(results) != 1 || results[0].ID != "g2" {
		t.Errorf("search after reopen: %v", results)
	}
}

func TestBleveIndex_EmptyBatchAndLimit(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	if err := idx.IndexBatch(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != 0 {
		t.Errorf("DocCount = %d", n)
	}
	if results, err := idx.Search(ctx, "x", 0, nil); err != nil || results != nil {
		t.Errorf("limit 0: %v, %v", results, err)
	}
}

func TestNewBleveIndex_createsDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "keyword.bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	defer idx.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("index dir not created: %v", err)
	}
}
