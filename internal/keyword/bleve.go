package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kessan/internal/models"
)

// Field names in the chunk document mapping.
const (
	fieldText    = "text"
	fieldHeading = "heading"
	fieldCompany = "company"
	fieldYear    = "year"
	fieldQuarter = "quarter"
	fieldSection = "section"
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, chunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func chunkMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so "margin" matches only "margin".
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldText, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldHeading, textFieldMapping)

	// Metadata is indexed verbatim (lowercased on both sides) for exact term filters.
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	for _, f := range []string{fieldCompany, fieldYear, fieldQuarter, fieldSection} {
		docMapping.AddFieldMappingsAt(f, keywordFieldMapping)
	}

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

func chunkDocument(c *models.Chunk) map[string]any {
	return map[string]any{
		fieldText:    c.Text,
		fieldHeading: strings.ReplaceAll(c.Section, "_", " "),
		fieldCompany: strings.ToLower(c.Company),
		fieldYear:    strings.ToLower(c.Year),
		fieldQuarter: strings.ToLower(c.Quarter),
		fieldSection: strings.ToLower(c.Section),
	}
}

// IndexBatch indexes chunks by ID in a single batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, chunkDocument(c)); err != nil {
			return fmt.Errorf("batch index %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search matches query against chunk text and section heading, restricted by
// opts.Filter, and returns up to limit results by descending score.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	phraseBoost, headingBoost := 1.0, 1.0
	var filter models.Filter
	if opts != nil {
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		if opts.HeadingBoost > 0 {
			headingBoost = opts.HeadingBoost
		}
		filter = opts.Filter.Normalize()
	}

	var q blevequery.Query
	if terms := tokenizeQuery(query); len(terms) == 0 {
		q = bleve.NewMatchAllQuery()
	} else {
		q = textQuery(query, len(terms), phraseBoost, headingBoost)
	}
	if filters := filterQueries(filter); len(filters) > 0 {
		q = bleve.NewConjunctionQuery(append([]blevequery.Query{q}, filters...)...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// textQuery ORs a match on the text, a boosted match on the heading and, for
// multi-term queries, a boosted phrase match on the text.
func textQuery(query string, numTerms int, phraseBoost, headingBoost float64) blevequery.Query {
	text := bleve.NewMatchQuery(query)
	text.SetField(fieldText)

	heading := bleve.NewMatchQuery(query)
	heading.SetField(fieldHeading)
	heading.SetBoost(headingBoost)

	parts := []blevequery.Query{text, heading}
	if numTerms > 1 && phraseBoost > 1 {
		phrase := bleve.NewMatchPhraseQuery(query)
		phrase.SetField(fieldText)
		phrase.SetBoost(phraseBoost)
		parts = append(parts, phrase)
	}
	return bleve.NewDisjunctionQuery(parts...)
}

func filterQueries(f models.Filter) []blevequery.Query {
	var qs []blevequery.Query
	add := func(field, value string) {
		if value == "" {
			return
		}
		tq := bleve.NewTermQuery(strings.ToLower(value))
		tq.SetField(field)
		qs = append(qs, tq)
	}
	add(fieldCompany, f.Company)
	add(fieldYear, f.Year)
	add(fieldQuarter, f.Quarter)
	add(fieldSection, f.Section)
	return qs
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// TermFrequencies returns every term indexed in chunk text or headings with
// the number of chunks containing it.
func (b *BleveIndex) TermFrequencies() (map[string]int, error) {
	out := make(map[string]int)
	for _, field := range []string{fieldText, fieldHeading} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil {
				_ = dict.Close()
				return nil, fmt.Errorf("failed to read %s terms: %w", field, err)
			}
			if entry == nil {
				break
			}
			if n := int(entry.Count); n > out[entry.Term] {
				out[entry.Term] = n
			}
		}
		if err := dict.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// QueryTerms analyzes text with the text field analyzer, so stop words are
// dropped and terms are lowercased exactly as at search time.
func (b *BleveIndex) QueryTerms(text string) []string {
	an := b.index.Mapping().AnalyzerNamed(standard.Name)
	if an == nil {
		return tokenizeQuery(text)
	}
	var terms []string
	for _, tok := range an.Analyze([]byte(text)) {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// DocCount returns the total number of chunks in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

var _ KeywordIndex = (*BleveIndex)(nil)
