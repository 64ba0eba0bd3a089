// Package keyword provides full-text and metadata-term search over chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/kessan/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// Filter restricts hits to chunks whose metadata matches. Empty fields are unconstrained.
	Filter models.Filter
	// PhraseBoost multiplies the score when the query appears as a phrase in the chunk text.
	// Values > 1 boost exact phrase matches (e.g. 1.5). Use 1.0 for no boost.
	PhraseBoost float64
	// HeadingBoost multiplies the score of matches against the section label,
	// so "risk factors" favors chunks tagged risk_factors.
	HeadingBoost float64
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	IndexBatch(ctx context.Context, chunks []*models.Chunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// DocCount returns the total number of chunks in the index.
	DocCount() (uint64, error)
	Close() error
	Vocabulary
}

// KeywordResult is a single keyword search hit. ID is the chunk ID.
type KeywordResult struct {
	ID    string
	Score float64
}
