// Package vector provides approximate and exact nearest-neighbor indexes over chunk embeddings.
package vector

import "context"

// VectorIndex stores embeddings keyed by chunk ID and answers similarity queries.
// Entries are append-only; there is no removal.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// Lookup returns the stored (normalized) vector for id.
	Lookup(id string) ([]float32, bool)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single search hit. Score is cosine similarity in [-1, 1].
type VectorResult struct {
	ID    string
	Score float64
}
