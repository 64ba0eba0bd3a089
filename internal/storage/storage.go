// Package storage defines the chunk catalog: the durable record of chunks,
// their embeddings and the source files they came from.
package storage

import (
	"context"

	"github.com/hyperjump/kessan/internal/models"
)

// Catalog persists chunks with embeddings and answers metadata queries.
// It is the commit point of the index; every other artifact is derived from it.
type Catalog interface {
	// InsertChunks stores chunks and their embeddings in one transaction. When src
	// is non-nil it is recorded in the same transaction.
	InsertChunks(ctx context.Context, chunks []*models.Chunk, vectors [][]float32, src *models.Source) error
	// GetChunks returns the chunks for ids in the order given, skipping unknown ids.
	GetChunks(ctx context.Context, ids []string) ([]*models.Chunk, error)
	// FilterIDs returns the ids of chunks matching f, in insertion order.
	FilterIDs(ctx context.Context, f models.Filter) ([]string, error)
	// ScanEmbeddings calls fn for every stored embedding in insertion order.
	ScanEmbeddings(ctx context.Context, fn func(id string, vec []float32) error) error
	// ScanChunks calls fn for every chunk in insertion order.
	ScanChunks(ctx context.Context, fn func(c *models.Chunk) error) error

	CountChunks(ctx context.Context) (int64, error)
	Companies(ctx context.Context) ([]string, error)
	Quarters(ctx context.Context) ([]models.Period, error)

	GetSource(ctx context.Context, id string) (*models.Source, error)
	PutSource(ctx context.Context, src *models.Source) error
	ListSources(ctx context.Context) ([]*models.Source, error)

	// Meta and SetMeta store small settings such as the embedding dimension.
	Meta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	Close() error
}
