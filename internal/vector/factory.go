package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses brute-force search. Exact, and fine for a few thousand chunks.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeHNSW uses a pure Go HNSW graph for approximate search.
	IndexTypeHNSW IndexType = "hnsw"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "hnsw" (default), "memory".
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeHNSW, "":
		return NewHNSWIndex(dimensions)
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: hnsw, memory)", indexType)
	}
}

// FileName returns the file name used to persist an index of the given type.
func FileName(indexType string) string {
	if indexType == "" {
		indexType = string(IndexTypeHNSW)
	}
	return "vectors." + indexType
}
