package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coder/hnsw"
	"github.com/hyperjump/kessan/pkg/utils"
)

// HNSWIndex is an approximate nearest-neighbor index backed by coder/hnsw.
// Chunk IDs are mapped to sequential uint64 graph keys.
type HNSWIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// hnswMeta is the gob-encoded sidecar holding the ID mapping.
type hnswMeta struct {
	Dimensions int
	IDMap      map[string]uint64
	NextKey    uint64
}

// NewHNSWIndex creates an empty HNSW index for vectors of the given dimension.
func NewHNSWIndex(dimensions int) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &HNSWIndex{
		graph:      newGraph(),
		dimensions: dimensions,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
	}, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return g
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Dimensions returns the vector dimension.
func (h *HNSWIndex) Dimensions() int {
	return h.dimensions
}

// Add inserts normalized copies of vectors. An ID that is already present is skipped.
func (h *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != h.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), h.dimensions)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, id := range ids {
		if _, exists := h.idMap[id]; exists {
			continue
		}
		vec := make([]float32, h.dimensions)
		copy(vec, vectors[i])
		utils.NormalizeL2(vec)

		key := h.nextKey
		h.nextKey++
		h.graph.Add(hnsw.MakeNode(key, vec))
		h.idMap[id] = key
		h.keyMap[key] = id
	}
	return nil
}

// Search returns up to k approximate nearest neighbors by cosine similarity.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.dimensions)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 || h.graph.Len() == 0 {
		return nil, nil
	}
	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)

	nodes := h.graph.Search(q, k)
	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := h.keyMap[node.Key]
		if !ok {
			continue
		}
		results = append(results, &VectorResult{
			ID:    id,
			Score: 1 - float64(h.graph.Distance(q, node.Value)),
		})
	}
	return results, nil
}

// Lookup returns the stored vector for id.
func (h *HNSWIndex) Lookup(id string) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	key, ok := h.idMap[id]
	if !ok {
		return nil, false
	}
	return h.graph.Lookup(key)
}

// Size returns the number of indexed vectors.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idMap)
}

// Save writes the graph to path and the ID mapping to path+".meta", each atomically.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := writeAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := h.graph.Export(bw); err != nil {
			return fmt.Errorf("export graph: %w", err)
		}
		return bw.Flush()
	}); err != nil {
		return err
	}
	meta := hnswMeta{Dimensions: h.dimensions, IDMap: h.idMap, NextKey: h.nextKey}
	return writeAtomic(path+".meta", func(w io.Writer) error {
		if err := gob.NewEncoder(w).Encode(meta); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		return nil
	})
}

// Load replaces the index contents with the graph at path and its ".meta" sidecar.
func (h *HNSWIndex) Load(path string) error {
	mf, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	defer mf.Close()
	var meta hnswMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Dimensions != h.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", meta.Dimensions, h.dimensions)
	}

	gf, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer gf.Close()
	graph := newGraph()
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	if graph.Len() != len(meta.IDMap) {
		return fmt.Errorf("graph has %d nodes, metadata has %d ids", graph.Len(), len(meta.IDMap))
	}

	keyMap := make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		keyMap[key] = id
	}
	h.mu.Lock()
	h.graph, h.idMap, h.keyMap, h.nextKey = graph, meta.IDMap, keyMap, meta.NextKey
	h.mu.Unlock()
	return nil
}

// Close releases the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = newGraph()
	h.idMap = make(map[string]uint64)
	h.keyMap = make(map[uint64]string)
	return nil
}
