// Package indexer turns report files into metadata-tagged chunks and feeds them to the index.
package indexer

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/kessan/internal/models"
)

// Chunker splits pages into overlapping chunks tagged with filename and section metadata.
type Chunker struct {
	splitter *Splitter
	newID    func() string
}

// NewChunker creates a chunker with the given size and overlap (in characters).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		splitter: NewSplitter(chunkSize, chunkOverlap),
		newID:    func() string { return uuid.New().String() },
	}
}

// Process chunks pages from the file named filename. Whitespace-only pages
// produce no chunks. chunk_index runs from 0 across the whole file.
func (c *Chunker) Process(pages []models.Page, filename string) []*models.Chunk {
	base := filepath.Base(filename)
	info := ParseFilename(base)
	chunks := make([]*models.Chunk, 0)
	chunkIndex := 0
	for _, page := range pages {
		text := Preprocess(page.Text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		section := DetectSection(text, page.Number)
		for _, segment := range c.splitter.Split(text) {
			if strings.TrimSpace(segment) == "" {
				continue
			}
			chunks = append(chunks, &models.Chunk{
				ID:         c.newID(),
				Text:       segment,
				Company:    info.Company,
				Year:       info.Year,
				Quarter:    info.Quarter,
				Section:    section,
				SourceFile: base,
				PageNumber: page.Number,
				ChunkIndex: chunkIndex,
			})
			chunkIndex++
		}
	}
	return chunks
}
