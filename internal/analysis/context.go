package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/kessan/internal/models"
	"github.com/hyperjump/kessan/pkg/utils"
)

const (
	documentExcerpt = 1000
	sourceExcerpt   = 1200
)

// DocumentContext renders chunks as "Document <i>: <company> - <year> <quarter> - <section>"
// headers, each followed by an excerpt of at most 1000 characters, separated by blank lines.
func DocumentContext(chunks []*models.Chunk) string {
	return buildContext(chunks, documentExcerpt, func(i int, c *models.Chunk) string {
		return fmt.Sprintf("Document %d: %s - %s %s - %s", i, c.Company, c.Year, c.Quarter, c.Section)
	})
}

// SourceContext is DocumentContext for question answering: "Source <i>" headers
// carry the page number and excerpts run to 1200 characters.
func SourceContext(chunks []*models.Chunk) string {
	return buildContext(chunks, sourceExcerpt, func(i int, c *models.Chunk) string {
		return fmt.Sprintf("Source %d: %s - %s %s - %s (Page %d)", i, c.Company, c.Year, c.Quarter, c.Section, c.PageNumber)
	})
}

func buildContext(chunks []*models.Chunk, limit int, header func(int, *models.Chunk) string) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = header(i+1, c) + "\n" + utils.Head(c.Text, limit) + "\n"
	}
	return strings.Join(parts, "\n")
}

// Provenance returns the sorted distinct companies and "<year> <quarter>"
// periods of chunks. Unknown values are left out; when nothing is left the
// list is ["Unknown"].
func Provenance(chunks []*models.Chunk) (companies, quarters []string) {
	cs := make(map[string]bool)
	qs := make(map[string]bool)
	for _, c := range chunks {
		if c.Company != "" && c.Company != models.Unknown {
			cs[c.Company] = true
		}
		if p := c.Period(); p.Known() {
			qs[p.String()] = true
		}
	}
	return sortedOrUnknown(cs), sortedOrUnknown(qs)
}

func sortedOrUnknown(set map[string]bool) []string {
	if len(set) == 0 {
		return []string{models.Unknown}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// result builds the common payload fields for chunks.
func result(chunks []*models.Chunk) *models.Result {
	companies, quarters := Provenance(chunks)
	return &models.Result{
		SourceDocuments: len(chunks),
		Companies:       companies,
		Quarters:        quarters,
	}
}
