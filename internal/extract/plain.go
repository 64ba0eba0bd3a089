package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kessan/internal/models"
)

// extractPlain splits text content into pages on form feeds. Invalid UTF-8
// sequences are replaced with the replacement character.
func extractPlain(content []byte) []models.Page {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	parts := strings.Split(s, "\f")
	pages := make([]models.Page, len(parts))
	for i, p := range parts {
		pages[i] = models.Page{Number: i + 1, Text: p}
	}
	return pages
}
