package indexer

import (
	"strings"
	"unicode"
)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Preprocess normalizes extracted page text before splitting: line endings
// become "\n" and control characters other than newline, tab and form feed
// are removed. Paragraph breaks are preserved.
func Preprocess(text string) string {
	text = lineEndings.Replace(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\f' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
