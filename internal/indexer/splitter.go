package indexer

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators orders split boundaries from paragraph down to single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter recursively splits text into segments of at most chunkSize runes,
// with up to chunkOverlap runes carried between consecutive segments. It tries
// each separator in order and only falls through to a finer one for pieces
// that are still too long. Separators stay attached to the start of the piece
// that follows them.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter returns a Splitter using DefaultSeparators. An overlap that is not
// smaller than the size is reduced to zero.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap, separators: DefaultSeparators}
}

// Split returns the trimmed, non-empty segments of text in order.
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				out = append(out, t)
			}
		} else {
			out = append(out, s.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs pieces into segments no longer than chunkSize, keeping a tail of
// up to chunkOverlap runes from each segment at the head of the next.
func (s *Splitter) merge(pieces []string) []string {
	var docs, current []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for len(current) > 0 && (total > s.chunkOverlap || total+n > s.chunkSize) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator splits text on sep and prefixes every piece after the
// first with the separator it was split on. An empty sep splits into runes.
func splitKeepingSeparator(text, sep string) []string {
	var pieces []string
	if sep == "" {
		pieces = make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	parts := strings.Split(text, sep)
	pieces = make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			part = sep + part
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
