package keyword

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Vocabulary is the term dictionary a SpellChecker corrects against.
type Vocabulary interface {
	// TermFrequencies returns every indexed term with its document frequency.
	TermFrequencies() (map[string]int, error)
	// QueryTerms splits text into terms the way the index analyzes a query.
	QueryTerms(text string) []string
}

// Suggestion is a candidate replacement for an unknown term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// Correction records one term that was replaced.
type Correction struct {
	From string
	To   string
}

// SpellChecker replaces query terms missing from the vocabulary with the
// closest frequent indexed term. Terms containing digits and terms shorter
// than the minimum length are left alone, so years, quarters and tickers
// pass through unchanged.
type SpellChecker struct {
	vocab       Vocabulary
	maxDistance int
	minFreq     int
	minTermLen  int

	mu    sync.RWMutex
	terms map[string]int
	valid bool
}

// SpellCheckerOption configures a SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the largest edit distance accepted for terms longer
// than five runes. Shorter terms always allow a single edit.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores candidate terms indexed in fewer than f chunks.
func WithMinFrequency(f int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// WithMinTermLength leaves terms shorter than n runes uncorrected.
func WithMinTermLength(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.minTermLen = n
		}
	}
}

// NewSpellChecker returns a SpellChecker over vocab.
func NewSpellChecker(vocab Vocabulary, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{
		vocab:       vocab,
		maxDistance: 2,
		minFreq:     1,
		minTermLen:  4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops the cached vocabulary; the next call reloads it.
func (s *SpellChecker) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.terms = nil
	s.mu.Unlock()
}

func (s *SpellChecker) dictionary() (map[string]int, error) {
	s.mu.RLock()
	terms, valid := s.terms, s.valid
	s.mu.RUnlock()
	if valid {
		return terms, nil
	}
	terms, err := s.vocab.TermFrequencies()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.terms, s.valid = terms, true
	s.mu.Unlock()
	return terms, nil
}

// Correct returns query with every correctable unknown term replaced by its
// best suggestion. When nothing is replaced query is returned unchanged.
func (s *SpellChecker) Correct(query string) (string, []Correction, error) {
	terms := s.vocab.QueryTerms(query)
	if len(terms) == 0 {
		return query, nil, nil
	}
	dict, err := s.dictionary()
	if err != nil {
		return query, nil, err
	}
	var corrections []Correction
	for n, term := range terms {
		if _, known := dict[term]; known || !s.correctable(term) {
			continue
		}
		if best := s.suggest(dict, term); len(best) > 0 {
			corrections = append(corrections, Correction{From: term, To: best[0].Term})
			terms[n] = best[0].Term
		}
	}
	if len(corrections) == 0 {
		return query, nil, nil
	}
	return strings.Join(terms, " "), corrections, nil
}

// Suggest returns candidate replacements for term, best first.
func (s *SpellChecker) Suggest(term string) ([]Suggestion, error) {
	dict, err := s.dictionary()
	if err != nil {
		return nil, err
	}
	return s.suggest(dict, strings.ToLower(term)), nil
}

func (s *SpellChecker) correctable(term string) bool {
	if len([]rune(term)) < s.minTermLen {
		return false
	}
	return !strings.ContainsFunc(term, unicode.IsDigit)
}

func (s *SpellChecker) suggest(dict map[string]int, term string) []Suggestion {
	termLen := len([]rune(term))
	maxDist := s.maxDistance
	if termLen <= 5 {
		maxDist = 1
	}
	var out []Suggestion
	for candidate, freq := range dict {
		if candidate == term || freq < s.minFreq {
			continue
		}
		diff := len([]rune(candidate)) - termLen
		if diff < 0 {
			diff = -diff
		}
		if diff > maxDist {
			continue
		}
		d := EditDistance(term, candidate)
		if d > maxDist {
			continue
		}
		out = append(out, Suggestion{
			Term:      candidate,
			Distance:  d,
			Frequency: freq,
			Score:     float64(freq) / float64(d+1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	return out
}
