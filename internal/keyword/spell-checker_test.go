package keyword

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mapVocabulary is a Vocabulary over a fixed term map.
type mapVocabulary struct {
	terms map[string]int
	err   error
	loads int
}

func (m *mapVocabulary) TermFrequencies() (map[string]int, error) {
	m.loads++
	if m.err != nil {
		return nil, m.err
	}
	return m.terms, nil
}

func (m *mapVocabulary) QueryTerms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == '?' || r == ','
	})
}

func TestSpellChecker_Correct(t *testing.T) {
	vocab := &mapVocabulary{terms: map[string]int{"revenue": 12, "margin": 4, "marine": 1, "guidance": 3}}
	sc := NewSpellChecker(vocab)

	tests := []struct {
		query string
		want  string
		fixed int
	}{
		{"revnue", "revenue", 1},
		{"gross margn guidance", "gross margin guidance", 1},
		{"revenue guidance", "revenue guidance", 0},
		{"revnue 2023 q1", "revenue 2023 q1", 1},
		{"revenu 2032", "revenue 2032", 1},
		{"zzzzzz", "zzzzzz", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		got, corrections, err := sc.Correct(tt.query)
		if err != nil {
			t.Fatalf("Correct(%q): %v", tt.query, err)
		}
		if got != tt.want {
			t.Errorf("Correct(%q) = %q, want %q", tt.query, got, tt.want)
		}
		if len(corrections) != tt.fixed {
			t.Errorf("Correct(%q) made %d corrections, want %d: %v", tt.query, len(corrections), tt.fixed, corrections)
		}
	}
	if vocab.loads != 1 {
		t.Errorf("vocabulary loaded %d times, want 1", vocab.loads)
	}
}

func TestSpellChecker_UnchangedQueryKeepsOriginalText(t *testing.T) {
	sc := NewSpellChecker(&mapVocabulary{terms: map[string]int{"revenue": 1}})
	got, corrections, err := sc.Correct("What was Revenue?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "What was Revenue?" || corrections != nil {
		t.Errorf("got %q %v, want the query untouched", got, corrections)
	}
}

func TestSpellChecker_PrefersCloserThenFrequent(t *testing.T) {
	sc := NewSpellChecker(&mapVocabulary{terms: map[string]int{"margin": 2, "marine": 50, "margins": 9}})
	suggestions, err := sc.Suggest("margn")
	if err != nil {
		t.Fatal(err)
	}
	if len(suggestions) == 0 || suggestions[0].Term != "margin" {
		t.Fatalf("suggestions = %+v, want margin first", suggestions)
	}
	for _, s := range suggestions {
		if s.Distance > 1 {
			t.Errorf("five-letter term accepted distance %d suggestion %q", s.Distance, s.Term)
		}
	}

	sc = NewSpellChecker(&mapVocabulary{terms: map[string]int{"revenue": 1, "revenues": 30}})
	suggestions, _ = sc.Suggest("revenuess")
	if len(suggestions) != 2 || suggestions[0].Term != "revenues" {
		t.Errorf("suggestions = %+v, want revenues first", suggestions)
	}
}

func TestSpellChecker_Options(t *testing.T) {
	vocab := &mapVocabulary{terms: map[string]int{"capex": 1, "opex": 5}}

	if got, _, _ := NewSpellChecker(vocab).Correct("capx"); got != "capex" {
		t.Errorf("Correct(capx) = %q, want capex", got)
	}
	if got, _, _ := NewSpellChecker(vocab, WithMinFrequency(2)).Correct("capx"); got != "capx" {
		t.Errorf("term below the minimum frequency suggested: %q", got)
	}

	if got, _, _ := NewSpellChecker(vocab).Correct("opx"); got != "opx" {
		t.Errorf("short term corrected to %q", got)
	}
	if got, _, _ := NewSpellChecker(vocab, WithMinTermLength(3)).Correct("opx"); got != "opex" {
		t.Errorf("Correct(opx) with min length 3 = %q, want opex", got)
	}

	sc := NewSpellChecker(&mapVocabulary{terms: map[string]int{"guidance": 1}}, WithMaxDistance(1))
	if got, _, _ := sc.Correct("guidnce"); got != "guidance" {
		t.Errorf("Correct(guidnce) = %q, want guidance", got)
	}
	if got, _, _ := sc.Correct("gudnce"); got != "gudnce" {
		t.Errorf("two-edit correction allowed with max distance 1: %q", got)
	}
}

func TestSpellChecker_InvalidateReloads(t *testing.T) {
	vocab := &mapVocabulary{terms: map[string]int{"revenue": 1}}
	sc := NewSpellChecker(vocab)
	if got, _, _ := sc.Correct("antitrst"); got != "antitrst" {
		t.Fatalf("unexpected correction %q", got)
	}
	vocab.terms = map[string]int{"revenue": 1, "antitrust": 1}
	if got, _, _ := sc.Correct("antitrst"); got != "antitrst" {
		t.Fatalf("cached vocabulary should still be used, got %q", got)
	}
	sc.Invalidate()
	if got, _, _ := sc.Correct("antitrst"); got != "antitrust" {
		t.Errorf("after Invalidate got %q, want antitrust", got)
	}
	if vocab.loads != 2 {
		t.Errorf("vocabulary loaded %d times, want 2", vocab.loads)
	}
}

func TestSpellChecker_VocabularyError(t *testing.T) {
	sc := NewSpellChecker(&mapVocabulary{err: errors.New("dictionary unavailable")})
	got, _, err := sc.Correct("revnue")
	if err == nil {
		t.Fatal("expected the vocabulary error")
	}
	if got != "revnue" {
		t.Errorf("query should be returned unchanged on error, got %q", got)
	}
}

func TestBleveIndex_VocabularyCorrectsQuestion(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	if err := idx.IndexBatch(ctx, sampleChunks()); err != nil {
		t.Fatalf("IndexBatch: %v", err)
	}

	terms, err := idx.TermFrequencies()
	if err != nil {
		t.Fatalf("TermFrequencies: %v", err)
	}
	if terms["revenue"] != 2 {
		t.Errorf("revenue frequency = %d, want 2", terms["revenue"])
	}
	if _, ok := terms["risk"]; !ok {
		t.Error("heading terms should be part of the vocabulary")
	}
	if got := idx.QueryTerms("What was Revenue?"); len(got) != 1 || got[0] != "revenue" {
		t.Errorf("QueryTerms = %v, want [revenue]", got)
	}

	corrected, _, err := NewSpellChecker(idx).Correct("What was revnue?")
	if err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, corrected, 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 hits for %q, got %d", corrected, len(results))
	}
}
