// Package textanalyzer turns page content into lemma frequencies: markup is
// stripped, Russian words are tokenized, function words are filtered out and
// every remaining word is reduced to its normal forms.
package textanalyzer

import (
	"errors"
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
)

type Analyzer struct {
	morph Morphology
}

func New(morph Morphology) *Analyzer {
	return &Analyzer{morph: morph}
}

// NewRussian returns an Analyzer backed by RussianMorphology.
func NewRussian() (*Analyzer, error) {
	morph, err := NewRussianMorphology()
	if err != nil {
		return nil, err
	}
	return New(morph), nil
}

// LemmaFrequencies maps every lemma of the HTML content to the number of
// word occurrences that reduce to it. A word whose only reading is a closed
// class is skipped; a word with several readings is always kept. Any
// analysis failure fails the whole call.
func (a *Analyzer) LemmaFrequencies(content string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, word := range Tokenize(PlainText(content)) {
		counts[word]++
	}

	lemmas := make(map[string]int, len(counts))
	for word, n := range counts {
		analyses, err := a.analyze(word)
		if err != nil {
			return nil, err
		}
		if len(analyses) == 1 && analyses[0].Class.Closed() {
			continue
		}
		for _, form := range normalForms(analyses) {
			lemmas[form] += n
		}
	}
	return lemmas, nil
}

// QueryLemmas returns the distinct lemmas of a plain-text query in sorted
// order, with the same filtering as LemmaFrequencies.
func (a *Analyzer) QueryLemmas(query string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, word := range Tokenize(query) {
		analyses, err := a.analyze(word)
		if err != nil {
			return nil, err
		}
		if len(analyses) == 1 && analyses[0].Class.Closed() {
			continue
		}
		for _, form := range normalForms(analyses) {
			seen[form] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for form := range seen {
		out = append(out, form)
	}
	sort.Strings(out)
	return out, nil
}

// NormalForms returns the distinct normal forms of a single lowercase word.
func (a *Analyzer) NormalForms(word string) ([]string, error) {
	analyses, err := a.analyze(word)
	if err != nil {
		return nil, err
	}
	return normalForms(analyses), nil
}

// FindWordForLemma returns the first word of the plain text whose normal
// forms include lemma, or "" when there is none.
func (a *Analyzer) FindWordForLemma(text, lemma string) (string, error) {
	checked := make(map[string]bool)
	for _, word := range Tokenize(text) {
		if _, done := checked[word]; done {
			continue
		}
		forms, err := a.NormalForms(word)
		if err != nil {
			return "", err
		}
		checked[word] = true
		for _, form := range forms {
			if form == lemma {
				return word, nil
			}
		}
	}
	return "", nil
}

func (a *Analyzer) analyze(word string) ([]Analysis, error) {
	analyses, err := a.morph.Analyze(word)
	if err != nil {
		if errors.Is(err, apperrors.ErrAnalysis) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: analyzing %q: %v", apperrors.ErrAnalysis, word, err)
	}
	return analyses, nil
}

func normalForms(analyses []Analysis) []string {
	forms := make([]string, 0, len(analyses))
	for _, an := range analyses {
		dup := false
		for _, f := range forms {
			if f == an.NormalForm {
				dup = true
				break
			}
		}
		if !dup && an.NormalForm != "" {
			forms = append(forms, an.NormalForm)
		}
	}
	return forms
}
