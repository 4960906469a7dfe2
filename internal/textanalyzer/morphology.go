package textanalyzer

import (
	"fmt"

	"github.com/kljensen/snowball"

	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
)

// Class is the grammatical class of one analysis of a word.
type Class int

const (
	ClassNotional Class = iota
	ClassPreposition
	ClassConjunction
	ClassParticle
	ClassInterjection
	ClassPronoun
	ClassAdverb
)

func (c Class) String() string {
	switch c {
	case ClassPreposition:
		return "preposition"
	case ClassConjunction:
		return "conjunction"
	case ClassParticle:
		return "particle"
	case ClassInterjection:
		return "interjection"
	case ClassPronoun:
		return "pronoun"
	case ClassAdverb:
		return "adverb"
	default:
		return "notional"
	}
}

// Closed reports whether words of this class carry no content and are left
// out of the index.
func (c Class) Closed() bool {
	switch c {
	case ClassPreposition, ClassConjunction, ClassParticle, ClassInterjection:
		return true
	}
	return false
}

// Analysis is one reading of a word: a normal form and its class.
type Analysis struct {
	NormalForm string
	Class      Class
}

// Morphology analyzes a lowercase word into its possible readings.
type Morphology interface {
	Analyze(word string) ([]Analysis, error)
}

const russian = "russian"

// RussianMorphology recognises Russian function words from a fixed dictionary
// and reduces every other word to its snowball stem.
type RussianMorphology struct {
	closed map[string][]Class
}

// NewRussianMorphology probes the stemmer once so that a missing language
// fails at start-up instead of on the first page.
func NewRussianMorphology() (*RussianMorphology, error) {
	if _, err := snowball.Stem("проверка", russian, true); err != nil {
		return nil, apperrors.Newf(apperrors.ErrAnalysis, 0, "russian stemmer unavailable: %v", err)
	}
	return &RussianMorphology{closed: functionWords}, nil
}

func (m *RussianMorphology) Analyze(word string) ([]Analysis, error) {
	if classes, ok := m.closed[word]; ok {
		out := make([]Analysis, len(classes))
		for i, c := range classes {
			out[i] = Analysis{NormalForm: word, Class: c}
		}
		return out, nil
	}
	stem, err := snowball.Stem(word, russian, true)
	if err != nil {
		return nil, fmt.Errorf("%w: stemming %q: %v", apperrors.ErrAnalysis, word, err)
	}
	if stem == "" {
		stem = word
	}
	return []Analysis{{NormalForm: stem, Class: ClassNotional}}, nil
}

var (
	prep   = []Class{ClassPreposition}
	conj   = []Class{ClassConjunction}
	part   = []Class{ClassParticle}
	interj = []Class{ClassInterjection}
)

// functionWords lists Russian words with a closed-class reading. Words that
// also have a notional reading carry several classes and stay indexable.
var functionWords = map[string][]Class{
	"без": prep, "безо": prep, "в": prep, "во": prep, "вблизи": prep, "вдоль": prep,
	"вместо": prep, "вне": prep, "внутри": prep, "возле": prep, "вокруг": prep,
	"вследствие": prep, "для": prep, "до": prep, "за": prep, "из": prep, "изо": prep,
	"из-за": prep, "из-под": prep, "к": prep, "ко": prep, "кроме": prep, "между": prep,
	"меж": prep, "на": prep, "над": prep, "о": prep, "об": prep, "обо": prep,
	"около": prep, "от": prep, "ото": prep, "перед": prep, "передо": prep, "по": prep,
	"под": prep, "подо": prep, "после": prep, "посреди": prep, "при": prep, "про": prep,
	"против": prep, "ради": prep, "с": prep, "со": prep, "сквозь": prep, "среди": prep,
	"у": prep, "через": prep, "насчёт": prep, "насчет": prep, "благодаря": prep,
	"согласно": prep, "вопреки": prep,

	"и": conj, "или": conj, "либо": conj, "но": conj, "а": conj, "однако": conj,
	"если": conj, "чтобы": conj, "чтоб": conj, "хотя": conj, "хоть": conj, "зато": conj,
	"ибо": conj, "будто": conj, "словно": conj, "тоже": conj, "также": conj,
	"причём": conj, "причем": conj, "поскольку": conj, "потому": conj, "затем": conj,
	"нежели": conj, "дабы": conj, "коли": conj, "едва": conj,

	"не": part, "ни": part, "ли": part, "ль": part, "же": part, "ж": part, "бы": part,
	"б": part, "вот": part, "вон": part, "даже": part, "лишь": part, "уж": part,
	"ведь": part, "неужели": part, "разве": part, "пусть": part, "пускай": part,
	"именно": part, "авось": part,

	"ах": interj, "ох": interj, "эх": interj, "ой": interj, "ай": interj, "увы": interj,
	"ура": interj, "эй": interj, "ого": interj, "ага": interj, "ух": interj, "фу": interj,
	"ох-ох": interj, "ой-ой": interj, "ну-ка": interj, "браво": interj, "тсс": interj,
	"алло": interj, "ба": interj,

	"что":    {ClassConjunction, ClassPronoun},
	"да":     {ClassConjunction, ClassParticle},
	"только": {ClassParticle, ClassAdverb},
	"когда":  {ClassConjunction, ClassAdverb},
	"как":    {ClassConjunction, ClassAdverb},
	"так":    {ClassConjunction, ClassAdverb},
	"уже":    {ClassParticle, ClassAdverb},
	"ещё":    {ClassParticle, ClassAdverb},
	"еще":    {ClassParticle, ClassAdverb},
	"ну":     {ClassParticle, ClassInterjection},
}
