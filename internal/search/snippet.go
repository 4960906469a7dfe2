package search

import (
	"html"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/textanalyzer"
)

const blockSelector = "p, h1, h2, h3, h4, h5, h6, article, section, main, div, span"

const ellipsis = "..."

// snippet returns a fragment of the first block holding a word whose normal
// forms include lemma, with that word wrapped in <b>.
func (e *Engine) snippet(doc *goquery.Document, lemma string) string {
	if lemma == "" {
		return ""
	}
	words := make(map[string]string)
	wordIn := func(text string) string {
		if w, ok := words[text]; ok {
			return w
		}
		w, err := e.analyzer.FindWordForLemma(text, lemma)
		if err != nil {
			e.logger.Debug("snippet word lookup failed", "lemma", lemma, "error", err)
			w = ""
		}
		words[text] = w
		return w
	}

	block := findBlock(doc.Selection, func(text string) bool { return wordIn(text) != "" })
	if block == nil {
		return ""
	}
	text := textanalyzer.NodeText(block.Nodes...)
	runes := []rune(text)
	start, end := indexWord(runes, []rune(wordIn(text)))
	if start < 0 {
		return ""
	}
	return fragment(runes, start, end, e.cfg.SnippetRadius)
}

// findBlock returns the innermost block under s whose text satisfies match,
// choosing the first one in document order at every level.
func findBlock(s *goquery.Selection, match func(text string) bool) *goquery.Selection {
	var found *goquery.Selection
	s.Find(blockSelector).EachWithBreak(func(_ int, block *goquery.Selection) bool {
		if match(textanalyzer.NodeText(block.Nodes...)) {
			found = block
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	if inner := findBlock(found, match); inner != nil {
		return inner
	}
	return found
}

// indexWord finds word in text as a whole word, ignoring case.
func indexWord(text, word []rune) (int, int) {
	for offset := 0; offset < len(text); {
		start, end := indexFold(text[offset:], word)
		if start < 0 {
			return -1, -1
		}
		start, end = start+offset, end+offset
		if (start == 0 || !isWordRune(text[start-1])) && (end == len(text) || !isWordRune(text[end])) {
			return start, end
		}
		offset = start + 1
	}
	return -1, -1
}

// indexFold is a case-insensitive rune search returning the matched range.
func indexFold(text, needle []rune) (int, int) {
	if len(needle) == 0 || len(needle) > len(text) {
		return -1, -1
	}
	for i := 0; i+len(needle) <= len(text); i++ {
		match := true
		for j, r := range needle {
			if unicode.ToLower(text[i+j]) != unicode.ToLower(r) {
				match = false
				break
			}
		}
		if match {
			return i, i + len(needle)
		}
	}
	return -1, -1
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
}

// fragment cuts radius runes on each side of text[start:end], escapes the
// result for HTML and marks the match.
func fragment(text []rune, start, end, radius int) string {
	from := max(0, start-radius)
	to := min(len(text), end+radius)

	var b strings.Builder
	if from > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(html.EscapeString(string(text[from:start])))
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(string(text[start:end])))
	b.WriteString("</b>")
	b.WriteString(html.EscapeString(string(text[end:to])))
	if to < len(text) {
		b.WriteString(ellipsis)
	}
	return b.String()
}
