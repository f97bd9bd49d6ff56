package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// isPunct reports whether r splits a word into its own fragment.
func isPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return true
	}
	return false
}

// BasicSplit segments text into word fragments.
//
// Text is NFC-normalized so decomposed Hangul matches the vocabulary, split on
// Unicode whitespace, and every punctuation rune (. , ! ? ; :) becomes a
// fragment of its own. Order is preserved and empty fragments are dropped.
func BasicSplit(text string) []string {
	text = norm.NFC.String(text)
	words := strings.FieldsFunc(text, unicode.IsSpace)

	fragments := make([]string, 0, len(words))
	for _, word := range words {
		start := 0
		for i, r := range word {
			if !isPunct(r) {
				continue
			}
			if i > start {
				fragments = append(fragments, word[start:i])
			}
			size := len(string(r))
			fragments = append(fragments, word[i:i+size])
			start = i + size
		}
		if start < len(word) {
			fragments = append(fragments, word[start:])
		}
	}
	return fragments
}
