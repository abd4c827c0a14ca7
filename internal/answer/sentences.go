package answer

import (
	"strings"
	"unicode"
)

// splitSentences breaks prose on terminal punctuation followed by whitespace
// and an uppercase letter or opening bracket, dropping fragments under three
// characters. Mirrors the chunker's splitter so strategies see the same
// sentence boundaries the index was built with.
func splitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var sentences []string
	start := 0

	appendSentence := func(end int) {
		s := strings.Join(strings.Fields(strings.TrimSpace(string(runes[start:end]))), " ")
		if len(s) >= 3 {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?') {
			j++
		}
		k := j
		for k < len(runes) && unicode.IsSpace(runes[k]) {
			k++
		}
		if k == j || k >= len(runes) {
			i = j - 1
			continue
		}
		next := runes[k]
		if unicode.IsUpper(next) || next == '[' || next == '(' || next == '"' {
			appendSentence(j)
			i = k - 1
		} else {
			i = j - 1
		}
	}
	if start < len(runes) {
		appendSentence(len(runes))
	}
	return sentences
}
