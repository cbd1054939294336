package compose

import (
	"strings"
	"unicode"
)

// dangling words stripped from the end of generated output; mirrors the
// fragment heuristics on the inbound side.
var trailingJunk = map[string]bool{
	"e": true, "mas": true, "ou": true, "que": true, "de": true,
	"para": true, "pra": true, "com": true, "porque": true,
	"and": true, "but": true, "or": true, "so": true, "because": true,
}

// Normalize collapses generated text to one bounded line: newlines become
// spaces, whitespace runs collapse, dangling trailing punctuation and
// conjunctions are stripped, and the result is truncated to maxChars at a
// sentence or word boundary with an ellipsis when cut.
func Normalize(text string, maxChars int) string {
	text = collapseWhitespace(text)
	text = stripDangling(text)

	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}

	cut := string(runes[:maxChars])

	// Prefer ending at a sentence boundary inside the budget.
	if idx := lastSentenceEnd(cut); idx > maxChars/2 {
		return strings.TrimSpace(cut[:idx+1])
	}

	// Otherwise cut at the last word boundary and mark the cut.
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "…"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripDangling(s string) string {
	s = strings.TrimRight(s, " \t,;:-–—")
	words := strings.Fields(s)
	for len(words) > 1 && trailingJunk[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
		s = strings.TrimRight(strings.Join(words, " "), " ,;:-")
		words = strings.Fields(s)
	}
	return s
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
