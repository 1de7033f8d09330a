package engine

import "strings"

// normaliseHypothesis drops decoder filler tokens and alternate pronunciation
// markers, e.g. "<s> hello(2) [NOISE] world </s>" becomes "hello world".
func normaliseHypothesis(raw string) string {
	fields := strings.Fields(raw)
	words := fields[:0]
	for _, f := range fields {
		if isFiller(f) {
			continue
		}
		words = append(words, stripAlternate(f))
	}
	return strings.Join(words, " ")
}

func isFiller(token string) bool {
	switch {
	case token == "<s>", token == "</s>", token == "<sil>":
		return true
	case len(token) >= 2 && strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]"):
		return true
	case len(token) >= 4 && strings.HasPrefix(token, "++") && strings.HasSuffix(token, "++"):
		return true
	}
	return false
}

func stripAlternate(word string) string {
	open := strings.LastIndexByte(word, '(')
	if open <= 0 || !strings.HasSuffix(word, ")") {
		return word
	}
	for _, r := range word[open+1 : len(word)-1] {
		if r < '0' || r > '9' {
			return word
		}
	}
	if open+1 == len(word)-1 {
		return word
	}
	return word[:open]
}
