package common

import "unicode/utf8"

// EstimateTokens returns a deterministic token-count estimate for the given
// text. The heuristic counts one token per four ASCII characters and one token
// per non-ASCII rune, which tracks the BPE tokenizers used by the supported
// providers closely enough for threshold-based model routing.
func EstimateTokens(text string) int {
	ascii := 0
	other := 0
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	tokens := ascii / 4
	if ascii%4 != 0 {
		tokens++
	}
	return tokens + other
}
