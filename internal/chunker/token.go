package chunker

import "strings"

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	// Roughly 1.33 tokens per English word.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// OutputBudget sizes a reply budget for a chunk: a fraction of its input
// tokens, clamped to [floor, ceiling].
func OutputBudget(text string, floor, ceiling int) int {
	b := EstimateTokens(text) / 2
	if b < floor {
		b = floor
	}
	if ceiling > 0 && b > ceiling {
		b = ceiling
	}
	return b
}
