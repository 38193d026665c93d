package ctxprobs

import "strings"

// PadToken pads messages so that every position has a full window
const PadToken = "_pad_"

// Pair is a (center, context) word pair.
type Pair [2]string

// Key returns the store key of the pair.
func (p Pair) Key() string {
	return PairKey(p[0], p[1])
}

// PairKey returns the normalized store key for a pair of words.
func PairKey(center, context string) string {
	return center + " " + context
}

// SplitKey is the inverse of PairKey.
func SplitKey(key string) []string {
	return strings.SplitN(key, " ", 2)
}

// ExtractWindows returns one group of pairs per token. The group for token i
// pairs it with each distinct word in the windowSize words to its left and
// to its right, the message being padded with PadToken at both ends. Pairs
// keep the order in which their context word first appears in the window.
func ExtractWindows(tokens []string, windowSize int) [][]Pair {
	padded := make([]string, 0, len(tokens)+2*windowSize)
	for i := 0; i < windowSize; i++ {
		padded = append(padded, PadToken)
	}
	padded = append(padded, tokens...)
	for i := 0; i < windowSize; i++ {
		padded = append(padded, PadToken)
	}

	windows := make([][]Pair, 0, len(tokens))
	for i := range tokens {
		center := padded[i+windowSize]
		left := padded[i : i+windowSize]
		right := padded[i+windowSize+1 : i+1+2*windowSize]

		seen := make(map[string]bool, 2*windowSize)
		var pairs []Pair
		for _, ctx := range [][]string{left, right} {
			for _, w := range ctx {
				if seen[w] {
					continue
				}
				seen[w] = true
				pairs = append(pairs, Pair{center, w})
			}
		}
		windows = append(windows, pairs)
	}
	return windows
}

// Flatten concatenates the groups returned by ExtractWindows.
func Flatten(windows [][]Pair) []Pair {
	var out []Pair
	for _, w := range windows {
		out = append(out, w...)
	}
	return out
}
