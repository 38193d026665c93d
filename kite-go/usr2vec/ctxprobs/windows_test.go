package ctxprobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractWindows(t *testing.T) {
	tokens := []string{"the", "cat", "sat"}
	windows := ExtractWindows(tokens, 1)
	require.Len(t, windows, len(tokens))

	assert.Equal(t, []Pair{{"the", PadToken}, {"the", "cat"}}, windows[0])
	assert.Equal(t, []Pair{{"cat", "the"}, {"cat", "sat"}}, windows[1])
	assert.Equal(t, []Pair{{"sat", "cat"}, {"sat", PadToken}}, windows[2])
}

func TestExtractWindowsDistinct(t *testing.T) {
	// with a window of 3 every position of a 2 token message sees mostly padding
	windows := ExtractWindows([]string{"a", "b"}, 3)
	require.Len(t, windows, 2)
	assert.Equal(t, []Pair{{"a", PadToken}, {"a", "b"}}, windows[0])
	assert.Equal(t, []Pair{{"b", PadToken}, {"b", "a"}}, windows[1])

	// repeated context words appear once
	windows = ExtractWindows([]string{"x", "y", "x", "y", "x"}, 2)
	assert.Equal(t, []Pair{{"x", "x"}, {"x", "y"}}, windows[2])
}

func TestExtractWindowsShape(t *testing.T) {
	tokens := []string{"a", "b", "c", "d", "e", "f", "g"}
	for w := 1; w <= 4; w++ {
		windows := ExtractWindows(tokens, w)
		require.Len(t, windows, len(tokens))
		for _, group := range windows {
			assert.True(t, len(group) <= 2*w)
			seen := make(map[Pair]bool)
			for _, p := range group {
				assert.False(t, seen[p], "duplicate pair %v", p)
				seen[p] = true
			}
		}
	}
	assert.Empty(t, ExtractWindows(nil, 3))
}

func TestPairKey(t *testing.T) {
	p := Pair{"hello", "world"}
	assert.Equal(t, "hello world", p.Key())
	assert.Equal(t, []string{"hello", "world"}, SplitKey(p.Key()))
	assert.Len(t, Flatten(ExtractWindows([]string{"a", "b", "c"}, 1)), 6)
}
