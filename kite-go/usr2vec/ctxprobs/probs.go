package ctxprobs

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// DefaultCacheSize is the number of pair scores kept in memory
const DefaultCacheSize = 1 << 16

// ContextProbabilities reads the scores of the context windows of messages
// from a scored Store. Scores are cached; pairs that are missing from the
// store or were never scored count as 0.
type ContextProbabilities struct {
	store *Store
	cache *lru.Cache
}

// NewContextProbabilities creates a reader over store caching up to
// cacheSize scores.
func NewContextProbabilities(store *Store, cacheSize int) (*ContextProbabilities, error) {
	if cacheSize < 1 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating score cache")
	}
	return &ContextProbabilities{
		store: store,
		cache: cache,
	}, nil
}

// WindowSize returns the window size of the underlying store.
func (c *ContextProbabilities) WindowSize() int {
	return c.store.WindowSize()
}

// ScoreContextWindows returns the scores of the distinct pairs in the
// context windows of tokens, in order of first appearance.
func (c *ContextProbabilities) ScoreContextWindows(tokens []string) ([]float64, error) {
	var keys []string
	seen := make(map[string]bool)
	for _, p := range Flatten(ExtractWindows(tokens, c.WindowSize())) {
		k := p.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	scores, err := c.lookup(keys)
	if err != nil {
		return nil, errors.Wrapf(err, "scoring context windows of %q", tokens)
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = scores[k]
	}
	return out, nil
}

// PositionScores returns, for every position of tokens, the mean score of the
// pairs in its context window.
func (c *ContextProbabilities) PositionScores(tokens []string) ([]float64, error) {
	windows := ExtractWindows(tokens, c.WindowSize())
	var keys []string
	for _, w := range windows {
		for _, p := range w {
			keys = append(keys, p.Key())
		}
	}

	scores, err := c.lookup(keys)
	if err != nil {
		return nil, errors.Wrapf(err, "scoring positions of %q", tokens)
	}
	out := make([]float64, len(windows))
	for i, w := range windows {
		if len(w) == 0 {
			continue
		}
		var sum float64
		for _, p := range w {
			sum += scores[p.Key()]
		}
		out[i] = sum / float64(len(w))
	}
	return out, nil
}

func (c *ContextProbabilities) lookup(keys []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(keys))
	var missing []string
	for _, k := range keys {
		if v, ok := c.cache.Get(k); ok {
			scores[k] = v.(float64)
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return scores, nil
	}

	found, err := c.store.Lookup(missing)
	if err != nil {
		return nil, err
	}
	for _, k := range missing {
		v := found[k]
		scores[k] = v
		c.cache.Add(k, v)
	}
	return scores, nil
}
