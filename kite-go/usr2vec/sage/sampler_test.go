package sage

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteco/usr2vec/kite-golib/serialization"
)

func uniformParams(nUsers, nWords int) *Params {
	p := &Params{
		UserEtas:      make([]map[int]float64, nUsers),
		BackWordProbs: make([]float64, nWords),
	}
	for u := range p.UserEtas {
		p.UserEtas[u] = map[int]float64{}
	}
	for w := range p.BackWordProbs {
		p.BackWordProbs[w] = 1 / float64(nWords)
	}
	return p
}

func TestSampleDeterministic(t *testing.T) {
	params := uniformParams(2, 50)
	a, err := NewSampler(params, 1234)
	require.NoError(t, err)
	b, err := NewSampler(params, 1234)
	require.NoError(t, err)

	msg := []int{1, 2, 3}
	for i := 0; i < 20; i++ {
		sa, err := a.Sample(1, msg, 10)
		require.NoError(t, err)
		sb, err := b.Sample(1, msg, 10)
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
		assert.Len(t, sa, 10)
	}

	c, err := NewSampler(params, 4321)
	require.NoError(t, err)
	a.Reseed(4321)
	sa, err := a.SampleMessage(0, msg, 10)
	require.NoError(t, err)
	sc, err := c.SampleMessage(0, msg, 10)
	require.NoError(t, err)
	assert.Equal(t, sc, sa)
	assert.Len(t, sa, len(msg))
}

func TestForkMatchesNewSampler(t *testing.T) {
	params := uniformParams(1, 20)
	base, err := NewSampler(params, 1)
	require.NoError(t, err)
	fresh, err := NewSampler(params, 99)
	require.NoError(t, err)
	fork := base.Fork(99)

	for i := 0; i < 5; i++ {
		x, err := fork.Sample(0, []int{0}, 4)
		require.NoError(t, err)
		y, err := fresh.Sample(0, []int{0}, 4)
		require.NoError(t, err)
		assert.Equal(t, y, x)
	}
}

func TestSampleAvoidsContext(t *testing.T) {
	s, err := NewSampler(uniformParams(1, 5), 7)
	require.NoError(t, err)

	msg := []int{0, 1}
	for i := 0; i < 200; i++ {
		neg, err := s.Sample(0, msg, 3)
		require.NoError(t, err)
		for _, w := range neg {
			assert.NotContains(t, msg, w)
			assert.True(t, w >= 0 && w < 5)
		}
	}
}

func TestSampleBiasedAwayFromUserWords(t *testing.T) {
	params := uniformParams(2, 4)
	params.UserEtas[0][2] = 50

	s, err := NewSampler(params, 11)
	require.NoError(t, err)

	counts := make(map[int]map[int]int)
	for _, u := range []int{0, 1} {
		counts[u] = make(map[int]int)
		for i := 0; i < 500; i++ {
			neg, err := s.Sample(u, nil, 4)
			require.NoError(t, err)
			for _, w := range neg {
				counts[u][w]++
			}
		}
	}
	assert.Equal(t, 0, counts[0][2], "user 0 should never draw a word it favors")
	assert.True(t, counts[1][2] > 0, "user 1 has no deviation for word 2")
}

func TestSampleDegenerate(t *testing.T) {
	s, err := NewSampler(uniformParams(1, 2), 3)
	require.NoError(t, err)
	s.MaxAttempts = 5

	// every word is in the message, sampling must still terminate
	neg, err := s.Sample(0, []int{0, 1}, 3)
	require.NoError(t, err)
	assert.Len(t, neg, 3)

	neg, err = s.Sample(0, []int{0}, 0)
	require.NoError(t, err)
	assert.Empty(t, neg)
}

func TestSampleNonPositiveMaxAttempts(t *testing.T) {
	s, err := NewSampler(uniformParams(1, 4), 3)
	require.NoError(t, err)

	for _, attempts := range []int{0, -2} {
		s.MaxAttempts = attempts
		neg, err := s.Sample(0, []int{1}, 20)
		require.NoError(t, err)
		require.Len(t, neg, 20)
		for _, w := range neg {
			assert.True(t, w >= 0 && w < 4, "sample %d out of vocabulary", w)
		}
	}
}

func TestSampleErrors(t *testing.T) {
	s, err := NewSampler(uniformParams(2, 5), 3)
	require.NoError(t, err)

	_, err = s.Sample(2, []int{0}, 3)
	assert.True(t, errors.Is(err, ErrInvalidUserID))
	_, err = s.Sample(-1, []int{0}, 3)
	assert.Equal(t, ErrInvalidUserID, errors.Cause(err))

	_, err = s.Sample(0, []int{0, 5}, 3)
	assert.True(t, errors.Is(err, ErrInvalidVocabID))
	_, err = s.SampleMessage(0, []int{-1}, 3)
	assert.True(t, errors.Is(err, ErrInvalidVocabID))
}

func TestInvalidParams(t *testing.T) {
	_, err := NewSampler(&Params{}, 1)
	assert.Error(t, err)
	_, err = NewSampler(&Params{BackWordProbs: []float64{0.5, -0.1}}, 1)
	assert.Error(t, err)
	_, err = NewSampler(&Params{BackWordProbs: []float64{0, 0}}, 1)
	assert.Error(t, err)
}

func TestLoadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sage.gob")
	require.NoError(t, serialization.Encode(path, uniformParams(3, 4)))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Len(t, p.UserEtas, 3)
	assert.Len(t, p.BackWordProbs, 4)
}
