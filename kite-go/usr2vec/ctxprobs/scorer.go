package ctxprobs

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/resources"
)

// Scorer computes the log likelihood of word sequences under a pretrained
// language model.
type Scorer interface {
	Score(seqs [][]string) ([]float64, error)
}

// EmbeddingScorer scores a sequence as the sum over consecutive words a, b
// of log sigmoid(E[a] . E[b]), the skip-gram likelihood of b appearing in
// the context of a. Pairs involving a word missing from the vocabulary score
// log(1/2).
type EmbeddingScorer struct {
	Words *resources.Index
	E     *mat.Dense
}

// NewEmbeddingScorer creates a scorer backed by the pretrained embeddings.
func NewEmbeddingScorer(res *resources.Resources) *EmbeddingScorer {
	return &EmbeddingScorer{
		Words: res.Words,
		E:     res.E,
	}
}

// Score implements Scorer
func (s *EmbeddingScorer) Score(seqs [][]string) ([]float64, error) {
	scores := make([]float64, len(seqs))
	for i, seq := range seqs {
		for j := 1; j < len(seq); j++ {
			scores[i] += s.pairScore(seq[j-1], seq[j])
		}
	}
	return scores, nil
}

func (s *EmbeddingScorer) pairScore(a, b string) float64 {
	ia, okA := s.Words.ID(a)
	ib, okB := s.Words.ID(b)
	if !okA || !okB {
		return -math.Ln2
	}
	return logSigmoid(floats.Dot(s.E.RawRowView(ia), s.E.RawRowView(ib)))
}

func logSigmoid(x float64) float64 {
	if x < 0 {
		return x - math.Log1p(math.Exp(x))
	}
	return -math.Log1p(math.Exp(-x))
}
