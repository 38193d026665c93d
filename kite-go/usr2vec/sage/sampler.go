package sage

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kiteco/usr2vec/kite-golib/serialization"
)

var (
	// ErrInvalidUserID is returned when sampling for a user without parameters
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidVocabID is returned when a message contains a word without a
	// background probability
	ErrInvalidVocabID = errors.New("invalid vocabulary id")
)

const (
	// DefaultMaxAttempts bounds the number of candidates drawn for a single
	// negative sample
	DefaultMaxAttempts = 100

	// streamMix derives the PCG stream from the seed
	streamMix = 0x9e3779b97f4a7c15
)

// Params are the parameters of a SAGE model: the background word
// distribution, and per user sparse deviations from it.
type Params struct {
	// UserEtas[u][w] is the log deviation of user u's distribution from the
	// background for word w; missing words have no deviation
	UserEtas []map[int]float64
	// BackWordProbs[w] is the background probability of word w
	BackWordProbs []float64
}

// LoadParams reads Params from path (see serialization.Decode).
func LoadParams(path string) (*Params, error) {
	var p Params
	if err := serialization.Decode(path, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid sage params in %s", path)
	}
	return &p, nil
}

// Validate checks that the background distribution can be sampled from.
func (p *Params) Validate() error {
	if len(p.BackWordProbs) == 0 {
		return errors.New("empty background distribution")
	}
	var sum float64
	for w, prob := range p.BackWordProbs {
		if prob < 0 || math.IsNaN(prob) || math.IsInf(prob, 0) {
			return errors.Errorf("invalid background probability %v for word %d", prob, w)
		}
		sum += prob
	}
	if sum == 0 {
		return errors.New("background distribution sums to zero")
	}
	return nil
}

// Sampler draws negative samples for the words of a user's messages. For
// user u, words are drawn from
//
//   q_u(w) ∝ back(w) * exp(-max(eta_u(w), 0))
//
// restricted to words that do not appear in the message, so that negatives
// avoid both the context and the words the user is known to favor.
//
// A Sampler owns its random source and is not safe for concurrent use; use
// Fork to obtain one sampler per goroutine.
type Sampler struct {
	// MaxAttempts bounds the candidates drawn per sample. Once exhausted the
	// last candidate outside the message is used, or the last candidate if
	// all of them were in the message. Values below 1 count as 1.
	MaxAttempts int

	params *Params
	src    *rand.PCG
	rng    *rand.Rand
	back   distuv.Categorical
}

// NewSampler creates a sampler seeded with seed.
func NewSampler(params *Params, seed uint64) (*Sampler, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return newSampler(params, seed), nil
}

func newSampler(params *Params, seed uint64) *Sampler {
	src := rand.NewPCG(seed, seed^streamMix)
	return &Sampler{
		MaxAttempts: DefaultMaxAttempts,
		params:      params,
		src:         src,
		rng:         rand.New(src),
		back:        distuv.NewCategorical(params.BackWordProbs, src),
	}
}

// Fork returns a sampler sharing s's (read-only) parameters with its own
// random source seeded with seed.
func (s *Sampler) Fork(seed uint64) *Sampler {
	f := newSampler(s.params, seed)
	f.MaxAttempts = s.MaxAttempts
	return f
}

// Reseed resets the random source, after which the sampler produces the same
// draws as a new sampler created with seed.
func (s *Sampler) Reseed(seed uint64) {
	s.src.Seed(seed, seed^streamMix)
}

// NumUsers returns the number of users with parameters.
func (s *Sampler) NumUsers() int {
	return len(s.params.UserEtas)
}

// Sample draws count negative samples for one position of msg.
func (s *Sampler) Sample(user int, msg []int, count int) ([]int, error) {
	context, err := s.context(user, msg)
	if err != nil {
		return nil, err
	}
	return s.draw(s.params.UserEtas[user], context, count), nil
}

// SampleMessage draws count negative samples for every position of msg.
func (s *Sampler) SampleMessage(user int, msg []int, count int) ([][]int, error) {
	context, err := s.context(user, msg)
	if err != nil {
		return nil, err
	}
	etas := s.params.UserEtas[user]
	out := make([][]int, len(msg))
	for j := range msg {
		out[j] = s.draw(etas, context, count)
	}
	return out, nil
}

func (s *Sampler) context(user int, msg []int) (map[int]bool, error) {
	if user < 0 || user >= len(s.params.UserEtas) {
		return nil, errors.Wrapf(ErrInvalidUserID, "user %d not in [0, %d)", user, len(s.params.UserEtas))
	}
	context := make(map[int]bool, len(msg))
	for _, w := range msg {
		if w < 0 || w >= len(s.params.BackWordProbs) {
			return nil, errors.Wrapf(ErrInvalidVocabID, "word %d not in [0, %d)", w, len(s.params.BackWordProbs))
		}
		context[w] = true
	}
	return context, nil
}

func (s *Sampler) draw(etas map[int]float64, context map[int]bool, count int) []int {
	if count <= 0 {
		return []int{}
	}
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	out := make([]int, count)
	for k := range out {
		last, lastFree := -1, -1
		accepted := false
		for a := 0; a < attempts; a++ {
			w := int(s.back.Rand())
			last = w
			if context[w] {
				continue
			}
			lastFree = w
			if eta := etas[w]; eta > 0 && s.rng.Float64() >= math.Exp(-eta) {
				continue
			}
			accepted = true
			break
		}
		switch {
		case accepted:
			out[k] = last
		case lastFree >= 0:
			out[k] = lastFree
		default:
			out[k] = last
		}
	}
	return out
}
