package model

import (
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kiteco/usr2vec/kite-golib/fileutil"
)

var (
	// ErrInvalidUser is returned for user ids without an embedding
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidWord is returned for word ids without a pretrained embedding
	ErrInvalidWord = errors.New("invalid word")
)

// Options are the hyper-parameters of a Model.
type Options struct {
	LearningRate float64
	Margin       float64
	// Seed initializes the user embeddings
	Seed uint64
}

// DefaultOptions returns the default hyper-parameters.
func DefaultOptions() Options {
	return Options{
		LearningRate: 1e-4,
		Margin:       1,
		Seed:         1234,
	}
}

// Model learns one embedding per user, in the space of fixed pretrained word
// embeddings, such that the words a user writes score higher than negative
// samples by a margin.
//
// A Model is not safe for concurrent use: Train, Predict and Save must not
// be called concurrently.
type Model struct {
	// E holds the pretrained word embeddings (|V| x dim), never modified
	E *mat.Dense
	// U holds the user embeddings (users x dim)
	U *mat.Dense

	opts Options
}

// New creates a model for nUsers users over the pretrained embeddings E. User
// embeddings are initialized uniformly in [-0.5/dim, 0.5/dim].
func New(E *mat.Dense, nUsers int, opts Options) *Model {
	_, dim := E.Dims()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5bd1e995))
	data := make([]float64, nUsers*dim)
	for i := range data {
		data[i] = (rng.Float64() - 0.5) / float64(dim)
	}
	return &Model{
		E:    E,
		U:    mat.NewDense(nUsers, dim, data),
		opts: opts,
	}
}

// FromEmbeddings creates a model from existing user embeddings, e.g a
// checkpoint loaded with LoadUserEmbeddings.
func FromEmbeddings(E, U *mat.Dense, opts Options) (*Model, error) {
	_, de := E.Dims()
	_, du := U.Dims()
	if de != du {
		return nil, errors.Errorf("word embeddings have dimension %d but user embeddings %d", de, du)
	}
	return &Model{E: E, U: U, opts: opts}, nil
}

// NumUsers returns the number of user embeddings.
func (m *Model) NumUsers() int {
	r, _ := m.U.Dims()
	return r
}

// UserEmbeddings returns a copy of the user embeddings.
func (m *Model) UserEmbeddings() *mat.Dense {
	return mat.DenseCopyOf(m.U)
}

// Train applies one update to user's embedding for a training message and
// returns the loss before the update. neg[j] are the negative samples for
// position j of msg, and cp, if not empty, holds the log conditional
// probability of each position, used to weight its loss.
func (m *Model) Train(user int, msg []int, neg [][]int, cp []float64) (float64, error) {
	u, err := m.userRow(user)
	if err != nil {
		return 0, err
	}
	if len(neg) != len(msg) {
		return 0, errors.Errorf("user %d: %d negative sample sets for %d words", user, len(neg), len(msg))
	}
	if len(cp) != 0 && len(cp) != len(msg) {
		return 0, errors.Errorf("user %d: %d cond probs for %d words", user, len(cp), len(msg))
	}

	grad := make([]float64, len(u))
	var obj float64
	for j, w := range msg {
		ew, err := m.wordRow(w)
		if err != nil {
			return 0, err
		}
		weight := 1.0
		if len(cp) > 0 {
			weight = math.Exp(cp[j])
		}
		pos := floats.Dot(u, ew)
		for _, n := range neg[j] {
			en, err := m.wordRow(n)
			if err != nil {
				return 0, err
			}
			hinge := m.opts.Margin - pos + floats.Dot(u, en)
			if hinge <= 0 {
				continue
			}
			obj += weight * hinge
			floats.AddScaled(grad, weight, en)
			floats.AddScaled(grad, -weight, ew)
		}
	}

	// u is a view on the row of U
	floats.AddScaled(u, -m.opts.LearningRate, grad)
	return obj, nil
}

// Predict returns the mean log probability of the words of msg under user's
// embedding, where p(w|u) is the softmax of E.u over the vocabulary, along
// with p(w|u) for each word of msg. Predict does not modify the model.
func (m *Model) Predict(user int, msg []int) (float64, []float64, error) {
	u, err := m.userRow(user)
	if err != nil {
		return 0, nil, err
	}
	if len(msg) == 0 {
		return 0, nil, errors.Errorf("user %d: empty message", user)
	}

	nWords, _ := m.E.Dims()
	logits := mat.NewVecDense(nWords, nil)
	logits.MulVec(m.E, mat.NewVecDense(len(u), u))
	raw := logits.RawVector().Data
	norm := floats.LogSumExp(raw)

	probs := make([]float64, len(msg))
	var logProb float64
	for j, w := range msg {
		if w < 0 || w >= nWords {
			return 0, nil, errors.Wrapf(ErrInvalidWord, "word %d not in [0, %d)", w, nWords)
		}
		lp := raw[w] - norm
		logProb += lp
		probs[j] = math.Exp(lp)
	}
	return logProb / float64(len(msg)), probs, nil
}

// Save atomically writes the user embeddings to path. Paths ending with .sz
// are snappy compressed.
func (m *Model) Save(path string) error {
	return fileutil.AtomicWrite(path, func(w io.Writer) error {
		if !strings.HasSuffix(path, ".sz") {
			_, err := m.U.MarshalBinaryTo(w)
			return err
		}
		sw := snappy.NewBufferedWriter(w)
		if _, err := m.U.MarshalBinaryTo(sw); err != nil {
			sw.Close()
			return err
		}
		return sw.Close()
	})
}

// LoadUserEmbeddings reads user embeddings written by Save.
func LoadUserEmbeddings(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".sz") {
		r = snappy.NewReader(f)
	}
	var U mat.Dense
	if _, err := U.UnmarshalBinaryFrom(r); err != nil {
		return nil, errors.Wrapf(err, "decoding user embeddings from %s", path)
	}
	return &U, nil
}

func (m *Model) userRow(user int) ([]float64, error) {
	n, _ := m.U.Dims()
	if user < 0 || user >= n {
		return nil, errors.Wrapf(ErrInvalidUser, "user %d not in [0, %d)", user, n)
	}
	return m.U.RawRowView(user), nil
}

func (m *Model) wordRow(w int) ([]float64, error) {
	n, _ := m.E.Dims()
	if w < 0 || w >= n {
		return nil, errors.Wrapf(ErrInvalidWord, "word %d not in [0, %d)", w, n)
	}
	return m.E.RawRowView(w), nil
}
