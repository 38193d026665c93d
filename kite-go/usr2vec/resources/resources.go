package resources

import (
	"github.com/kiteco/usr2vec/kite-golib/serialization"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Bundle is the serialized form of Resources. Words[i] is the word with id i
// and Embeddings[i] its pretrained vector.
type Bundle struct {
	Words      []string
	Users      []string
	Embeddings [][]float64
}

// Resources holds the read-only inputs shared by every stage: the word and
// user indices and the pretrained word embeddings E (|V| x dim).
type Resources struct {
	Words *Index
	Users *Index
	E     *mat.Dense
}

// Load reads a Bundle from path (see serialization.Decode for supported
// formats) and builds Resources from it.
func Load(path string) (*Resources, error) {
	var b Bundle
	if err := serialization.Decode(path, &b); err != nil {
		return nil, err
	}
	res, err := FromBundle(b)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid resources in %s", path)
	}
	return res, nil
}

// FromBundle validates b and builds Resources from it.
func FromBundle(b Bundle) (*Resources, error) {
	if len(b.Words) == 0 {
		return nil, errors.New("empty vocabulary")
	}
	if len(b.Words) != len(b.Embeddings) {
		return nil, errors.Errorf("%d words but %d embeddings", len(b.Words), len(b.Embeddings))
	}
	words := NewIndex(b.Words)
	if words.Len() != len(b.Words) {
		return nil, errors.New("duplicate words in vocabulary")
	}
	if len(b.Users) == 0 {
		return nil, errors.New("no users")
	}
	users := NewIndex(b.Users)
	if users.Len() != len(b.Users) {
		return nil, errors.New("duplicate user identifiers")
	}

	dim := len(b.Embeddings[0])
	if dim == 0 {
		return nil, errors.New("zero dimensional embeddings")
	}
	data := make([]float64, 0, len(b.Embeddings)*dim)
	for i, row := range b.Embeddings {
		if len(row) != dim {
			return nil, errors.Errorf("embedding for %q has dimension %d, expected %d", b.Words[i], len(row), dim)
		}
		data = append(data, row...)
	}

	return &Resources{
		Words: words,
		Users: users,
		E:     mat.NewDense(len(b.Embeddings), dim, data),
	}, nil
}

// Bundle returns the serializable form of r.
func (r *Resources) Bundle() Bundle {
	rows, _ := r.E.Dims()
	embs := make([][]float64, rows)
	for i := range embs {
		embs[i] = mat.Row(nil, i, r.E)
	}
	return Bundle{
		Words:      r.Words.Names(),
		Users:      r.Users.Names(),
		Embeddings: embs,
	}
}

// Dim returns the embedding dimension.
func (r *Resources) Dim() int {
	_, c := r.E.Dims()
	return c
}

// WordIDs maps tokens to word ids, dropping tokens missing from the
// vocabulary. The positions (in tokens) of the kept tokens are also returned.
func (r *Resources) WordIDs(tokens []string) ([]int, []int) {
	var ids, kept []int
	for i, tok := range tokens {
		if id, ok := r.Words.ID(tok); ok {
			ids = append(ids, id)
			kept = append(kept, i)
		}
	}
	return ids, kept
}
