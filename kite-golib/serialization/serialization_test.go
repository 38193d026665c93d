package serialization

import (
	"bytes"
	"compress/gzip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type params struct {
	Etas  []map[int]float64
	Probs []float64
}

func gzipString(x string) []byte {
	var b bytes.Buffer
	w := gzip.NewWriter(&b)
	w.Write([]byte(x))
	w.Close()
	return b.Bytes()
}

func TestDecodeJSON(t *testing.T) {
	var p params
	d := []byte(`{"Etas": [{"1": 0.5}], "Probs": [0.25, 0.75]}`)
	require.NoError(t, decodeAs(bytes.NewBuffer(d), "sage.json", &p))
	assert.Equal(t, []float64{0.25, 0.75}, p.Probs)
	assert.Equal(t, 0.5, p.Etas[0][1])
}

func TestDecodeGzippedYAML(t *testing.T) {
	var cfg struct {
		Epochs   int     `yaml:"epochs"`
		Learning float64 `yaml:"lrate"`
	}
	d := gzipString("epochs: 7\nlrate: 0.001\n")
	require.NoError(t, decodeAs(bytes.NewBuffer(d), "s3://kite-data/train.yaml.gz", &cfg))
	assert.Equal(t, 7, cfg.Epochs)
	assert.Equal(t, 0.001, cfg.Learning)
}

func TestDecodeUnknownExtension(t *testing.T) {
	var p params
	err := decodeAs(bytes.NewBufferString("{}"), "sage.pkl", &p)
	assert.Error(t, err)
}

func TestRoundTripFiles(t *testing.T) {
	dir := t.TempDir()
	in := params{
		Etas:  []map[int]float64{{0: 1.5, 3: -2}, {}},
		Probs: []float64{0.1, 0.2, 0.3, 0.4},
	}

	for _, name := range []string{"p.gob", "p.gob.gz", "p.json", "p.json.gz", "p.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Encode(path, in), name)

		var out params
		require.NoError(t, Decode(path, &out), name)
		assert.Equal(t, in.Probs, out.Probs, name)
		assert.Equal(t, in.Etas[0], out.Etas[0], name)
	}
}
