package recordio

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
)

type pair struct {
	Word  string
	Count int
}

func (p *pair) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(2); err != nil {
		return err
	}
	if err := w.WriteString(p.Word); err != nil {
		return err
	}
	return w.WriteInt(p.Count)
}

func (p *pair) DecodeMsg(r *msgp.Reader) error {
	sz, err := r.ReadArrayHeader()
	if err != nil {
		return err
	}
	if sz != 2 {
		return msgp.ArrayError{Wanted: 2, Got: sz}
	}
	if p.Word, err = r.ReadString(); err != nil {
		return err
	}
	p.Count, err = r.ReadInt()
	return err
}

func writePairs(t *testing.T, path string, pairs []pair) {
	w, err := Create(path)
	require.NoError(t, err)
	for i := range pairs {
		require.NoError(t, w.Append(&pairs[i]))
	}
	require.NoError(t, w.Close())
}

func readPairs(t *testing.T, r *Reader) []pair {
	var out []pair
	for {
		var p pair
		err := r.Next(&p)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, p)
	}
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, Snappy, FormatFor("/data/train.msgp.sz"))
	assert.Equal(t, Plain, FormatFor("/data/train.msgp"))
}

func TestAppendReadRewind(t *testing.T) {
	pairs := []pair{{"hello", 1}, {"world", 2}, {"_pad_", 3}}

	for _, name := range []string{"train.msgp", "train.msgp.sz"} {
		path := filepath.Join(t.TempDir(), name)
		writePairs(t, path, pairs)

		r, err := Open(path)
		require.NoError(t, err)

		assert.Equal(t, pairs, readPairs(t, r), name)
		// exhausted streams keep returning EOF
		assert.Equal(t, io.EOF, r.Next(&pair{}))

		require.NoError(t, r.Rewind())
		assert.Equal(t, pairs, readPairs(t, r), name)
		require.NoError(t, r.Close())
	}
}

func TestEmptyStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.msgp")
	writePairs(t, path, nil)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, io.EOF, r.Next(&pair{}))
}

func TestTruncatedStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.msgp")
	writePairs(t, path, []pair{{"hello", 1}, {"world", 2}})

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var p pair
	require.NoError(t, r.Next(&p))
	assert.Equal(t, "hello", p.Word)
	assert.Equal(t, io.ErrUnexpectedEOF, r.Next(&p))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.msgp"))
	assert.Error(t, err)
}
