package instance

import (
	"io"

	"github.com/kiteco/usr2vec/kite-golib/recordio"
)

// Source is a rewindable sequence of instances.
type Source interface {
	// Next decodes the next instance into inst, returning io.EOF at the end
	Next(inst *Instance) error
	// Rewind restarts the sequence from the first instance
	Rewind() error
}

// Stream is a Source backed by a record stream on disk.
type Stream struct {
	r *recordio.Reader
}

// OpenStream opens the instance stream at path.
func OpenStream(path string) (*Stream, error) {
	r, err := recordio.Open(path)
	if err != nil {
		return nil, err
	}
	return &Stream{r: r}, nil
}

// Next implements Source
func (s *Stream) Next(inst *Instance) error {
	return s.r.Next(inst)
}

// Rewind implements Source
func (s *Stream) Rewind() error {
	return s.r.Rewind()
}

// Close closes the underlying file
func (s *Stream) Close() error {
	return s.r.Close()
}

// ReadAll reads every remaining instance from src.
func ReadAll(src Source) ([]*Instance, error) {
	var out []*Instance
	for {
		inst := new(Instance)
		err := src.Next(inst)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
}

// WriteAll writes instances to a new stream at path.
func WriteAll(path string, insts []*Instance) error {
	w, err := recordio.Create(path)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if err := w.Append(inst); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// Slice is an in-memory Source.
type Slice struct {
	Instances []*Instance
	pos       int
}

// Next implements Source. The instance is copied shallowly into inst.
func (s *Slice) Next(inst *Instance) error {
	if s.pos >= len(s.Instances) {
		return io.EOF
	}
	*inst = *s.Instances[s.pos]
	s.pos++
	return nil
}

// Rewind implements Source
func (s *Slice) Rewind() error {
	s.pos = 0
	return nil
}
