// Package recordio implements a forward-only, rewindable stream of
// msgpack-encoded records. Records are self-delimiting, so each one can be
// decoded independently of the others and new records can be appended to
// the end of a stream without touching what was already written.
//
// Streams whose path ends in ".sz" are additionally framed with snappy.
package recordio

import (
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
	"go.uber.org/multierr"
)

// Format selects the framing of a stream.
type Format int

const (
	// Plain streams are consecutive msgpack records.
	Plain Format = iota
	// Snappy streams are msgpack records inside a snappy framed stream.
	Snappy
)

// FormatFor returns the format used for a stream stored at path.
func FormatFor(path string) Format {
	if strings.HasSuffix(path, ".sz") {
		return Snappy
	}
	return Plain
}

// Writer appends records to a stream.
type Writer struct {
	sw     *snappy.Writer
	mw     *msgp.Writer
	closer io.Closer
}

// NewWriter returns a Writer that appends records to w. Closing the Writer
// flushes buffered records but does not close w.
func NewWriter(w io.Writer, format Format) *Writer {
	out := &Writer{}
	if format == Snappy {
		out.sw = snappy.NewBufferedWriter(w)
		w = out.sw
	}
	out.mw = msgp.NewWriter(w)
	return out
}

// Create truncates or creates the file at path and returns a Writer on it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating record stream %s", path)
	}
	w := NewWriter(f, FormatFor(path))
	w.closer = f
	return w, nil
}

// Append writes one record to the stream.
func (w *Writer) Append(rec msgp.Encodable) error {
	return rec.EncodeMsg(w.mw)
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.mw.Flush(); err != nil {
		return err
	}
	if w.sw != nil {
		return w.sw.Flush()
	}
	return nil
}

// Close flushes the stream, and closes the underlying file if the Writer was
// obtained from Create.
func (w *Writer) Close() error {
	err := w.Flush()
	if w.sw != nil {
		err = multierr.Append(err, w.sw.Close())
	}
	if w.closer != nil {
		err = multierr.Append(err, w.closer.Close())
	}
	return err
}

// Reader iterates over the records of a stream stored in a local file.
type Reader struct {
	path string
	f    *os.File
	sr   *snappy.Reader
	mr   *msgp.Reader
}

// Open opens the stream at path for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening record stream %s", path)
	}
	r := &Reader{path: path, f: f}
	var src io.Reader = f
	if FormatFor(path) == Snappy {
		r.sr = snappy.NewReader(f)
		src = r.sr
	}
	r.mr = msgp.NewReader(src)
	return r, nil
}

// Next decodes the next record into rec. It returns io.EOF once the stream is
// exhausted, and io.ErrUnexpectedEOF if the stream ends inside a record.
func (r *Reader) Next(rec msgp.Decodable) error {
	if _, err := r.mr.R.Peek(1); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errors.Wrapf(err, "reading %s", r.path)
	}
	if err := rec.DecodeMsg(r.mr); err != nil {
		if cause := msgp.Cause(err); cause == io.EOF || cause == io.ErrUnexpectedEOF ||
			errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return io.ErrUnexpectedEOF
		}
		return errors.Wrapf(err, "decoding record from %s", r.path)
	}
	return nil
}

// Rewind moves the Reader back to the first record.
func (r *Reader) Rewind() error {
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(err, "rewinding %s", r.path)
	}
	if r.sr != nil {
		r.sr.Reset(r.f)
		r.mr.Reset(r.sr)
		return nil
	}
	r.mr.Reset(r.f)
	return nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
