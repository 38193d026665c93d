package serialization

import (
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kiteco/usr2vec/kite-golib/fileutil"
	"gopkg.in/yaml.v2"
)

// Encoder is an interface that matches gob.Encoder, json.Encoder, and yaml.Encoder
type Encoder interface {
	// Encode adds an item to the stream
	Encode(interface{}) error
}

// Encode atomically writes obj to the local path, using the format specified
// by the file extension, which can be .json, .gob, .yml or .yaml. The path
// may additionally have a .gz suffix, in which case the stream will be
// compressed.
func Encode(path string, obj interface{}) error {
	return fileutil.AtomicWrite(path, func(w io.Writer) error {
		return encodeAs(w, path, obj)
	})
}

func encodeAs(w io.Writer, path string, obj interface{}) error {
	inpath := path
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		path = strings.TrimSuffix(path, ".gz")
		gz = gzip.NewWriter(w)
		w = gz
	}

	var e Encoder
	var closer io.Closer
	switch {
	case strings.HasSuffix(path, ".json"):
		e = json.NewEncoder(w)
	case strings.HasSuffix(path, ".gob"):
		e = gob.NewEncoder(w)
	case strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".yaml"):
		ye := yaml.NewEncoder(w)
		e, closer = ye, ye
	default:
		return fmt.Errorf("could not find encoder for %s", inpath)
	}

	if err := e.Encode(obj); err != nil {
		return fmt.Errorf("error encoding %s: %v", inpath, err)
	}
	// We must close in reverse order
	if closer != nil {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}
