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

// Decoder is an interface that matches gob.Decoder, json.Decoder, and yaml.Decoder
type Decoder interface {
	// Decode extracts an object from the stream
	Decode(interface{}) error
}

// Decode loads a single object from a local or s3 path into obj. If the path
// ends with .gz then the contents will be decompressed. The encoding is then
// determined by the remaining file extension, which can be .json, .gob, .yml
// or .yaml.
//
//   var params sage.Params
//   err := serialization.Decode("s3://kite-data/usr2vec/sage.gob.gz", &params)
func Decode(path string, obj interface{}) error {
	r, err := fileutil.NewReader(path)
	if err != nil {
		return fmt.Errorf("error loading %s: %v", path, err)
	}
	defer r.Close()
	return decodeAs(r, path, obj)
}

// decodeAs is like Decode but uses the provided path to determine the compression and
// encoding used in the stream.
func decodeAs(r io.Reader, path string, obj interface{}) error {
	inpath := path
	if strings.HasSuffix(path, ".gz") {
		path = strings.TrimSuffix(path, ".gz")
		rd, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("error loading %s: %v", inpath, err)
		}
		defer rd.Close()
		r = rd
	}

	d, err := newDecoder(r, path)
	if err != nil {
		return fmt.Errorf("could not find decoder for %s", inpath)
	}
	if err := d.Decode(obj); err != nil {
		return fmt.Errorf("error decoding %s: %v", inpath, err)
	}
	return nil
}

func newDecoder(r io.Reader, path string) (Decoder, error) {
	switch {
	case strings.HasSuffix(path, ".json"):
		return json.NewDecoder(r), nil
	case strings.HasSuffix(path, ".gob"):
		return gob.NewDecoder(r), nil
	case strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".yaml"):
		return yaml.NewDecoder(r), nil
	}
	return nil, fmt.Errorf("unknown encoding")
}
