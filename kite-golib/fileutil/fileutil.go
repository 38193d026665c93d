package fileutil

import (
	"io"
	"os"

	"github.com/kiteco/usr2vec/kite-golib/awsutil"
)

// NewReader opens a local or remote path for reading. If the path looks like
// "s3://bucket/path/to/object" then this will read an object from S3. Otherwise, this
// will read a path from the local filesystem.
func NewReader(path string) (io.ReadCloser, error) {
	if awsutil.IsS3URI(path) {
		return awsutil.NewS3Reader(path)
	}
	return os.Open(path)
}

// Exists returns true if a local file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
