package fileutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// TempSibling creates a new file in the same directory as path, so that it
// can later be renamed onto path without crossing filesystems.
func TempSibling(path string) (*os.File, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return nil, errors.Wrapf(err, "creating temp file for %s", path)
	}
	return f, nil
}

// Replace renames src onto dst. The rename is the commit point: until it
// succeeds dst is untouched, and afterwards only src's content is at dst.
func Replace(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return errors.Wrapf(err, "replacing %s with %s", dst, src)
	}
	syncDir(filepath.Dir(dst))
	return nil
}

// AtomicWrite writes the output of write to path. Readers of path observe
// either the previous content or the complete new content, never a partial
// write.
func AtomicWrite(path string, write func(w io.Writer) error) (err error) {
	f, err := TempSibling(path)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if err := write(f); err != nil {
		return multierr.Append(errors.Wrapf(err, "writing %s", tmp), f.Close())
	}
	if err := f.Sync(); err != nil {
		return multierr.Append(errors.Wrapf(err, "syncing %s", tmp), f.Close())
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmp)
	}
	return Replace(tmp, path)
}

// syncDir persists the directory entry after a rename. Not all platforms
// allow opening directories, in which case this is a no-op.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	d.Sync()
}
