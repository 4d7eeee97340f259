package safetensors

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReplaceHeader rewrites path as [len][next][tensor data of the current file].
// The new content is assembled in a sibling temp file and renamed over path,
// so an interrupted rewrite leaves the original untouched.
func ReplaceHeader(path string, current, next Header) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	if info.Size() < current.DataOffset() {
		return fmt.Errorf("%w: file shorter than header", ErrInvalidHeader)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = next.Encode(tmp); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err = src.Seek(current.DataOffset(), io.SeekStart); err != nil {
		return fmt.Errorf("seek tensor data: %w", err)
	}
	if _, err = io.Copy(tmp, src); err != nil {
		return fmt.Errorf("copy tensor data: %w", err)
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
