// Package archive walks files of zip archives, used for override packs
// distributed as a single file.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// WalkFunc is called for every matching file. name is slash separated path
// inside the archive. If an error is returned, processing stops.
type WalkFunc func(name string, data []byte) error

// IsArchive reports whether file at path is a zip archive.
func IsArchive(p string) bool {
	r, err := zip.OpenReader(p)
	if r != nil {
		r.Close()
	}
	return err == nil || errors.Is(err, zip.ErrInsecurePath)
}

// Walk reads every regular file of archive for which match returns true,
// in archive order. Entries with absolute paths or ".." components make
// the whole archive invalid.
func Walk(archive string, match func(name string) bool, walkFn WalkFunc) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		if r != nil {
			r.Close()
		}
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := f.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if f.FileInfo().IsDir() || !match(name) {
			continue
		}
		data, err := readFile(f)
		if err != nil {
			return fmt.Errorf("zip entry %q: %w", name, err)
		}
		if err := walkFn(name, data); err != nil {
			return err
		}
	}
	return nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// isSafePath returns false for absolute paths and paths with ".." parts.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}
