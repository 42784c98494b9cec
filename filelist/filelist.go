// Package filelist reads the stream of candidate source-file paths fed to
// the core, and validates each against escaping the working-directory
// tree. It implements the external collaborator contract named FILELIST.
package filelist

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Read returns an iterator over the paths in r, one per line (nulSeparated
// false) or one per NUL byte (nulSeparated true). The trailing separator
// after the last entry is optional. Iteration stops at the first read
// error, which is yielded once as the final pair.
func Read(r io.Reader, nulSeparated bool) func(yield func(string, error) bool) {
	sep := byte('\n')
	if nulSeparated {
		sep = 0
	}
	return func(yield func(string, error) bool) {
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString(sep)
			if len(line) > 0 {
				entry := strings.TrimSuffix(line, string(sep))
				if !yield(entry, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("filelist: reading entry: %w", err))
				return
			}
		}
	}
}

// Resolve joins base and the raw path read from a file list, rejecting any
// result that escapes the base directory tree via ".." components or an
// absolute path. An absolute path that lies inside base is accepted as is.
func Resolve(base, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("filelist: empty path entry")
	}
	joined := filepath.Join(base, raw)
	if filepath.IsAbs(raw) {
		joined = filepath.Clean(raw)
	}
	cleanBase := filepath.Clean(base)

	rel, err := filepath.Rel(cleanBase, joined)
	if err != nil {
		return "", fmt.Errorf("filelist: resolving %q: %w", raw, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filelist: path %q escapes the working directory tree", raw)
	}

	return joined, nil
}
