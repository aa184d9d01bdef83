package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/NamanBalaji/tbs/internal/logger"
)

// OSFileSystem implements path enumeration and the small set of file
// operations the reconciler needs using OS file operations
type OSFileSystem struct{}

// NewOSFileSystem creates a new OS filesystem
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// Enumerate walks every root and returns the regular files below it, each
// root in lexical order, roots in the order given. Paths are absolute and
// deduplicated; a root that is itself a regular file is returned as is.
// Unreadable subdirectories are logged and skipped.
func (fsys *OSFileSystem) Enumerate(roots []string) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving scan root %s: %w", root, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("scan root %s: %w", root, err)
		}

		if info.Mode().IsRegular() {
			add(abs)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				logger.Warnf("Skipping %s: %v", path, walkErr)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			if d.Type().IsRegular() {
				add(path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking scan root %s: %w", root, err)
		}
	}

	return paths, nil
}

// EnsureDirectory ensures a directory exists
func (fsys *OSFileSystem) EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Size returns the length of the regular file at path. A missing file
// reports exists == false and no error.
func (fsys *OSFileSystem) Size(path string) (size int64, exists bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if !info.Mode().IsRegular() {
		return 0, false, fmt.Errorf("%s is not a regular file", path)
	}

	return info.Size(), true, nil
}
