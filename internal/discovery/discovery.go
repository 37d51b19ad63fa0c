// Package discovery lists the media files a batch run will process.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/obiente/translate/batchscribe/internal/domain"
)

// ErrNotFound is returned when the root is missing or not a directory.
var ErrNotFound = errors.New("input directory not found")

type Options struct {
	Extensions []string
	Recursive  bool
	// Exclude holds absolute paths that must not be returned.
	Exclude map[string]struct{}
}

// NormalizeExtensions lower-cases extensions and ensures a leading dot.
func NormalizeExtensions(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}

// Discover returns one Job per accepted file under root, sorted by absolute path.
func Discover(root string, opts Options) ([]domain.Job, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, abs)
	}

	accept := NormalizeExtensions(opts.Extensions)
	var paths []string

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return err
			}
			// unreadable entries below the root are skipped
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == abs {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := accept[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if _, done := opts.Exclude[path]; done {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", abs, err)
	}

	sort.Strings(paths)
	jobs := make([]domain.Job, len(paths))
	for i, p := range paths {
		jobs[i] = domain.Job{Path: p, Index: i}
	}
	return jobs, nil
}
