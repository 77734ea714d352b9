package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source is one discovered input file.
type Source struct {
	Path string // Absolute path.
	Root string // Absolute root the file was found under.
	Rel  string // Path relative to Root.
}

// CheckRoots splits roots into those that exist and those that don't. A root
// that exists but is not a directory is an error.
func CheckRoots(roots []string) (present, missing []string, err error) {
	for _, r := range roots {
		fi, statErr := os.Stat(r)
		switch {
		case os.IsNotExist(statErr):
			missing = append(missing, r)
		case statErr != nil:
			return nil, nil, statErr
		case !fi.IsDir():
			return nil, nil, fmt.Errorf("root is not a directory: %s", r)
		default:
			present = append(present, r)
		}
	}
	return present, missing, nil
}

// Discover collects files whose lowercase extension is in exts. Each root is
// listed non-recursively unless recursive is set; hidden files and
// directories are ignored. Results keep root order, are sorted within a
// root, and a file reachable from two roots is returned once.
func Discover(roots, exts []string, recursive bool) ([]Source, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	seen := make(map[string]bool)
	var out []Source
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		files, err := listRoot(abs, want, recursive)
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, path := range files {
			if seen[path] {
				continue
			}
			seen[path] = true
			rel, err := filepath.Rel(abs, path)
			if err != nil {
				return nil, err
			}
			out = append(out, Source{Path: path, Root: abs, Rel: rel})
		}
	}
	return out, nil
}

func listRoot(root string, want map[string]bool, recursive bool) ([]string, error) {
	var files []string
	if !recursive {
		entries, err := os.ReadDir(root)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type().IsRegular() && matches(e.Name(), want) {
				files = append(files, filepath.Join(root, e.Name()))
			}
		}
		return files, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if path != root && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && matches(d.Name(), want) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func matches(name string, want map[string]bool) bool {
	return !hidden(name) && want[strings.ToLower(filepath.Ext(name))]
}

// hidden covers dotfiles, which includes the staging temp files written
// next to destinations.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
