package datasets

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// expandUser replaces a leading "~" with the current user's home directory.
func expandUser(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "failed to expand %q", path)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// walkedDir is a directory reached while walking a tree, with the regular
// files (or symlinks to files) it contains, sorted by name.
type walkedDir struct {
	path  string
	files []string
}

// walkSorted walks root following symbolic links to directories and returns
// every directory found, sorted by path, each with its sorted file names.
// Directories already visited through another link are skipped.
func walkSorted(root string) ([]walkedDir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", root)
	}

	visited := make(map[string]bool)
	var dirs []walkedDir
	var walk func(dir string) error
	walk = func(dir string) error {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve %s", dir)
		}
		if visited[resolved] {
			return nil
		}
		visited[resolved] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			return errors.Wrapf(err, "failed to read directory %s", dir)
		}
		wd := walkedDir{path: dir}
		var subDirs []string
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			isDir := entry.IsDir()
			if entry.Type()&os.ModeSymlink != 0 {
				target, err := os.Stat(full)
				if err != nil {
					// Dangling link: neither a file nor a directory we can use.
					continue
				}
				isDir = target.IsDir()
			}
			if isDir {
				subDirs = append(subDirs, full)
			} else {
				wd.files = append(wd.files, entry.Name())
			}
		}
		sort.Strings(wd.files)
		dirs = append(dirs, wd)
		for _, sub := range subDirs {
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].path < dirs[j].path })
	return dirs, nil
}
