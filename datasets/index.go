package datasets

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrInvalidValidator is returned when both or neither of extensions and an
// IsValidFile function are given to the indexers.
var ErrInvalidValidator = errors.New("exactly one of extensions and isValidFile must be set")

// resolveValidator returns the file filter built from extensions or isValid.
func resolveValidator(extensions []string, isValid IsValidFile) (IsValidFile, error) {
	bothNone := len(extensions) == 0 && isValid == nil
	bothSet := len(extensions) > 0 && isValid != nil
	if bothNone || bothSet {
		return nil, ErrInvalidValidator
	}
	if isValid != nil {
		return isValid, nil
	}
	return func(path string) bool {
		return HasAllowedExtension(path, extensions)
	}, nil
}

// FindClasses returns the class folders found directly under dir, sorted
// alphabetically, and the mapping from class name to its position.
func FindClasses(dir string) (classes []string, classToIdx map[string]int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list classes in %s", dir)
	}
	for _, entry := range entries {
		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, entry.Name())); err == nil {
				isDir = info.IsDir()
			}
		}
		if isDir {
			classes = append(classes, entry.Name())
		}
	}
	sort.Strings(classes)
	classToIdx = make(map[string]int, len(classes))
	for i, name := range classes {
		classToIdx[name] = i
	}
	return classes, classToIdx, nil
}

// MakeDataset lists the files under dir/<class> for every class in
// classToIdx, labelling each with its class index. Classes are visited in
// alphabetical order and files in sorted path order. Class folders that do
// not exist are skipped.
func MakeDataset(dir string, classToIdx map[string]int, extensions []string, isValid IsValidFile) ([]Sample, error) {
	dir, err := expandUser(dir)
	if err != nil {
		return nil, err
	}
	valid, err := resolveValidator(extensions, isValid)
	if err != nil {
		return nil, err
	}

	classes := make([]string, 0, len(classToIdx))
	for name := range classToIdx {
		classes = append(classes, name)
	}
	sort.Strings(classes)

	var samples []Sample
	for _, class := range classes {
		classIdx := classToIdx[class]
		target := filepath.Join(dir, class)
		if info, err := os.Stat(target); err != nil || !info.IsDir() {
			continue
		}
		dirs, err := walkSorted(target)
		if err != nil {
			return nil, err
		}
		for _, d := range dirs {
			for _, name := range d.files {
				path := filepath.Join(d.path, name)
				if valid(path) {
					samples = append(samples, Sample{Path: path, Label: classIdx})
				}
			}
		}
	}
	return samples, nil
}

// MakeNonClassDataset lists every valid file under dir, in sorted path order,
// with label 0. If fsids is not nil only files whose stem is in fsids are
// kept.
func MakeNonClassDataset(dir string, extensions []string, isValid IsValidFile, fsids map[string]bool) ([]Sample, error) {
	klog.V(1).Infof("Making non-class dataset from %s", dir)
	dir, err := expandUser(dir)
	if err != nil {
		return nil, err
	}
	valid, err := resolveValidator(extensions, isValid)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset directory %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("dataset directory %s is not a directory", dir)
	}

	dirs, err := walkSorted(dir)
	if err != nil {
		return nil, err
	}
	var samples []Sample
	for _, d := range dirs {
		for _, name := range d.files {
			path := filepath.Join(d.path, name)
			if !valid(path) {
				continue
			}
			if fsids != nil && !fsids[fileStem(path)] {
				continue
			}
			samples = append(samples, Sample{Path: path, Label: 0})
		}
	}
	return samples, nil
}
