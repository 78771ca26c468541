// Package datasets indexes folders of images and numpy arrays and presents
// them as examples suitable for model training.
//
// Two layouts are supported:
//
// DatasetFolder
//   - root/class_x/xxx.ext, root/class_y/123.ext, ...
//   - The class folders are sorted alphabetically and mapped to 0..N-1.
//   - Each example is one loaded sample plus its class index.
//
// MultiTaskDatasetFolder
//   - root/<prefix><task>/xxx.ext for every task (e.g. "bscan", "slo",
//     "layermaps", "semseg").
//   - Every task folder holds the same number of files; the i-th sorted file
//     of each task belongs to the same sample.
//   - Each example is a map task -> loaded array, a target (always 0) and the
//     sample id (the file stem).
//
// Both datasets only store file paths at construction time and read the
// actual data when an example is requested. Failing files are logged and a
// random replacement index is tried instead.
//
// The datasets implement gomlx's train.Dataset so they can be fed directly to
// a train.Loop.
package datasets

import (
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// Dataset is the interface shared by the folder datasets in this package.
type Dataset interface {
	train.Dataset

	// Len returns the number of indexed samples.
	Len() int

	// Batch loads the examples at indices and stacks them into tensors.
	Batch(indices []int) (*Batch, error)
}

// Sample is one indexed file and its integer label.
type Sample struct {
	Path  string
	Label int
}

var (
	_ Dataset = (*DatasetFolder)(nil)
	_ Dataset = (*MultiTaskDatasetFolder)(nil)
)
