package datasets

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNoSamples is returned when a dataset folder holds no loadable file.
var ErrNoSamples = errors.New("no samples found")

func noSamplesError(dir string, extensions []string) error {
	msg := fmt.Sprintf("found 0 files in subfolders of: %s", dir)
	if len(extensions) > 0 {
		msg += fmt.Sprintf("\nSupported extensions are: %s", strings.Join(extensions, ","))
	}
	return errors.WithMessage(ErrNoSamples, msg)
}

// DatasetFolder is a classification dataset whose samples are arranged as:
//
//	root/class_x/xxx.ext
//	root/class_x/xxy.ext
//	root/class_y/123.ext
//	root/class_y/nsdf3.ext
//
// Classes are the folder names sorted alphabetically; files are indexed in
// sorted path order, recursively.
type DatasetFolder struct {
	name string

	// Root directory of the dataset.
	Root string

	// Classes sorted alphabetically and ClassToIdx, their positions.
	Classes    []string
	ClassToIdx map[string]int

	// Samples lists every indexed file with its class index, and Targets
	// the class index of each sample.
	Samples []Sample
	Targets []int

	// Extensions used to filter files, nil when a custom filter was given.
	Extensions []string

	loader          Loader
	transform       Transform
	targetTransform TargetTransform

	cfg     Config
	retrier *retrier
	sampler *sampler
}

// NewDatasetFolder indexes root and returns a dataset loading its samples with
// loader. Exactly one of extensions and isValid must be set.
func NewDatasetFolder(root string, loader Loader, extensions []string, isValid IsValidFile, cfg Config) (*DatasetFolder, error) {
	if loader == nil {
		return nil, errors.New("a loader is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := expandUser(root)
	if err != nil {
		return nil, err
	}

	classes, classToIdx, err := FindClasses(root)
	if err != nil {
		return nil, err
	}
	samples, err := MakeDataset(root, classToIdx, extensions, isValid)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, noSamplesError(root, extensions)
	}
	klog.V(1).Infof("DatasetFolder %s: %d samples in %d classes", root, len(samples), len(classes))

	targets := make([]int, len(samples))
	for i, s := range samples {
		targets[i] = s.Label
	}
	return &DatasetFolder{
		name:       filepath.Base(root),
		Root:       root,
		Classes:    classes,
		ClassToIdx: classToIdx,
		Samples:    samples,
		Targets:    targets,
		Extensions: extensions,
		loader:     loader,
		cfg:        cfg,
		retrier:    newRetrier(len(samples), cfg),
		sampler:    newSampler(len(samples), cfg),
	}, nil
}

// NewImageFolder returns a DatasetFolder over ImageExtensions (or isValid, if
// set) using DefaultLoader.
func NewImageFolder(root string, isValid IsValidFile, cfg Config) (*DatasetFolder, error) {
	var extensions []string
	if isValid == nil {
		extensions = ImageExtensions
	}
	return NewDatasetFolder(root, DefaultLoader, extensions, isValid, cfg)
}

// WithName sets the name returned by Name. Returns itself.
func (ds *DatasetFolder) WithName(name string) *DatasetFolder {
	ds.name = name
	return ds
}

// WithTransform sets the transform applied to every loaded sample. Returns
// itself.
func (ds *DatasetFolder) WithTransform(t Transform) *DatasetFolder {
	ds.transform = t
	return ds
}

// WithTargetTransform sets the transform applied to every target. Returns
// itself.
func (ds *DatasetFolder) WithTargetTransform(t TargetTransform) *DatasetFolder {
	ds.targetTransform = t
	return ds
}

// Name implements train.Dataset.
func (ds *DatasetFolder) Name() string { return ds.name }

// Len returns the number of indexed samples.
func (ds *DatasetFolder) Len() int { return len(ds.Samples) }

// Example loads the sample at index and returns it with its target. If the
// file fails to load, the error is logged and a random index is tried instead;
// the index actually loaded is returned.
func (ds *DatasetFolder) Example(index int) (sample *Array, target int, loaded int, err error) {
	loaded, err = ds.retrier.load(index,
		func(i int) string { return ds.Samples[i].Path },
		func(i int) error {
			var err error
			sample, err = ds.loader(ds.Samples[i].Path)
			return err
		})
	if err != nil {
		return nil, 0, loaded, err
	}
	target = ds.Samples[loaded].Label

	if ds.transform != nil {
		if sample, err = ds.transform(sample); err != nil {
			return nil, 0, loaded, errors.WithMessagef(err, "transform of %s", ds.Samples[loaded].Path)
		}
	}
	if ds.targetTransform != nil {
		target = ds.targetTransform(target)
	}
	return sample, target, loaded, nil
}

// Batch loads the examples at indices.
func (ds *DatasetFolder) Batch(indices []int) (*Batch, error) {
	b := newBatch([]string{SampleKey}, len(indices))
	for _, idx := range indices {
		sample, target, loaded, err := ds.Example(idx)
		if err != nil {
			return nil, err
		}
		b.Indices = append(b.Indices, loaded)
		b.IDs = append(b.IDs, fileStem(ds.Samples[loaded].Path))
		b.Inputs[SampleKey] = append(b.Inputs[SampleKey], sample)
		b.Targets = append(b.Targets, target)
	}
	return b, nil
}

// Yield implements train.Dataset. It returns:
//
//   - spec: the dataset itself.
//   - inputs: the samples batch, shaped [batch_size, ...sample shape].
//   - labels: the int32 class indices, shaped [batch_size].
//
// It returns io.EOF at the end of an epoch, unless configured as infinite.
func (ds *DatasetFolder) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	indices, err := ds.sampler.next()
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := ds.Batch(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, labels, err = b.Tensors()
	return ds, inputs, labels, err
}

// Reset implements train.Dataset: it restarts the epoch.
func (ds *DatasetFolder) Reset() {
	ds.sampler.reset()
}
