package datasets

import (
	"math/rand"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MultiTaskDatasetFolder is a dataset with one folder per task, where the
// i-th file (in sorted order) of every task folder belongs to sample i:
//
//	root/bscan/0001.npy
//	root/bscan/0002.npy
//	root/slo/0001.png
//	root/slo/0002.png
//
// A task folder may be renamed with a prefix (see Config.Prefixes), in which
// case it is looked up as root/<prefix><task>.
type MultiTaskDatasetFolder struct {
	name string

	// Root directory of the dataset.
	Root string

	// Tasks in the order their tensors are yielded.
	Tasks []string

	// Samples holds the indexed files of each task. All tasks have the same
	// number of samples.
	Samples map[string][]Sample

	// Extensions used to filter files, nil when a custom filter was given.
	Extensions []string

	loader          TaskLoader
	transform       TaskTransform
	targetTransform TargetTransform

	cfg     Config
	retrier *retrier
	sampler *sampler

	// muCache protects cache and ids.
	muCache sync.Mutex
	cache   map[int]cachedExample
	ids     map[int]string
}

type cachedExample struct {
	samples map[string]*Array
	target  int
}

// NewMultiTaskDatasetFolder indexes root/<prefix><task> for every task.
// Exactly one of extensions and isValid must be set.
//
// It fails if any task folder is missing or holds no valid file, or if the
// task folders hold different numbers of files.
func NewMultiTaskDatasetFolder(root string, tasks []string, extensions []string, isValid IsValidFile, cfg Config) (*MultiTaskDatasetFolder, error) {
	if len(tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := expandUser(root)
	if err != nil {
		return nil, err
	}

	fsids := cfg.fsidSet()
	samples := make(map[string][]Sample, len(tasks))
	for _, task := range tasks {
		dir := filepath.Join(root, cfg.Prefixes[task]+task)
		taskSamples, err := MakeNonClassDataset(dir, extensions, isValid, fsids)
		if err != nil {
			return nil, errors.WithMessagef(err, "task %q", task)
		}
		if len(taskSamples) == 0 {
			return nil, noSamplesError(dir, extensions)
		}
		samples[task] = taskSamples
	}

	total := len(samples[tasks[0]])
	for _, task := range tasks[1:] {
		if n := len(samples[task]); n != total {
			return nil, errors.Errorf("task %q has %d samples but task %q has %d; task folders must be aligned",
				task, n, tasks[0], total)
		}
	}

	if cfg.MaxImages > 0 {
		permutation := rand.New(rand.NewSource(0)).Perm(total)
		if cfg.MaxImages < total {
			permutation = permutation[:cfg.MaxImages]
		}
		for _, task := range tasks {
			selected := make([]Sample, len(permutation))
			for i, idx := range permutation {
				selected[i] = samples[task][idx]
			}
			samples[task] = selected
		}
		total = len(permutation)
	}
	klog.V(1).Infof("MultiTaskDatasetFolder %s: %d samples for tasks %v", root, total, tasks)

	return &MultiTaskDatasetFolder{
		name:       filepath.Base(root),
		Root:       root,
		Tasks:      slices.Clone(tasks),
		Samples:    samples,
		Extensions: extensions,
		loader:     LoadTaskSample,
		cfg:        cfg,
		retrier:    newRetrier(total, cfg),
		sampler:    newSampler(total, cfg),
		cache:      make(map[int]cachedExample),
		ids:        make(map[int]string),
	}, nil
}

// NewMultiTaskImageFolder returns a MultiTaskDatasetFolder over
// ImageExtensions, or isValid if set.
func NewMultiTaskImageFolder(root string, tasks []string, isValid IsValidFile, cfg Config) (*MultiTaskDatasetFolder, error) {
	var extensions []string
	if isValid == nil {
		extensions = ImageExtensions
	}
	return NewMultiTaskDatasetFolder(root, tasks, extensions, isValid, cfg)
}

// WithName sets the name returned by Name. Returns itself.
func (ds *MultiTaskDatasetFolder) WithName(name string) *MultiTaskDatasetFolder {
	ds.name = name
	return ds
}

// WithLoader replaces LoadTaskSample as the per-file loader. Returns itself.
func (ds *MultiTaskDatasetFolder) WithLoader(loader TaskLoader) *MultiTaskDatasetFolder {
	ds.loader = loader
	return ds
}

// WithTransform sets the transform applied to every example. It runs after
// the cache, on a copy of the cached arrays. Returns itself.
func (ds *MultiTaskDatasetFolder) WithTransform(t TaskTransform) *MultiTaskDatasetFolder {
	ds.transform = t
	return ds
}

// WithTargetTransform sets the transform applied to every target. Returns
// itself.
func (ds *MultiTaskDatasetFolder) WithTargetTransform(t TargetTransform) *MultiTaskDatasetFolder {
	ds.targetTransform = t
	return ds
}

// Name implements train.Dataset.
func (ds *MultiTaskDatasetFolder) Name() string { return ds.name }

// Len returns the number of samples, counted on the first task.
func (ds *MultiTaskDatasetFolder) Len() int { return len(ds.Samples[ds.Tasks[0]]) }

// Config returns the configuration the dataset was built with.
func (ds *MultiTaskDatasetFolder) Config() Config { return ds.cfg }

// ID returns the id of the sample at index: the stem of its first task file.
func (ds *MultiTaskDatasetFolder) ID(index int) string {
	ds.muCache.Lock()
	defer ds.muCache.Unlock()
	if id, ok := ds.ids[index]; ok {
		return id
	}
	return fileStem(ds.Samples[ds.Tasks[0]][index].Path)
}

func (ds *MultiTaskDatasetFolder) lookup(index int) (cachedExample, bool) {
	ds.muCache.Lock()
	defer ds.muCache.Unlock()
	ex, ok := ds.cache[index]
	return ex, ok
}

// loadIndex loads every task file of index, without retries.
func (ds *MultiTaskDatasetFolder) loadIndex(index int) (cachedExample, error) {
	ex := cachedExample{samples: make(map[string]*Array, len(ds.Tasks))}
	for _, task := range ds.Tasks {
		s := ds.Samples[task][index]
		sample, err := ds.loader(s.Path, task, ds.cfg)
		if err != nil {
			return ex, errors.WithMessagef(err, "task %q", task)
		}
		ex.samples[task] = sample
		ex.target = s.Label
	}

	ds.muCache.Lock()
	defer ds.muCache.Unlock()
	if _, ok := ds.ids[index]; !ok {
		ds.ids[index] = fileStem(ds.Samples[ds.Tasks[0]][index].Path)
	}
	if ds.cfg.CacheSamples {
		ds.cache[index] = ex
	}
	return ex, nil
}

func (ds *MultiTaskDatasetFolder) describe(index int) string {
	paths := make([]string, len(ds.Tasks))
	for i, task := range ds.Tasks {
		paths[i] = ds.Samples[task][index].Path
	}
	return strings.Join(paths, ", ")
}

// Example returns the per-task arrays of the sample at index, its target and
// its id. Loaded samples are cached by index when Config.CacheSamples is set;
// the returned arrays are always copies, so callers and transforms may modify
// them. If a file fails to load, the error is logged and a random index is
// tried instead; the index actually loaded is returned.
func (ds *MultiTaskDatasetFolder) Example(index int) (samples map[string]*Array, target int, id string, loaded int, err error) {
	var ex cachedExample
	loaded, err = ds.retrier.load(index, ds.describe, func(i int) error {
		var ok bool
		if ex, ok = ds.lookup(i); ok {
			return nil
		}
		var err error
		ex, err = ds.loadIndex(i)
		return err
	})
	if err != nil {
		return nil, 0, "", loaded, err
	}

	samples = make(map[string]*Array, len(ex.samples))
	for task, arr := range ex.samples {
		samples[task] = arr.Clone()
	}
	target = ex.target
	id = ds.ID(loaded)

	if ds.transform != nil {
		if samples, err = ds.transform(samples); err != nil {
			return nil, 0, "", loaded, errors.WithMessagef(err, "transform of sample %s", id)
		}
	}
	if ds.targetTransform != nil {
		target = ds.targetTransform(target)
	}
	return samples, target, id, loaded, nil
}

// Batch loads the examples at indices.
func (ds *MultiTaskDatasetFolder) Batch(indices []int) (*Batch, error) {
	b := newBatch(ds.Tasks, len(indices))
	for _, idx := range indices {
		samples, target, id, loaded, err := ds.Example(idx)
		if err != nil {
			return nil, err
		}
		for _, task := range ds.Tasks {
			sample, ok := samples[task]
			if !ok {
				return nil, errors.Errorf("sample %s has no array for task %q after transform", id, task)
			}
			b.Inputs[task] = append(b.Inputs[task], sample)
		}
		b.Indices = append(b.Indices, loaded)
		b.IDs = append(b.IDs, id)
		b.Targets = append(b.Targets, target)
	}
	return b, nil
}

// Yield implements train.Dataset. It returns:
//
//   - spec: the dataset itself.
//   - inputs: one tensor per task, in Tasks order, shaped
//     [batch_size, ...task sample shape].
//   - labels: the int32 targets, shaped [batch_size].
//
// It returns io.EOF at the end of an epoch, unless configured as infinite.
func (ds *MultiTaskDatasetFolder) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
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

// Reset implements train.Dataset: it restarts the epoch. The sample cache is
// kept.
func (ds *MultiTaskDatasetFolder) Reset() {
	ds.sampler.reset()
}

// Cached returns how many samples are held in the cache.
func (ds *MultiTaskDatasetFolder) Cached() int {
	ds.muCache.Lock()
	defer ds.muCache.Unlock()
	return len(ds.cache)
}
