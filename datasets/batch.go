package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// SampleKey is the task name under which DatasetFolder stores its samples.
const SampleKey = "sample"

// Batch holds the loaded examples of one batch, before conversion to tensors.
type Batch struct {
	// Tasks in the order their tensors are returned by Tensors.
	Tasks []string

	// Indices of the examples actually loaded. They differ from the requested
	// ones when a sample failed to load and was replaced.
	Indices []int

	// IDs of the examples (file stems).
	IDs []string

	// Inputs holds, for each task, one array per example.
	Inputs map[string][]*Array

	// Targets holds one label per example.
	Targets []int
}

func newBatch(tasks []string, size int) *Batch {
	b := &Batch{
		Tasks:   tasks,
		Indices: make([]int, 0, size),
		IDs:     make([]string, 0, size),
		Inputs:  make(map[string][]*Array, len(tasks)),
		Targets: make([]int, 0, size),
	}
	for _, task := range tasks {
		b.Inputs[task] = make([]*Array, 0, size)
	}
	return b
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int { return len(b.Targets) }

// Tensors stacks the batch into gomlx tensors: one input tensor per task,
// shaped [batch, ...], in Tasks order, and one int32 label tensor shaped
// [batch].
func (b *Batch) Tensors() (inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if b.Size() == 0 {
		return nil, nil, errors.New("cannot convert an empty batch to tensors")
	}
	inputs = make([]*tensors.Tensor, 0, len(b.Tasks))
	for _, task := range b.Tasks {
		t, err := Stack(b.Inputs[task])
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "task %q", task)
		}
		inputs = append(inputs, t)
	}
	targets := make([]int32, len(b.Targets))
	for i, target := range b.Targets {
		targets[i] = int32(target)
	}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(targets, len(targets))}
	return inputs, labels, nil
}
