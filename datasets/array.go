package datasets

import (
	"fmt"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Kind tells whether an Array holds continuous values or integer labels.
type Kind int

const (
	Float Kind = iota
	Int
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "Float"
	case Int:
		return "Int"
	}
	return "Unknown"
}

// Array is a dense row-major n-dimensional array of loaded sample values.
//
// Integer arrays (label maps) are stored as float32 too, which is exact for
// the label ranges used here; Tensor converts them back to int32.
type Array struct {
	Shape []int
	Data  []float32
	Kind  Kind
}

// NewArray returns a zero-filled array of the given shape.
func NewArray(kind Kind, shape ...int) *Array {
	return &Array{
		Shape: slices.Clone(shape),
		Data:  make([]float32, numElements(shape)),
		Kind:  kind,
	}
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.Shape) }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Data) }

func (a *Array) String() string {
	return fmt.Sprintf("Array(%s%v)", a.Kind, a.Shape)
}

// Clone returns a deep copy of a.
func (a *Array) Clone() *Array {
	if a == nil {
		return nil
	}
	return &Array{Shape: slices.Clone(a.Shape), Data: slices.Clone(a.Data), Kind: a.Kind}
}

// Min and Max return the smallest and largest elements. Both are 0 for an
// empty array.
func (a *Array) Min() float32 {
	if len(a.Data) == 0 {
		return 0
	}
	return slices.Min(a.Data)
}

func (a *Array) Max() float32 {
	if len(a.Data) == 0 {
		return 0
	}
	return slices.Max(a.Data)
}

// Scale multiplies every element by factor in place and returns a.
func (a *Array) Scale(factor float32) *Array {
	for i := range a.Data {
		a.Data[i] *= factor
	}
	return a
}

// AsKind returns a with Kind set to kind. Converting to Int truncates values
// toward zero.
func (a *Array) AsKind(kind Kind) *Array {
	if kind == Int && a.Kind != Int {
		for i, v := range a.Data {
			a.Data[i] = float32(int64(v))
		}
	}
	a.Kind = kind
	return a
}

// NormalizeTo01 rescales a in place to the [0, 1] range using its own
// minimum and maximum, and marks it as Float. A constant array becomes all
// zeros.
func NormalizeTo01(a *Array) *Array {
	lo, hi := a.Min(), a.Max()
	span := hi - lo
	for i, v := range a.Data {
		if span == 0 {
			a.Data[i] = 0
			continue
		}
		a.Data[i] = (v - lo) / span
	}
	a.Kind = Float
	return a
}

// ExpandDims inserts a dimension of size 1 at axis. The data layout does not
// change.
func (a *Array) ExpandDims(axis int) (*Array, error) {
	if axis < 0 || axis > len(a.Shape) {
		return nil, errors.Errorf("axis %d out of range for array of rank %d", axis, len(a.Shape))
	}
	a.Shape = slices.Insert(slices.Clone(a.Shape), axis, 1)
	return a, nil
}

// Reshape changes the shape of a in place. The number of elements must be
// preserved.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	if numElements(shape) != len(a.Data) {
		return nil, errors.Errorf("cannot reshape %v (%d elements) to %v", a.Shape, len(a.Data), shape)
	}
	a.Shape = slices.Clone(shape)
	return a, nil
}

// Tensor converts a to a gomlx tensor: float32 for Float arrays and int32
// for Int arrays.
func (a *Array) Tensor() *tensors.Tensor {
	if a.Kind == Int {
		return tensors.FromFlatDataAndDimensions(toInt32(a.Data), a.Shape...)
	}
	return tensors.FromFlatDataAndDimensions(slices.Clone(a.Data), a.Shape...)
}

func toInt32(data []float32) []int32 {
	out := make([]int32, len(data))
	for i, v := range data {
		out[i] = int32(v)
	}
	return out
}

// Stack concatenates arrays of identical shape and kind along a new leading
// batch axis and returns the result as a tensor shaped [len(arrays), ...].
func Stack(arrays []*Array) (*tensors.Tensor, error) {
	if len(arrays) == 0 {
		return nil, errors.New("cannot stack an empty list of arrays")
	}
	first := arrays[0]
	per := first.Len()
	flat := make([]float32, 0, per*len(arrays))
	for i, a := range arrays {
		if !slices.Equal(a.Shape, first.Shape) {
			return nil, errors.Errorf("inconsistent shapes at example %d: expected %v, got %v", i, first.Shape, a.Shape)
		}
		if a.Kind != first.Kind {
			return nil, errors.Errorf("inconsistent kinds at example %d: expected %s, got %s", i, first.Kind, a.Kind)
		}
		flat = append(flat, a.Data...)
	}
	dims := append([]int{len(arrays)}, first.Shape...)
	if first.Kind == Int {
		return tensors.FromFlatDataAndDimensions(toInt32(flat), dims...), nil
	}
	return tensors.FromFlatDataAndDimensions(flat, dims...), nil
}
