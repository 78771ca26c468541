package datasets

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"github.com/sbinet/npyio/npz"
)

// ReadNpy reads a single array stored in the numpy .npy format.
func ReadNpy(path string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	arr, err := decodeNpy(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return arr, nil
}

// ReadNpz reads the member key of a numpy .npz archive. The ".npy" suffix of
// the member name is optional. An empty key selects the first member.
func ReadNpz(path, key string) (*Array, error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer r.Close()

	keys := r.Keys()
	if len(keys) == 0 {
		return nil, errors.Errorf("%s holds no arrays", path)
	}
	name := ""
	if key == "" {
		name = keys[0]
	} else {
		for _, k := range keys {
			if k == key || k == key+".npy" {
				name = k
				break
			}
		}
	}
	if name == "" {
		return nil, errors.Errorf("%s has no array named %q", path, key)
	}

	rc, err := r.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s in %s", name, path)
	}
	defer rc.Close()
	arr, err := decodeNpy(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s in %s", name, path)
	}
	return arr, nil
}

// ReadArrayFile reads a .npy file, or the member key of a .npz archive.
func ReadArrayFile(path, key string) (*Array, error) {
	if strings.HasSuffix(strings.ToLower(path), ".npz") {
		return ReadNpz(path, key)
	}
	return ReadNpy(path)
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func readNumbers[T number](r *npyio.Reader) ([]float32, error) {
	var data []T
	if err := r.Read(&data); err != nil {
		return nil, err
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return out, nil
}

func decodeNpy(src io.Reader) (*Array, error) {
	r, err := npyio.NewReader(src)
	if err != nil {
		return nil, err
	}
	descr := r.Header.Descr
	dtype := strings.TrimLeft(descr.Type, "<>|=")

	var data []float32
	kind := Float
	switch dtype {
	case "f4":
		data, err = readNumbers[float32](r)
	case "f8":
		data, err = readNumbers[float64](r)
	case "u1":
		data, err = readNumbers[uint8](r)
	case "u2":
		data, err = readNumbers[uint16](r)
	case "u4":
		data, err = readNumbers[uint32](r)
	case "u8":
		data, err = readNumbers[uint64](r)
	case "i1":
		data, err = readNumbers[int8](r)
	case "i2":
		data, err = readNumbers[int16](r)
	case "i4":
		data, err = readNumbers[int32](r)
	case "i8":
		data, err = readNumbers[int64](r)
	case "b1":
		var bools []bool
		if err = r.Read(&bools); err == nil {
			data = make([]float32, len(bools))
			for i, b := range bools {
				if b {
					data[i] = 1
				}
			}
		}
		kind = Int
	default:
		return nil, errors.Errorf("unsupported numpy dtype %q", descr.Type)
	}
	if err != nil {
		return nil, err
	}
	if dtype[0] == 'i' || dtype[0] == 'u' {
		kind = Int
	}

	shape := descr.Shape
	if numElements(shape) != len(data) {
		return nil, errors.Errorf("array shape %v does not match %d elements", shape, len(data))
	}
	if descr.Fortran && len(shape) > 1 {
		data = fortranToC(data, shape)
	}
	return &Array{Shape: append([]int(nil), shape...), Data: data, Kind: kind}, nil
}

// fortranToC reorders column-major data into row-major order.
func fortranToC(data []float32, shape []int) []float32 {
	rank := len(shape)
	// Column-major strides.
	fStrides := make([]int, rank)
	stride := 1
	for i := 0; i < rank; i++ {
		fStrides[i] = stride
		stride *= shape[i]
	}

	out := make([]float32, len(data))
	idx := make([]int, rank)
	for c := range out {
		f := 0
		for i := 0; i < rank; i++ {
			f += idx[i] * fStrides[i]
		}
		out[c] = data[f]
		// Advance the row-major multi-index.
		for i := rank - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}
