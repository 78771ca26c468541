package datasets

import (
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Loader loads the sample stored at path.
type Loader func(path string) (*Array, error)

// DefaultImageSize is the side of the square images returned by DefaultLoader.
const DefaultImageSize = 512

// DefaultLoader decodes an image, resizes it to DefaultImageSize x
// DefaultImageSize, converts it to RGB and scales its values to [0, 1].
var DefaultLoader Loader = ResizeLoader(DefaultImageSize, DefaultImageSize)

// ResizeLoader returns a Loader that decodes an image, resizes it (bilinear,
// no aspect ratio preservation) to width x height and returns it as a float
// [height, width, 3] RGB array scaled to [0, 1]. Alpha is dropped and gray
// images are repeated over the three channels.
func ResizeLoader(width, height int) Loader {
	return func(path string) (*Array, error) {
		img, _, err := DecodeImage(path)
		if err != nil {
			return nil, err
		}
		resized := imaging.Resize(img, width, height, imaging.Linear)
		return colorArray(resized, 3).Scale(1.0 / 255.0), nil
	}
}

// ArrayLoader loads images and numpy arrays in their native value range,
// without any resizing or normalization. For .npz archives the first member
// is read.
func ArrayLoader(path string) (*Array, error) {
	if isArrayFile(path) {
		return ReadArrayFile(path, "")
	}
	return ReadImageArray(path)
}

// Task names with dedicated loading rules.
const (
	TaskLayerMaps     = "layermaps"
	TaskBScanLayerMap = "bscanlayermap"
	TaskSLO           = "slo"
	TaskBScan         = "bscan"

	// semsegMarker identifies segmentation tasks: any task whose name
	// contains it.
	semsegMarker = "semseg"

	// layerMapsKey is the archive member holding the layer maps.
	layerMapsKey = "layer_maps"
)

// IsSemSegTask reports whether task holds segmentation label images.
func IsSemSegTask(task string) bool {
	return strings.Contains(task, semsegMarker)
}

// LoadTaskSample loads the file at path for task, applying the task specific
// conversion:
//
//   - numpy files of the "layermaps" task: the "layer_maps" array, as integers.
//   - numpy files of the "bscanlayermap" task: integers.
//   - other numpy files: float values divided by 255. With cfg.ThreeD set,
//     2-D arrays gain a singleton axis: [H, 1, W] for "slo" and [1, H, W]
//     for "bscan"; other tasks are rejected.
//   - images of segmentation tasks: raw label values remapped with
//     cfg.Mapping, as integers.
//   - other images: normalized to [0, 1].
func LoadTaskSample(path, task string, cfg Config) (*Array, error) {
	if isArrayFile(path) {
		return loadTaskArray(path, task, cfg)
	}

	sample, err := ReadImageArray(path)
	if err != nil {
		return nil, err
	}
	if IsSemSegTask(task) {
		return remapLabels(sample, cfg.Mapping), nil
	}
	return NormalizeTo01(sample), nil
}

func loadTaskArray(path, task string, cfg Config) (*Array, error) {
	var (
		sample *Array
		err    error
	)
	switch task {
	case TaskLayerMaps:
		sample, err = ReadArrayFile(path, layerMapsKey)
		if err != nil {
			return nil, err
		}
		sample.AsKind(Int)
	case TaskBScanLayerMap:
		sample, err = ReadArrayFile(path, "")
		if err != nil {
			return nil, err
		}
		sample.AsKind(Int)
	default:
		sample, err = ReadArrayFile(path, "")
		if err != nil {
			return nil, err
		}
		sample.Kind = Float
		sample.Scale(1.0 / 255.0)
	}

	if sample.Rank() == 2 && cfg.ThreeD {
		switch task {
		case TaskSLO:
			return sample.ExpandDims(1)
		case TaskBScan:
			return sample.ExpandDims(0)
		default:
			return nil, errors.Errorf("unknown task %q for a 3-D dataset", task)
		}
	}
	return sample, nil
}

// remapLabels replaces every raw label value found in mapping by its class
// index. Values not in mapping are kept as they are.
func remapLabels(sample *Array, mapping map[int]int) *Array {
	for i, v := range sample.Data {
		if class, ok := mapping[int(v)]; ok {
			sample.Data[i] = float32(class)
		}
	}
	return sample.AsKind(Int)
}
