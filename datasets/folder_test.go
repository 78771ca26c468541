package datasets

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeClassTree writes root/<class>/<n>.png gray images whose single pixel
// encodes the class index.
func makeClassTree(t *testing.T, root string, perClass map[string]int) {
	t.Helper()
	i := 0
	for class, n := range perClass {
		for j := 0; j < n; j++ {
			writeGrayPNG(t, filepath.Join(root, class, string(rune('a'+j))+".png"), 1, 1, []uint8{uint8(10 * i)})
		}
		i++
	}
}

func TestDatasetFolder(t *testing.T) {
	root := t.TempDir()
	makeClassTree(t, root, map[string]int{"dog": 2, "cat": 3})

	ds, err := NewDatasetFolder(root, ArrayLoader, ImageExtensions, nil, Config{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, ds.Classes)
	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, []int{0, 0, 0, 1, 1}, ds.Targets)
	assert.Equal(t, filepath.Base(root), ds.Name())

	sample, target, loaded, err := ds.Example(3)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)
	assert.Equal(t, 1, target)
	assert.Equal(t, []int{1, 1}, sample.Shape)

	_, _, _, err = ds.Example(5)
	assert.Error(t, err)
}

func TestDatasetFolderNoSamples(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "cls", "notes.txt"))

	_, err := NewImageFolder(root, nil, Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSamples)
	assert.Contains(t, err.Error(), root)
	assert.Contains(t, err.Error(), ".png")

	_, err = NewImageFolder(filepath.Join(root, "missing"), nil, Config{})
	assert.Error(t, err)
}

func TestDatasetFolderRetriesFailedLoads(t *testing.T) {
	root := t.TempDir()
	writeGrayPNG(t, filepath.Join(root, "a", "good.png"), 1, 1, []uint8{1})
	touch(t, filepath.Join(root, "b", "broken.png"))

	ds, err := NewDatasetFolder(root, ArrayLoader, ImageExtensions, nil, Config{Seed: 3, MaxLoadAttempts: 200})
	require.NoError(t, err)

	// Index 1 is the broken file: some random replacement eventually hits 0.
	sample, target, loaded, err := ds.Example(1)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded)
	assert.Equal(t, 0, target)
	assert.Equal(t, []float32{1}, sample.Data)
}

func TestDatasetFolderGivesUp(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "broken.png"))

	ds, err := NewDatasetFolder(root, ArrayLoader, ImageExtensions, nil, Config{MaxLoadAttempts: 3})
	require.NoError(t, err)
	_, _, _, err = ds.Example(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDatasetFolderGivesUpNamesRequestedFile(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "a", "first.png")
	touch(t, first)
	touch(t, filepath.Join(root, "b", "second.png"))
	touch(t, filepath.Join(root, "c", "third.png"))

	ds, err := NewDatasetFolder(root, ArrayLoader, ImageExtensions, nil, Config{Seed: 11, MaxLoadAttempts: 6})
	require.NoError(t, err)
	_, _, _, err = ds.Example(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load "+first+" (index 0) after 6 attempts")
}

func TestImageFolderMixedAlpha(t *testing.T) {
	root := t.TempDir()
	writeRGBPNG(t, filepath.Join(root, "c", "opaque.png"), 4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	translucent := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			translucent.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	translucent.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 200})
	writePNG(t, filepath.Join(root, "c", "translucent.png"), translucent)

	ds, err := NewImageFolder(root, nil, Config{BatchSize: 2})
	require.NoError(t, err)
	for i := 0; i < ds.Len(); i++ {
		sample, _, _, err := ds.Example(i)
		require.NoError(t, err)
		assert.Equal(t, []int{DefaultImageSize, DefaultImageSize, 3}, sample.Shape)
	}

	_, inputs, _, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{2, DefaultImageSize, DefaultImageSize, 3}, inputs[0].Shape().Dimensions)
}

func TestRetrierKeepsRequestedIndex(t *testing.T) {
	r := newRetrier(3, Config{Seed: 5, MaxLoadAttempts: 4})
	var tried []int
	_, err := r.load(2,
		func(i int) string { return fmt.Sprintf("item-%d", i) },
		func(i int) error {
			tried = append(tried, i)
			return errors.New("broken")
		})
	require.Error(t, err)
	assert.Len(t, tried, 4)
	assert.Equal(t, 2, tried[0])
	assert.Contains(t, err.Error(), "failed to load item-2 (index 2) after 4 attempts")
	if last := tried[3]; last != 2 {
		assert.Contains(t, err.Error(), fmt.Sprintf("last tried item-%d (index %d)", last, last))
	}

	_, err = r.load(3, func(i int) string { return "" }, func(int) error { return nil })
	assert.Error(t, err)
}

func TestDatasetFolderTransforms(t *testing.T) {
	root := t.TempDir()
	writeGrayPNG(t, filepath.Join(root, "only", "x.png"), 1, 1, []uint8{4})

	ds, err := NewDatasetFolder(root, ArrayLoader, ImageExtensions, nil, Config{})
	require.NoError(t, err)
	ds.WithTransform(func(a *Array) (*Array, error) { return a.Scale(0.5), nil }).
		WithTargetTransform(func(target int) int { return target + 10 }).
		WithName("custom")

	sample, target, _, err := ds.Example(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, sample.Data)
	assert.Equal(t, 10, target)
	assert.Equal(t, "custom", ds.Name())
}

func TestDatasetFolderYield(t *testing.T) {
	root := t.TempDir()
	makeClassTree(t, root, map[string]int{"x": 3})

	ds, err := NewDatasetFolder(root, ArrayLoader, ImageExtensions, nil, Config{BatchSize: 2})
	require.NoError(t, err)

	spec, inputs, labels, err := ds.Yield()
	require.NoError(t, err)
	assert.Same(t, ds, spec)
	require.Len(t, inputs, 1)
	require.Len(t, labels, 1)
	assert.Equal(t, []int{2, 1, 1}, inputs[0].Shape().Dimensions)
	assert.Equal(t, []int{2}, labels[0].Shape().Dimensions)

	// The last batch of the epoch is partial.
	_, inputs, _, err = ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, inputs[0].Shape().Dimensions)

	_, _, _, err = ds.Yield()
	assert.Equal(t, io.EOF, err)

	ds.Reset()
	_, _, _, err = ds.Yield()
	assert.NoError(t, err)
}

func TestSamplerShuffleCoversEpoch(t *testing.T) {
	s := newSampler(5, Config{BatchSize: 2, Shuffle: true, Seed: 7})
	seen := map[int]int{}
	for {
		batch, err := s.next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		for _, idx := range batch {
			seen[idx]++
		}
	}
	assert.Len(t, seen, 5)
	for idx, n := range seen {
		assert.Equal(t, 1, n, "index %d", idx)
	}
}

func TestSamplerInfinite(t *testing.T) {
	s := newSampler(3, Config{BatchSize: 2, Infinite: true})
	first, err := s.next()
	require.NoError(t, err)
	second, err := s.next()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, first)
	assert.Equal(t, []int{2, 0}, second)
}
