package datasets

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/pkg/errors"
	"github.com/spakin/netpbm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImage opens and decodes the image at path. The returned format is the
// name the decoder registered itself with ("png", "jpeg", "tiff", "pgm", ...).
func DecodeImage(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to decode image %s", path)
	}
	return img, format, nil
}

// ReadImageArray decodes the image at path into an Array keeping its native
// value range: 8-bit images hold 0-255, 16-bit images 0-65535, netpbm images
// their raw samples and paletted images their palette indices.
func ReadImageArray(path string) (*Array, error) {
	img, format, err := DecodeImage(path)
	if err != nil {
		return nil, err
	}
	return ImageToArray(img, format), nil
}

// ImageToArray converts img to an Array.
//
// Grayscale and paletted images become [height, width]; colour images become
// [height, width, 3], or [height, width, 4] when the decoded image type stores
// non-premultiplied alpha (*image.NRGBA, *image.NRGBA64 and *image.NYCbCrA,
// as produced by PNG and WebP files with an alpha channel). The channel count
// only depends on the type, never on the pixel values.
func ImageToArray(img image.Image, format string) *Array {
	switch src := img.(type) {
	case *image.Gray:
		return pixelArray(src.Rect, 1, func(x, y int, px []float32) {
			px[0] = float32(src.GrayAt(x, y).Y)
		})
	case *image.Gray16:
		return pixelArray(src.Rect, 1, func(x, y int, px []float32) {
			px[0] = float32(src.Gray16At(x, y).Y)
		})
	case *image.Paletted:
		return pixelArray(src.Rect, 1, func(x, y int, px []float32) {
			px[0] = float32(src.ColorIndexAt(x, y))
		})
	case *netpbm.GrayM:
		return pixelArray(src.Rect, 1, func(x, y int, px []float32) {
			px[0] = float32(src.GrayMAt(x, y).Y)
		})
	case *netpbm.GrayM32:
		return pixelArray(src.Rect, 1, func(x, y int, px []float32) {
			px[0] = float32(src.GrayM32At(x, y).Y)
		})
	case *netpbm.RGBM:
		return pixelArray(src.Rect, 3, func(x, y int, px []float32) {
			c := src.RGBMAt(x, y)
			px[0], px[1], px[2] = float32(c.R), float32(c.G), float32(c.B)
		})
	case *netpbm.RGBM64:
		return pixelArray(src.Rect, 3, func(x, y int, px []float32) {
			c := src.RGBM64At(x, y)
			px[0], px[1], px[2] = float32(c.R), float32(c.G), float32(c.B)
		})
	}

	if format == "pbm" {
		return pixelArray(img.Bounds(), 1, func(x, y int, px []float32) {
			px[0] = float32(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
		})
	}

	channels := 3
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA:
		channels = 4
	}
	return colorArray(img, channels)
}

// colorArray reads img as [height, width, channels] with channels 3 (alpha
// dropped) or 4. 16-bit images keep their 0-65535 range.
func colorArray(img image.Image, channels int) *Array {
	wide := false
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		wide = true
	}
	return pixelArray(img.Bounds(), channels, func(x, y int, px []float32) {
		var rgba [4]float32
		if wide {
			n := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			rgba = [4]float32{float32(n.R), float32(n.G), float32(n.B), float32(n.A)}
		} else {
			n := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgba = [4]float32{float32(n.R), float32(n.G), float32(n.B), float32(n.A)}
		}
		copy(px, rgba[:channels])
	})
}

// pixelArray allocates a [height, width] (channels == 1) or
// [height, width, channels] array over bounds and fills each pixel with fill,
// called with absolute image coordinates.
func pixelArray(bounds image.Rectangle, channels int, fill func(x, y int, px []float32)) *Array {
	h, w := bounds.Dy(), bounds.Dx()
	arr := NewArray(Float, h, w)
	if channels > 1 {
		arr = NewArray(Float, h, w, channels)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * channels
			fill(bounds.Min.X+x, bounds.Min.Y+y, arr.Data[i:i+channels])
		}
	}
	return arr
}
