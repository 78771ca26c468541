package datasets

import (
	"path/filepath"
	"strings"
)

// ImageExtensions are the file extensions recognised by ImageFolder and
// MultiTaskImageFolder. Numpy arrays are accepted alongside images.
var ImageExtensions = []string{
	".jpg", ".jpeg", ".png", ".ppm", ".bmp", ".pgm",
	".tif", ".tiff", ".webp", ".jpx", ".npy", ".npz",
}

// IsValidFile reports whether a file should be indexed.
type IsValidFile func(path string) bool

// HasAllowedExtension reports whether filename ends with one of extensions.
// Extensions are expected in lower case; the filename is compared case
// insensitively.
func HasAllowedExtension(filename string, extensions []string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// IsImageFile reports whether filename has one of the ImageExtensions.
func IsImageFile(filename string) bool {
	return HasAllowedExtension(filename, ImageExtensions)
}

// isArrayFile reports whether path holds a numpy array.
func isArrayFile(path string) bool {
	return HasAllowedExtension(path, []string{".npy", ".npz"})
}

// fileStem returns the base name of path without its final extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
