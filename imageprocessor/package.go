// Package imageprocessor loads capture and query images from disk and reads
// the capture metadata needed to place them in the world.
package imageprocessor

import "image"

// ImageLoader is the interface that all image loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file
	CanLoad(path string) bool

	// LoadImage decodes the file
	LoadImage(path string) (image.Image, error)
}
