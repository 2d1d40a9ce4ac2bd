package imageprocessor

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
)

// ImageLoaderRegistry maps file extensions to loaders.
type ImageLoaderRegistry struct {
	loaders       map[string]ImageLoader
	defaultLoader ImageLoader
	mutex         sync.RWMutex
}

// NewImageLoaderRegistry creates a registry with the standard and RAW loaders.
func NewImageLoaderRegistry() *ImageLoaderRegistry {
	r := &ImageLoaderRegistry{loaders: make(map[string]ImageLoader)}

	standard := NewStandardImageLoader()
	raw := NewRawPreviewLoader()
	for ext, format := range formatExtensions {
		if format == FormatRAW {
			r.RegisterLoader(ext, raw)
		} else {
			r.RegisterLoader(ext, standard)
		}
	}
	r.defaultLoader = standard
	return r
}

// RegisterLoader registers a new loader for a specific file extension
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the appropriate loader for the given path
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if loader, ok := r.loaders[strings.ToLower(filepath.Ext(path))]; ok {
		return loader
	}
	return r.defaultLoader
}

// CanLoadFile checks if any registered loader can handle the given file
func (r *ImageLoaderRegistry) CanLoadFile(path string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadImage loads an image using the appropriate registered loader
func (r *ImageLoaderRegistry) LoadImage(path string) (image.Image, error) {
	loader := r.GetLoader(path)
	if loader == nil {
		return nil, fmt.Errorf("no suitable loader found for: %s", path)
	}
	return loader.LoadImage(path)
}

var (
	defaultRegistry     *ImageLoaderRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *ImageLoaderRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewImageLoaderRegistry()
	})
	return defaultRegistry
}

// LoadImage decodes path with the default registry.
func LoadImage(path string) (image.Image, error) {
	return DefaultRegistry().LoadImage(path)
}
