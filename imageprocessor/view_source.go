package imageprocessor

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"panofinder/search"
	"panofinder/types"
)

// DefaultCaptureFOV is used for captures with no recorded field of view.
const DefaultCaptureFOV = 75.0

// Loader decodes an image file.
type Loader interface {
	LoadImage(path string) (image.Image, error)
}

// FileViewSource serves candidate views from the capture files on disk. A
// capture image is the view facing azimuth zero of its panorama, level with
// the horizon.
type FileViewSource struct {
	Loader       Loader
	DefaultFOV   float64
	MaxDimension int // 0 keeps the decoded size
}

// NewFileViewSource uses the default registry.
func NewFileViewSource(maxDimension int) *FileViewSource {
	return &FileViewSource{
		Loader:       DefaultRegistry(),
		DefaultFOV:   DefaultCaptureFOV,
		MaxDimension: maxDimension,
	}
}

// LoadView implements search.ViewSource.
func (s *FileViewSource) LoadView(ctx context.Context, c types.Candidate) (search.CandidateView, error) {
	if err := ctx.Err(); err != nil {
		return search.CandidateView{}, err
	}
	if c.ImagePath == "" {
		return search.CandidateView{}, fmt.Errorf("candidate %s has no image", c.ID)
	}

	img, err := s.Loader.LoadImage(c.ImagePath)
	if err != nil {
		return search.CandidateView{}, err
	}

	fov := c.FOV
	if fov <= 0 {
		fov = s.DefaultFOV
	}
	if fov <= 0 {
		fov = DefaultCaptureFOV
	}
	return search.CandidateView{
		Image: Downscale(img, s.MaxDimension),
		View:  types.ViewParameters{Facing: 0, Horizon: 0, FOV: fov},
	}, nil
}

// Downscale shrinks img so neither side exceeds maxDim, keeping the aspect
// ratio. Smaller images and maxDim <= 0 return img unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	nw, nh := maxDim, maxDim
	if w >= h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
