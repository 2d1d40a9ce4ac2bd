// Package features defines the keypoint extraction and matching capability
// the search pipeline depends on, together with the match filtering policy
// shared by every implementation.
package features

import (
	"context"
	"image"

	"github.com/golang/geo/r2"

	"panofinder/types"
)

// Keypoint is a detected interest point in pixel coordinates.
type Keypoint struct {
	X        float64
	Y        float64
	Size     float64
	Angle    float64
	Response float64
	Octave   int
}

// Point returns the keypoint position.
func (k Keypoint) Point() r2.Point {
	return r2.Point{X: k.X, Y: k.Y}
}

// Descriptors is an opaque descriptor block owned by the adapter that
// produced it.
type Descriptors interface {
	Len() int
	Close() error
}

// FeatureSet is the output of Extract for one image.
type FeatureSet struct {
	Keypoints   []Keypoint
	Descriptors Descriptors
	Width       int
	Height      int
}

// Len returns the number of keypoints.
func (f *FeatureSet) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Keypoints)
}

// Close releases the descriptors.
func (f *FeatureSet) Close() error {
	if f == nil || f.Descriptors == nil {
		return nil
	}
	return f.Descriptors.Close()
}

// Adapter extracts features and returns filtered correspondences between two
// feature sets. Implementations wrap types.ErrCollaboratorUnavailable when
// they cannot run at all.
type Adapter interface {
	Extract(ctx context.Context, img image.Image) (*FeatureSet, error)
	Match(query, train *FeatureSet) ([]types.Correspondence, error)
	Close() error
}

// Correspondences resolves filtered matches into point pairs.
func Correspondences(matches []Neighbor, query, train *FeatureSet) []types.Correspondence {
	corrs := make([]types.Correspondence, 0, len(matches))
	for _, m := range matches {
		if m.QueryIdx < 0 || m.QueryIdx >= len(query.Keypoints) ||
			m.TrainIdx < 0 || m.TrainIdx >= len(train.Keypoints) {
			continue
		}
		corrs = append(corrs, types.Correspondence{
			Query:    query.Keypoints[m.QueryIdx].Point(),
			Train:    train.Keypoints[m.TrainIdx].Point(),
			Distance: m.Distance,
			QueryIdx: m.QueryIdx,
			TrainIdx: m.TrainIdx,
		})
	}
	return corrs
}
