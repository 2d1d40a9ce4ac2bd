// Package cvfeatures implements features.Adapter on OpenCV binary
// descriptors (ORB or AKAZE) with brute-force Hamming kNN matching.
package cvfeatures

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"panofinder/features"
	"panofinder/types"
)

// Detector names accepted by Options.
const (
	DetectorORB   = "orb"
	DetectorAKAZE = "akaze"
)

// Options configures the OpenCV adapter.
type Options struct {
	Detector    string // "orb" (default) or "akaze"
	MaxFeatures int    // ORB feature budget
	Policy      features.Policy
}

// DefaultOptions returns ORB with 1000 features and the default filter policy.
func DefaultOptions() Options {
	return Options{
		Detector:    DetectorORB,
		MaxFeatures: 1000,
		Policy:      features.DefaultPolicy(),
	}
}

type detector interface {
	DetectAndCompute(src gocv.Mat, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat)
	Close() error
}

// matDescriptors owns the descriptor Mat returned by the detector.
type matDescriptors struct {
	mat gocv.Mat
}

func (d *matDescriptors) Len() int {
	return d.mat.Rows()
}

func (d *matDescriptors) Close() error {
	return d.mat.Close()
}

// Adapter is a features.Adapter backed by gocv. OpenCV algorithm objects are
// not safe for concurrent use, so calls are serialized.
type Adapter struct {
	mu       sync.Mutex
	detector detector
	matcher  gocv.BFMatcher
	policy   features.Policy
	closed   bool
}

// New creates an adapter for the configured detector.
func New(opts Options) (*Adapter, error) {
	if opts.MaxFeatures <= 0 {
		opts.MaxFeatures = DefaultOptions().MaxFeatures
	}
	if opts.Policy == (features.Policy{}) {
		opts.Policy = features.DefaultPolicy()
	}

	var det detector
	switch strings.ToLower(opts.Detector) {
	case "", DetectorORB:
		orb := gocv.NewORBWithParams(opts.MaxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
		det = &orb
	case DetectorAKAZE:
		akaze := gocv.NewAKAZE()
		det = &akaze
	default:
		return nil, fmt.Errorf("unknown detector %q: %w", opts.Detector, types.ErrCollaboratorUnavailable)
	}

	return &Adapter{
		detector: det,
		matcher:  gocv.NewBFMatcherWithParams(gocv.NormHamming, false),
		policy:   opts.Policy,
	}, nil
}

// Extract detects keypoints and computes descriptors on a grayscale copy of img.
func (a *Adapter) Extract(ctx context.Context, img image.Image) (*features.FeatureSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray, err := grayMatFromImage(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("adapter closed: %w", types.ErrCollaboratorUnavailable)
	}

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := a.detector.DetectAndCompute(gray, mask)

	fs := &features.FeatureSet{
		Keypoints:   make([]features.Keypoint, len(kps)),
		Descriptors: &matDescriptors{mat: desc},
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
	}
	for i, kp := range kps {
		fs.Keypoints[i] = features.Keypoint{
			X:        kp.X,
			Y:        kp.Y,
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
		}
	}
	return fs, nil
}

// Match runs 2-NN matching from query to train and applies the filter policy.
func (a *Adapter) Match(query, train *features.FeatureSet) ([]types.Correspondence, error) {
	qd, ok := descriptorsOf(query)
	if !ok {
		return nil, fmt.Errorf("query descriptors not produced by this adapter")
	}
	td, ok := descriptorsOf(train)
	if !ok {
		return nil, fmt.Errorf("train descriptors not produced by this adapter")
	}
	if qd.Len() == 0 || td.Len() == 0 {
		return nil, nil
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("adapter closed: %w", types.ErrCollaboratorUnavailable)
	}
	knn := a.matcher.KnnMatch(qd.mat, td.mat, 2)
	a.mu.Unlock()

	neighbors := make([][]features.Neighbor, len(knn))
	for i, row := range knn {
		for _, m := range row {
			neighbors[i] = append(neighbors[i], features.Neighbor{
				QueryIdx: m.QueryIdx,
				TrainIdx: m.TrainIdx,
				Distance: m.Distance,
			})
		}
	}

	return features.Correspondences(a.policy.Apply(neighbors), query, train), nil
}

// Close releases the OpenCV objects.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	err := a.detector.Close()
	if mErr := a.matcher.Close(); err == nil {
		err = mErr
	}
	return err
}

func descriptorsOf(fs *features.FeatureSet) (*matDescriptors, bool) {
	if fs == nil || fs.Descriptors == nil {
		return nil, false
	}
	d, ok := fs.Descriptors.(*matDescriptors)
	return d, ok
}
