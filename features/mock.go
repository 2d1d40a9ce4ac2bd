package features

import (
	"context"
	"image"
	"sync"

	"panofinder/types"
)

// SliceDescriptors is an in-memory Descriptors used by Mock.
type SliceDescriptors [][]byte

func (d SliceDescriptors) Len() int     { return len(d) }
func (d SliceDescriptors) Close() error { return nil }

// Mock implements Adapter for testing.
type Mock struct {
	// ExtractFunc is called when Extract is invoked.
	ExtractFunc func(ctx context.Context, img image.Image) (*FeatureSet, error)

	// MatchFunc is called when Match is invoked.
	MatchFunc func(query, train *FeatureSet) ([]types.Correspondence, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls map[string]int
}

// NewMock creates a mock that returns n keypoints for every image and no
// matches.
func NewMock(n int) *Mock {
	return &Mock{
		ExtractFunc: func(ctx context.Context, img image.Image) (*FeatureSet, error) {
			fs := &FeatureSet{Keypoints: make([]Keypoint, n), Descriptors: make(SliceDescriptors, n)}
			if img != nil {
				b := img.Bounds()
				fs.Width, fs.Height = b.Dx(), b.Dy()
			}
			return fs, nil
		},
		MatchFunc: func(query, train *FeatureSet) ([]types.Correspondence, error) {
			return nil, nil
		},
	}
}

// Extract calls ExtractFunc and records the call.
func (m *Mock) Extract(ctx context.Context, img image.Image) (*FeatureSet, error) {
	m.record("Extract")
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, img)
	}
	return nil, types.ErrCollaboratorUnavailable
}

// Match calls MatchFunc and records the call.
func (m *Mock) Match(query, train *FeatureSet) ([]types.Correspondence, error) {
	m.record("Match")
	if m.MatchFunc != nil {
		return m.MatchFunc(query, train)
	}
	return nil, types.ErrCollaboratorUnavailable
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns how many times method was invoked.
func (m *Mock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}
