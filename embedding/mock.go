package embedding

import (
	"context"
	"image"
	"sync"

	"panofinder/types"
)

// Mock implements Model for testing.
type Mock struct {
	// EmbedFunc is called when Embed is invoked.
	EmbedFunc func(ctx context.Context, img image.Image) ([]float32, error)

	mu    sync.Mutex
	calls int
}

// NewMock creates a mock returning a fixed unit vector.
func NewMock() *Mock {
	return &Mock{
		EmbedFunc: func(ctx context.Context, img image.Image) ([]float32, error) {
			return []float32{1, 0, 0, 0}, nil
		},
	}
}

// Embed calls EmbedFunc and records the call.
func (m *Mock) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, img)
	}
	return nil, types.ErrCollaboratorUnavailable
}

// Calls returns how many times Embed was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
