package triangulation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"panofinder/geometry"
	"panofinder/types"
)

// Viewport is the pixel size of the panorama viewer.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Marker is a tagged point's position on the current screen.
type Marker struct {
	PointID string               `json:"point_id"`
	Screen  geometry.ScreenPoint `json:"screen"`
}

// TaggingSession owns the points tagged on one source view. Points are
// stored as spherical coordinates so they stay put while the view pans.
type TaggingSession struct {
	ViewID string

	mu     sync.Mutex
	points map[string]types.TaggedPoint
	order  []string
	now    func() time.Time
}

// NewTaggingSession starts an empty session for viewID.
func NewTaggingSession(viewID string) *TaggingSession {
	return &TaggingSession{
		ViewID: viewID,
		points: make(map[string]types.TaggedPoint),
		now:    time.Now,
	}
}

// Tag records a point at a pixel of the current view. depth is optional.
func (s *TaggingSession) Tag(pixelX, pixelY float64, vp Viewport, view types.ViewParameters, depth *float64) types.TaggedPoint {
	pt := types.TaggedPoint{
		ID:            uuid.NewString(),
		Spherical:     geometry.ScreenToSpherical(pixelX, pixelY, vp.Width, vp.Height, view),
		SourceViewID:  s.ViewID,
		ViewAtTagging: view,
	}
	if depth != nil {
		d := *depth
		pt.DepthEstimate = &d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pt.CreatedAt = s.now()
	s.points[pt.ID] = pt
	s.order = append(s.order, pt.ID)
	return pt
}

// Remove deletes a point and reports whether it existed.
func (s *TaggingSession) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.points[id]; !ok {
		return false
	}
	delete(s.points, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Point returns one tagged point.
func (s *TaggingSession) Point(id string) (types.TaggedPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.points[id]
	return pt, ok
}

// Points returns the tagged points in the order they were created.
func (s *TaggingSession) Points() []types.TaggedPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TaggedPoint, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.points[id])
	}
	return out
}

// Markers places every visible point on screen for the given view.
func (s *TaggingSession) Markers(vp Viewport, view types.ViewParameters) []Marker {
	var out []Marker
	for _, pt := range s.Points() {
		if p, ok := geometry.SphericalToScreen(pt.Spherical, vp.Width, vp.Height, view); ok {
			out = append(out, Marker{PointID: pt.ID, Screen: p})
		}
	}
	return out
}
