package types

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

// ViewParameters is a snapshot of the panorama viewer orientation at the
// moment a pixel is sampled. All angles are degrees.
type ViewParameters struct {
	Facing  float64 `json:"facing"`  // [0,360)
	Horizon float64 `json:"horizon"` // [-90,90]
	FOV     float64 `json:"fov"`     // vertical, (0,180)
}

// SphericalCoordinate is a view-invariant point on the panoramic sphere.
type SphericalCoordinate struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// Candidate is one panorama capture location within a cell.
type Candidate struct {
	ID        string    `json:"id"`
	CellID    string    `json:"cell_id"`
	Position  orb.Point `json:"position"` // lon, lat
	Altitude  float64   `json:"altitude"`
	Heading   float64   `json:"heading"`
	FOV       float64   `json:"fov,omitempty"` // capture vertical FOV, 0 when unknown
	ImagePath string    `json:"image_path,omitempty"`
}

// Correspondence pairs a query keypoint with a keypoint in a candidate view.
type Correspondence struct {
	Query    r2.Point `json:"query"`
	Train    r2.Point `json:"train"`
	Distance float64  `json:"distance"`
	QueryIdx int      `json:"query_idx"`
	TrainIdx int      `json:"train_idx"`
}

// Homography is a 3x3 projective transform stored row-major.
type Homography [9]float64

// Apply maps p through the homography. ok is false when the point maps to
// infinity.
func (h Homography) Apply(p r2.Point) (q r2.Point, ok bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return r2.Point{}, false
	}
	return r2.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// IsZero reports whether no homography has been set.
func (h Homography) IsZero() bool {
	return h == Homography{}
}

// MatchResult is produced once per (query, candidate) pair and never mutated.
type MatchResult struct {
	MatchCount  int        `json:"match_count"`
	InlierCount int        `json:"inlier_count"`
	Homography  Homography `json:"homography"`
	Confidence  float64    `json:"confidence"`
	InlierMask  []bool     `json:"-"`
}

// NewMatchResult builds a MatchResult with confidence = inliers/matches.
func NewMatchResult(matchCount, inlierCount int, h Homography, mask []bool) MatchResult {
	conf := 0.0
	if matchCount > 0 {
		conf = float64(inlierCount) / float64(matchCount)
	}
	if conf > 1 {
		conf = 1
	}
	return MatchResult{
		MatchCount:  matchCount,
		InlierCount: inlierCount,
		Homography:  h,
		Confidence:  conf,
		InlierMask:  mask,
	}
}

// CacheKey identifies one cached embedding. FOVBucket is already rounded.
type CacheKey struct {
	CellID      string
	CandidateID string
	FOVBucket   int
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.CellID, k.CandidateID, k.FOVBucket)
}

// CacheEntry is a stored embedding.
type CacheEntry struct {
	Key       CacheKey
	Embedding []float32
	Timestamp time.Time
}

// TaggedPoint is a user mark on a specific image.
type TaggedPoint struct {
	ID            string              `json:"id"`
	Spherical     SphericalCoordinate `json:"spherical"`
	DepthEstimate *float64            `json:"depth_estimate,omitempty"`
	SourceViewID  string              `json:"source_view_id"`
	ViewAtTagging ViewParameters      `json:"view_at_tagging"`
	CreatedAt     time.Time           `json:"created_at"`
}

// ViewObservation is a ray along which a tagged point is believed to lie.
type ViewObservation struct {
	PointID   string    `json:"point_id"`
	Origin    r3.Vector `json:"origin"`
	Direction r3.Vector `json:"direction"` // unit length
	DepthHint *float64  `json:"depth_hint,omitempty"`
	Weight    float64   `json:"weight"`
}

// TriangulationSet holds the observations of one logical 3D point.
type TriangulationSet struct {
	Name         string            `json:"name"`
	Observations []ViewObservation `json:"observations"`
}

// TriangulationResult is recomputed on demand from a TriangulationSet.
type TriangulationResult struct {
	Position         r3.Vector `json:"position"`
	AverageError     float64   `json:"average_error"`
	MaxError         float64   `json:"max_error"`
	Confidence       float64   `json:"confidence"`
	Residuals        []float64 `json:"residuals"`
	ObservationCount int       `json:"observation_count"`
}
