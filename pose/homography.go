// Package pose estimates the planar transform between a query photo and a
// candidate panorama view and turns it into a camera orientation.
package pose

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"panofinder/types"
)

// HomographyEstimate is the robust fit over a set of correspondences.
type HomographyEstimate struct {
	H           types.Homography
	InlierMask  []bool
	InlierCount int
}

// Result packages the estimate as an immutable MatchResult.
func (e *HomographyEstimate) Result(matchCount int) types.MatchResult {
	return types.NewMatchResult(matchCount, e.InlierCount, e.H, e.InlierMask)
}

// EstimateHomography fits H mapping Query points onto Train points using
// RANSAC over 4-point DLT solutions followed by a least-squares refit on all
// inliers.
func EstimateHomography(corrs []types.Correspondence, cfg Config) (*HomographyEstimate, error) {
	if len(corrs) < 4 {
		return nil, types.ErrInsufficientCorrespondences
	}
	cfg = cfg.withDefaults()

	src := make([]r2.Point, len(corrs))
	dst := make([]r2.Point, len(corrs))
	for i, c := range corrs {
		src[i] = c.Query
		dst[i] = c.Train
	}

	n := len(corrs)
	threshSq := cfg.ReprojThreshold * cfg.ReprojThreshold

	var best types.Homography
	bestCount := -1
	bestErr := math.MaxFloat64

	//nolint:gosec
	rng := rand.New(rand.NewSource(cfg.Seed))

	for iter := 0; iter < cfg.Iterations; iter++ {
		idx := sampleFourDistinct(rng, n)
		s := [4]r2.Point{src[idx[0]], src[idx[1]], src[idx[2]], src[idx[3]]}
		d := [4]r2.Point{dst[idx[0]], dst[idx[1]], dst[idx[2]], dst[idx[3]]}
		if collinear(s[:]) || collinear(d[:]) {
			continue
		}

		h, ok := fitDLT(s[:], d[:])
		if !ok {
			continue
		}

		count, errSum := scoreInliers(h, src, dst, threshSq)
		if count > bestCount || (count == bestCount && errSum < bestErr) {
			best, bestCount, bestErr = h, count, errSum
		}
		// every point already agrees
		if bestCount == n {
			break
		}
	}

	if bestCount < 4 {
		return nil, types.ErrDegenerateHomography
	}

	mask := inlierMask(best, src, dst, threshSq)

	// Refit on all inliers; keep the refit only if it does not lose support.
	var inSrc, inDst []r2.Point
	for i, in := range mask {
		if in {
			inSrc = append(inSrc, src[i])
			inDst = append(inDst, dst[i])
		}
	}
	if refit, ok := fitDLT(inSrc, inDst); ok {
		refitMask := inlierMask(refit, src, dst, threshSq)
		if countTrue(refitMask) >= countTrue(mask) {
			best, mask = refit, refitMask
		}
	}

	if !wellConditioned(best) {
		return nil, types.ErrDegenerateHomography
	}

	return &HomographyEstimate{
		H:           best,
		InlierMask:  mask,
		InlierCount: countTrue(mask),
	}, nil
}

// InlierPoints returns the Train-side points of correspondences flagged in mask.
func InlierPoints(corrs []types.Correspondence, mask []bool) []r2.Point {
	var pts []r2.Point
	for i, c := range corrs {
		if i < len(mask) && mask[i] {
			pts = append(pts, c.Train)
		}
	}
	return pts
}

// fitDLT solves the direct linear transform for n >= 4 point pairs with
// Hartley normalization. The result is scaled so H[8] == 1.
func fitDLT(src, dst []r2.Point) (types.Homography, bool) {
	n := len(src)
	if n < 4 || n != len(dst) {
		return types.Homography{}, false
	}

	ts, ns := normalizePoints(src)
	td, nd := normalizePoints(dst)
	if ts == nil || td == nil {
		return types.Homography{}, false
	}

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return types.Homography{}, false
	}
	var v mat.Dense
	svd.VTo(&v)

	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// H = Td^-1 * Hn * Ts
	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return types.Homography{}, false
	}
	var tmp, full mat.Dense
	tmp.Mul(&tdInv, hn)
	full.Mul(&tmp, ts)

	scale := full.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		return types.Homography{}, false
	}

	var h types.Homography
	for i := 0; i < 9; i++ {
		h[i] = full.At(i/3, i%3) / scale
		if math.IsNaN(h[i]) || math.IsInf(h[i], 0) {
			return types.Homography{}, false
		}
	}
	return h, true
}

// normalizePoints translates points to their centroid and scales them so the
// mean distance from the origin is sqrt(2).
func normalizePoints(pts []r2.Point) (*mat.Dense, []r2.Point) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= float64(len(pts))
	if meanDist < 1e-12 {
		return nil, nil
	}

	s := math.Sqrt2 / meanDist
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})

	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	return t, out
}

func scoreInliers(h types.Homography, src, dst []r2.Point, threshSq float64) (int, float64) {
	count := 0
	var sum float64
	for i := range src {
		d, ok := transferErrorSq(h, src[i], dst[i])
		if ok && d <= threshSq {
			count++
			sum += d
		} else {
			sum += threshSq
		}
	}
	return count, sum
}

func inlierMask(h types.Homography, src, dst []r2.Point, threshSq float64) []bool {
	mask := make([]bool, len(src))
	for i := range src {
		d, ok := transferErrorSq(h, src[i], dst[i])
		mask[i] = ok && d <= threshSq
	}
	return mask
}

func transferErrorSq(h types.Homography, p, q r2.Point) (float64, bool) {
	m, ok := h.Apply(p)
	if !ok {
		return 0, false
	}
	d := m.Sub(q)
	return d.Dot(d), true
}

// wellConditioned rejects transforms that are non-finite or close to singular.
func wellConditioned(h types.Homography) bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	det := h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
	return math.Abs(det) > 1e-8
}

// collinear reports whether any three of the four points are nearly collinear.
func collinear(p []r2.Point) bool {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			for k := j + 1; k < 4; k++ {
				if math.Abs(p[j].Sub(p[i]).Cross(p[k].Sub(p[i]))) < 1e-6 {
					return true
				}
			}
		}
	}
	return false
}

func countTrue(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}

func sampleFourDistinct(rng *rand.Rand, n int) [4]int {
	var idx [4]int
	for i := 0; i < 4; i++ {
		for {
			idx[i] = rng.Intn(n)
			unique := true
			for j := 0; j < i; j++ {
				if idx[i] == idx[j] {
					unique = false
					break
				}
			}
			if unique {
				break
			}
		}
	}
	return idx
}
