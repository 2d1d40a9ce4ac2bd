package features

import "sort"

// Neighbor is one nearest-neighbour descriptor match.
type Neighbor struct {
	QueryIdx int
	TrainIdx int
	Distance float64
}

// Policy configures correspondence filtering.
type Policy struct {
	Ratio          float64 // Lowe ratio: accept if d1 < Ratio*d2
	AbsoluteMax    float64 // Accept a lone neighbour below this distance
	MedianFactor   float64 // Drop matches above MedianFactor*median
	MedianMinCount int     // Apply the median filter only with at least this many matches
}

// DefaultPolicy returns the filtering defaults. AbsoluteMax is tuned for
// Hamming distances of 256-bit binary descriptors.
func DefaultPolicy() Policy {
	return Policy{
		Ratio:          0.85,
		AbsoluteMax:    64,
		MedianFactor:   1.5,
		MedianMinCount: 10,
	}
}

// Apply runs the ratio test and then the median distance filter.
func (p Policy) Apply(knn [][]Neighbor) []Neighbor {
	return MedianDistanceFilter(RatioTest(knn, p.Ratio, p.AbsoluteMax), p.MedianFactor, p.MedianMinCount)
}

// RatioTest keeps the best neighbour of each query descriptor when it is
// clearly better than the second best. A query with a single neighbour is
// kept when that neighbour is closer than absoluteMax.
func RatioTest(knn [][]Neighbor, ratio, absoluteMax float64) []Neighbor {
	var out []Neighbor
	for _, nn := range knn {
		switch {
		case len(nn) == 0:
			continue
		case len(nn) == 1:
			if nn[0].Distance < absoluteMax {
				out = append(out, nn[0])
			}
		default:
			best, second := nn[0], nn[1]
			if second.Distance < best.Distance {
				best, second = second, best
			}
			if best.Distance < ratio*second.Distance {
				out = append(out, best)
			}
		}
	}
	return out
}

// MedianDistanceFilter drops matches whose distance exceeds factor times the
// median distance. It does nothing below minCount matches.
func MedianDistanceFilter(matches []Neighbor, factor float64, minCount int) []Neighbor {
	if len(matches) < minCount || len(matches) == 0 {
		return matches
	}

	dists := make([]float64, len(matches))
	for i, m := range matches {
		dists[i] = m.Distance
	}
	sort.Float64s(dists)

	var median float64
	mid := len(dists) / 2
	if len(dists)%2 == 0 {
		median = (dists[mid-1] + dists[mid]) / 2
	} else {
		median = dists[mid]
	}

	limit := factor * median
	out := make([]Neighbor, 0, len(matches))
	for _, m := range matches {
		if m.Distance <= limit {
			out = append(out, m)
		}
	}
	return out
}
