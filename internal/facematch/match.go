package facematch

import "math"

// EmptyGalleryDistance is reported when there is nothing to compare against.
const EmptyGalleryDistance = 1.0

// Candidates is an ordered list of labeled vectors to match against.
type Candidates interface {
	Len() int
	At(i int) (label string, v Vector)
}

// Match returns the nearest candidate by Euclidean distance. The first
// candidate wins ties. The reported distance is always the minimum found,
// while the label is UnknownLabel unless that distance is within tolerance.
// An empty gallery reports EmptyGalleryDistance; a gallery with no record
// of the query's dimension reports +Inf.
func Match(v Vector, candidates Candidates, tolerance float64) MatchResult {
	best := -1
	bestDist := math.Inf(1)

	n := 0
	if candidates != nil {
		n = candidates.Len()
	}
	for i := range n {
		_, rv := candidates.At(i)
		d := EuclideanDistance(v, rv)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}

	if n == 0 {
		return MatchResult{
			Label:      UnknownLabel,
			Distance:   EmptyGalleryDistance,
			Confidence: Confidence(EmptyGalleryDistance),
		}
	}
	// no record has the query's dimension
	if best < 0 {
		return MatchResult{Label: UnknownLabel, Distance: math.Inf(1), Confidence: 0}
	}

	label := UnknownLabel
	if bestDist <= tolerance {
		label, _ = candidates.At(best)
	}
	return MatchResult{
		Label:      label,
		Distance:   bestDist,
		Confidence: Confidence(bestDist),
	}
}

// EuclideanDistance returns the L2 distance between a and b, or +Inf when
// the vectors cannot be compared.
func EuclideanDistance(a, b Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence maps a distance to [0, 1]: 1 at distance zero, falling
// linearly to 0 at distance one and beyond.
func Confidence(distance float64) float64 {
	return min(max(1-distance, 0), 1)
}
