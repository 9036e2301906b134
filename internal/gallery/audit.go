package gallery

import (
	"sort"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

const auditNeighbors = 8

// Conflict is a pair of records under different labels that would match
// each other at the audit tolerance.
type Conflict struct {
	A, B     int // record indexes, A < B
	LabelA   string
	LabelB   string
	Distance float64
}

// Spread is a label whose records lie far apart.
type Spread struct {
	Label       string
	Records     int
	MaxDistance float64
}

// AuditReport lists gallery entries likely to cause wrong matches.
type AuditReport struct {
	Records   int
	Labels    int
	Conflicts []Conflict
	Spreads   []Spread
}

// Audit searches snap for records with different labels closer than
// tolerance, using an HNSW graph over the vectors, and for labels whose own
// records are further apart than spread. Labels are compared normalized.
func Audit(snap Snapshot, tolerance, spread float64) AuditReport {
	report := AuditReport{Records: len(snap)}
	if len(snap) == 0 {
		return report
	}

	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.EuclideanDistance
	for i, rec := range snap {
		g.Add(hnsw.MakeNode(i, toFloat32(rec.Vector)))
	}

	keys := make([]string, len(snap))
	byLabel := map[string][]int{}
	for i, rec := range snap {
		keys[i] = facematch.NormalizeLabel(rec.Label)
		byLabel[keys[i]] = append(byLabel[keys[i]], i)
	}
	report.Labels = len(byLabel)

	seen := map[[2]int]bool{}
	k := min(auditNeighbors, len(snap))
	for i, rec := range snap {
		for _, n := range g.Search(toFloat32(rec.Vector), k) {
			j := n.Key
			if j == i || keys[i] == keys[j] {
				continue
			}
			pair := [2]int{min(i, j), max(i, j)}
			if seen[pair] {
				continue
			}
			seen[pair] = true

			d := facematch.EuclideanDistance(snap[pair[0]].Vector, snap[pair[1]].Vector)
			if d <= tolerance {
				report.Conflicts = append(report.Conflicts, Conflict{
					A:        pair[0],
					B:        pair[1],
					LabelA:   snap[pair[0]].Label,
					LabelB:   snap[pair[1]].Label,
					Distance: d,
				})
			}
		}
	}
	sort.Slice(report.Conflicts, func(a, b int) bool {
		return report.Conflicts[a].Distance < report.Conflicts[b].Distance
	})

	// labels hold a handful of records each, so pairwise is fine here
	for _, idx := range byLabel {
		if len(idx) < 2 {
			continue
		}
		var maxDist float64
		for x := range idx {
			for y := x + 1; y < len(idx); y++ {
				maxDist = max(maxDist, facematch.EuclideanDistance(snap[idx[x]].Vector, snap[idx[y]].Vector))
			}
		}
		if maxDist > spread {
			report.Spreads = append(report.Spreads, Spread{
				Label:       snap[idx[0]].Label,
				Records:     len(idx),
				MaxDistance: maxDist,
			})
		}
	}
	sort.Slice(report.Spreads, func(a, b int) bool {
		return report.Spreads[a].MaxDistance > report.Spreads[b].MaxDistance
	})
	return report
}

func toFloat32(v facematch.Vector) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
