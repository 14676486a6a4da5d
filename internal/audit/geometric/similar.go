package geometric

import (
	"fmt"
	"sort"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

type similarPair struct {
	ShapeA        string  `json:"shape_a"`
	ShapeB        string  `json:"shape_b"`
	MeanDistanceM float64 `json:"mean_distance_m"`
}

var similarExp = audit.Explanation{
	Purpose: "Find shapes that trace the same physical path.",
	Context: "Shapes with the same number of points whose mean pointwise distance is below similarity_tolerance_meters are likely duplicates.",
	Impact:  "Duplicate shapes inflate the feed and drift apart when only one copy is edited.",
}

func checkSimilarShapes(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, similarExp, shapeColumns...)
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	tolerance := params.Float(OptSimilarityToleranceMeters, defaultSimilarityTolerance)

	type candidate struct {
		id   string
		path []point
	}
	byCount := make(map[int][]candidate)
	for _, s := range shapes {
		if path := s.path(); len(path) >= 2 {
			byCount[len(path)] = append(byCount[len(path)], candidate{id: s.id, path: path})
		}
	}
	counts := make([]int, 0, len(byCount))
	for n := range byCount {
		counts = append(counts, n)
	}
	sort.Ints(counts)

	var pairs []similarPair
	compared := 0
	for _, n := range counts {
		group := byCount[n]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				compared++
				if mean := meanDistance(group[i].path, group[j].path); mean < tolerance {
					pairs = append(pairs, similarPair{
						ShapeA:        group[i].id,
						ShapeB:        group[j].id,
						MeanDistanceM: round(mean, 2),
					})
				}
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].ShapeA != pairs[j].ShapeA {
			return pairs[i].ShapeA < pairs[j].ShapeA
		}
		return pairs[i].ShapeB < pairs[j].ShapeB
	})

	out := audit.NewReport(similarExp)
	if len(pairs) > 0 {
		ids := make([]string, len(pairs))
		for i, p := range pairs {
			ids[i] = fmt.Sprintf("%s/%s", p.ShapeA, p.ShapeB)
		}
		out.AddIssue(audit.IssueDuplicateData, "shape_id", ids, limit,
			audit.SampleMessage("pairs of near-identical shapes", ids, 5))
		out.Recommend("Merge duplicate shapes and point their trips at a single shape_id.")
	}
	out.Result["similarity_tolerance_meters"] = tolerance
	out.Result["pairs_compared"] = compared
	out.Result["similar_pairs"] = head(pairs, limit)
	out.Grade(audit.Score(audit.Proportional(20, len(pairs), len(shapes))), audit.AdvisoryThresholds)
	return out
}

// meanDistance averages the distance between points at the same index.
// Paths must have equal, non-zero length.
func meanDistance(a, b []point) float64 {
	sum := 0.0
	for i := range a {
		sum += distance(a[i], b[i])
	}
	return sum / float64(len(a))
}
