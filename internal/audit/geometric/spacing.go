package geometric

import (
	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

type segmentFinding struct {
	ShapeID  string  `json:"shape_id"`
	Segments int     `json:"segments"`
	MinGapM  float64 `json:"min_gap_m"`
}

var spacingExp = audit.Explanation{
	Purpose: "Consecutive shape points should be at least min_distance_meters apart.",
	Context: "Near-coincident points add size without adding geometry; exact duplicates are reported separately.",
	Impact:  "Dense clusters of points slow rendering and distort bearing calculations.",
}

func checkMinSpacing(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, spacingExp, shapeColumns...)
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	minDist := params.Float(OptMinDistanceMeters, defaultMinDistanceMeters)
	epsilon := params.Float(OptDuplicateEpsilonMeters, defaultDuplicateEpsilonMeters)

	var findings []segmentFinding
	var flagged []string
	segments, tooClose := 0, 0
	for _, s := range shapes {
		path := s.path()
		if len(path) < 2 {
			continue
		}
		n, gap := 0, 0.0
		for i := 1; i < len(path); i++ {
			segments++
			d := distance(path[i-1], path[i])
			if d > epsilon && d < minDist {
				if n == 0 || d < gap {
					gap = d
				}
				n++
			}
		}
		if n > 0 {
			tooClose += n
			flagged = append(flagged, s.id)
			findings = append(findings, segmentFinding{ShapeID: s.id, Segments: n, MinGapM: round(gap, 3)})
		}
	}

	out := audit.NewReport(spacingExp)
	if len(flagged) > 0 {
		out.AddIssue(audit.IssueDataInconsistency, "shape_pt_lat,shape_pt_lon", flagged, limit,
			audit.SampleMessage("shapes with points closer than the minimum spacing", flagged, 5))
		out.Recommend("Simplify shapes to drop near-coincident points.")
	}
	out.Result["min_distance_meters"] = minDist
	out.Result["segments_checked"] = segments
	out.Result["close_segments"] = tooClose
	out.Result["shapes"] = head(findings, limit)
	out.Grade(audit.Score(audit.Proportional(30, tooClose, segments)), audit.AdvisoryThresholds)
	return out
}

var duplicatePointsExp = audit.Explanation{
	Purpose: "Consecutive shape points should not be identical.",
	Context: "Two points within duplicate_epsilon_meters of each other are the same position repeated.",
	Impact:  "Zero-length segments have no bearing and break direction analysis.",
}

func checkConsecutiveDuplicates(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, duplicatePointsExp, shapeColumns...)
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	epsilon := params.Float(OptDuplicateEpsilonMeters, defaultDuplicateEpsilonMeters)

	var points []string
	affected := make(map[string]struct{})
	segments := 0
	for _, s := range shapes {
		path := s.path()
		for i := 1; i < len(path); i++ {
			segments++
			if distance(path[i-1], path[i]) <= epsilon {
				points = append(points, pointLabel(s.id, path[i]))
				affected[s.id] = struct{}{}
			}
		}
	}

	out := audit.NewReport(duplicatePointsExp)
	if len(points) > 0 {
		out.AddIssue(audit.IssueDuplicateData, "shape_pt_lat,shape_pt_lon", points, limit,
			audit.SampleMessage("points repeating the previous position", points, 5))
		out.Recommend("Remove repeated consecutive points.")
	}
	out.Result["segments_checked"] = segments
	out.Result["duplicate_points"] = len(points)
	out.Result["shapes_affected"] = audit.Sample(audit.SortedKeys(affected), limit)
	out.Grade(audit.Score(audit.Proportional(40, len(points), segments)), audit.AdvisoryThresholds)
	return out
}
