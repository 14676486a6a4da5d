package geometric

import (
	"fmt"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
	"gtfsaudit.onebusaway.org/internal/utils"
)

type shapeMetrics struct {
	ShapeID   string   `json:"shape_id"`
	Points    int      `json:"points"`
	LengthM   float64  `json:"length_m"`
	StraightM float64  `json:"straight_m"`
	Linearity *float64 `json:"linearity,omitempty"`
}

var linearityExp = audit.Explanation{
	Purpose: "Measure the length of each shape and how directly it connects its endpoints.",
	Context: "Linearity is the straight-line distance between first and last point divided by the path length.",
	Impact:  "Informational: low ratios mark winding or looping paths, values near 1 nearly straight ones.",
}

func checkLengthLinearity(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, linearityExp, shapeColumns...)
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	var metrics []shapeMetrics
	var skipped []string
	total, ratioSum := 0.0, 0.0
	ratios := 0
	for _, s := range shapes {
		path := s.path()
		if len(path) < 2 {
			skipped = append(skipped, s.id)
			continue
		}
		l := length(path)
		straight := distance(path[0], path[len(path)-1])
		m := shapeMetrics{
			ShapeID:   s.id,
			Points:    len(path),
			LengthM:   round(l, 2),
			StraightM: round(straight, 2),
		}
		total += l
		if len(path) >= 3 && l > 0 {
			r := round(straight/l, 4)
			m.Linearity = &r
			ratioSum += r
			ratios++
		}
		metrics = append(metrics, m)
	}

	out := audit.NewReport(linearityExp)
	out.Result["shapes_measured"] = len(metrics)
	out.Result["total_length_m"] = round(total, 2)
	if ratios > 0 {
		out.Result["mean_linearity"] = round(ratioSum/float64(ratios), 4)
	}
	out.Result["shapes"] = head(metrics, limit)
	out.Result["skipped_shapes"] = audit.Sample(skipped, limit)
	return out
}

var loopExp = audit.Explanation{
	Purpose: "Identify shapes whose first and last points coincide.",
	Context: "A shape of at least three points whose endpoints are within tolerance_meters is a closed loop.",
	Impact:  "Informational: loops are normal for circular routes but unexpected elsewhere.",
}

func checkClosedLoops(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, loopExp, shapeColumns...)
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	tolerance := params.Float(OptToleranceMeters, defaultToleranceMeters)

	var loops []string
	checked := 0
	for _, s := range shapes {
		path := s.path()
		if len(path) < 3 {
			continue
		}
		checked++
		if distance(path[0], path[len(path)-1]) < tolerance {
			loops = append(loops, s.id)
		}
	}

	out := audit.NewReport(loopExp)
	out.Result["tolerance_meters"] = tolerance
	out.Result["shapes_checked"] = checked
	out.Result["loop_shapes"] = audit.Sample(loops, limit)
	out.Result["loop_count"] = len(loops)
	if len(loops) > 0 {
		out.Recommend("Confirm that loop shapes belong to circular routes.")
	}
	return out
}

// turn is one sharp vertex. PointIndex counts the shape's valid points in
// sequence order, repeated positions included.
type turn struct {
	ShapeID    string  `json:"shape_id"`
	PointIndex int     `json:"point_index"`
	Sequence   int64   `json:"sequence"`
	AngleDeg   float64 `json:"angle_deg"`
	Heading    string  `json:"heading"`
}

var directionExp = audit.Explanation{
	Purpose: "Shapes should not reverse direction abruptly.",
	Context: "The turn angle at each interior point is the change between incoming and outgoing bearings; zero-length segments are skipped.",
	Impact:  "Sharp reversals usually mean a misplaced point or a spurious detour.",
}

func checkDirectionChanges(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, directionExp, shapeColumns...)
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	threshold := params.Float(OptAngleThresholdDeg, defaultAngleThresholdDeg)

	var turns []turn
	affected := make(map[string]struct{})
	vertices := 0
	for _, s := range shapes {
		path, positions := dedupe(s.path())
		for i := 1; i+1 < len(path); i++ {
			vertices++
			in := utils.BearingBetweenPoints(path[i-1].lat, path[i-1].lon, path[i].lat, path[i].lon)
			outB := utils.BearingBetweenPoints(path[i].lat, path[i].lon, path[i+1].lat, path[i+1].lon)
			if angle := utils.TurnAngle(in, outB); angle > threshold {
				turns = append(turns, turn{
					ShapeID:    s.id,
					PointIndex: positions[i],
					Sequence:   path[i].seq,
					AngleDeg:   round(angle, 1),
					Heading:    utils.BearingToCompass(in),
				})
				affected[s.id] = struct{}{}
			}
		}
	}

	out := audit.NewReport(directionExp)
	if len(turns) > 0 {
		ids := make([]string, len(turns))
		for i, t := range turns {
			ids[i] = fmt.Sprintf("%s:%d", t.ShapeID, t.Sequence)
		}
		out.AddIssue(audit.IssueDataInconsistency, "shape_pt_sequence", ids, limit,
			fmt.Sprintf("%d turns sharper than %.0f degrees in %d shapes", len(turns), threshold, len(affected)))
		out.Recommend("Inspect the flagged points for misplaced coordinates.")
	}
	out.Result["angle_threshold_deg"] = threshold
	out.Result["vertices_checked"] = vertices
	out.Result["abrupt_turns"] = head(turns, limit)
	out.Result["shapes_affected"] = audit.Sample(audit.SortedKeys(affected), limit)
	out.Grade(audit.Score(audit.Proportional(40, len(turns), vertices)), audit.AdvisoryThresholds)
	return out
}

// dedupe drops points that repeat the previous position, so every
// remaining segment has a bearing. positions maps each kept point back to
// its index in path.
func dedupe(path []point) (out []point, positions []int) {
	if len(path) == 0 {
		return path, nil
	}
	out = []point{path[0]}
	positions = []int{0}
	for i, p := range path[1:] {
		if distance(out[len(out)-1], p) > 0 {
			out = append(out, p)
			positions = append(positions, i+1)
		}
	}
	return out, positions
}

type jump struct {
	ShapeID  string  `json:"shape_id"`
	Sequence int64   `json:"sequence"`
	PrevM    float64 `json:"prev_m,omitempty"`
	NextM    float64 `json:"next_m,omitempty"`
}

var isolatedExp = audit.Explanation{
	Purpose: "Flag shape points far from both of their neighbours.",
	Context: "A point more than distance_threshold_meters from both the previous and next point is isolated; a single long segment is a jump.",
	Impact:  "Isolated points are almost always geocoding errors that spike the drawn path.",
}

func checkIsolatedPoints(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, isolatedExp, shapeColumns...)
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	threshold := params.Float(OptDistanceThresholdMeters, defaultDistanceThresholdMeters)

	var isolated, jumps []jump
	points := 0
	for _, s := range shapes {
		path := s.path()
		if len(path) < 2 {
			continue
		}
		gaps := make([]float64, len(path)-1)
		for i := range gaps {
			gaps[i] = distance(path[i], path[i+1])
		}
		// segments touching an isolated point are explained by it
		explained := make([]bool, len(gaps))
		for i := 1; i+1 < len(path); i++ {
			points++
			if gaps[i-1] > threshold && gaps[i] > threshold {
				isolated = append(isolated, jump{
					ShapeID:  s.id,
					Sequence: path[i].seq,
					PrevM:    round(gaps[i-1], 1),
					NextM:    round(gaps[i], 1),
				})
				explained[i-1], explained[i] = true, true
			}
		}
		for i, g := range gaps {
			if g > threshold && !explained[i] {
				jumps = append(jumps, jump{ShapeID: s.id, Sequence: path[i+1].seq, PrevM: round(g, 1)})
			}
		}
	}

	out := audit.NewReport(isolatedExp)
	if len(isolated) > 0 {
		ids := jumpKeys(isolated)
		out.AddIssue(audit.IssueDataInconsistency, "shape_pt_lat,shape_pt_lon", ids, limit,
			audit.SampleMessage("isolated points", ids, 5))
		out.Recommend("Re-geocode or remove the isolated points.")
	}
	if len(jumps) > 0 {
		ids := jumpKeys(jumps)
		out.AddIssue(audit.IssueOutOfRange, "shape_pt_lat,shape_pt_lon", ids, limit,
			audit.SampleMessage("segments longer than the threshold", ids, 5))
		out.Recommend("Densify long segments or check their endpoints.")
	}
	out.Result["distance_threshold_meters"] = threshold
	out.Result["interior_points_checked"] = points
	out.Result["isolated_points"] = head(isolated, limit)
	out.Result["large_jumps"] = head(jumps, limit)
	out.Grade(audit.Score(
		audit.Proportional(50, len(isolated), points),
		audit.Proportional(10, len(jumps), points+len(jumps)),
	), audit.AdvisoryThresholds)
	return out
}

func jumpKeys(js []jump) []string {
	keys := make([]string, len(js))
	for i, j := range js {
		keys[i] = fmt.Sprintf("%s:%d", j.ShapeID, j.Sequence)
	}
	return keys
}
