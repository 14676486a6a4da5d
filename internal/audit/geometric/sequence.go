package geometric

import (
	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

var monotonicityExp = audit.Explanation{
	Purpose: "shape_pt_sequence must strictly increase along each shape.",
	Context: "Points are read in stored order; a repeated or decreasing sequence number breaks the ordering.",
	Impact:  "Consumers that sort by sequence draw zig-zags or drop points.",
}

func checkMonotonicity(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, monotonicityExp, "shape_id", "shape_pt_sequence")
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	var flagged, unparseable []string
	repeated, decreasing := 0, 0
	for _, s := range shapes {
		bad := false
		var prev *point
		for i := range s.points {
			p := &s.points[i]
			if p.seqErr != nil {
				unparseable = append(unparseable, pointLabel(s.id, *p))
				continue
			}
			if prev != nil {
				switch {
				case p.seq == prev.seq:
					repeated++
					bad = true
				case p.seq < prev.seq:
					decreasing++
					bad = true
				}
			}
			prev = p
		}
		if bad {
			flagged = append(flagged, s.id)
		}
	}

	out := audit.NewReport(monotonicityExp)
	if len(flagged) > 0 {
		out.AddIssue(audit.IssueDataInconsistency, "shape_pt_sequence", flagged, limit,
			audit.SampleMessage("shapes with non-increasing sequences", flagged, 5))
		out.Recommend("Renumber shape_pt_sequence so it strictly increases within each shape.")
	}
	if len(unparseable) > 0 {
		out.AddIssue(audit.IssueInvalidFormat, "shape_pt_sequence", unparseable, limit,
			audit.SampleMessage("points with a non-integer sequence", unparseable, 5))
		out.Recommend("Use non-negative integers for shape_pt_sequence.")
	}
	out.Result["shapes_checked"] = len(shapes)
	out.Result["non_monotonic_shapes"] = audit.Sample(flagged, limit)
	out.Result["non_monotonic_count"] = len(flagged)
	out.Result["repeated_sequences"] = repeated
	out.Result["decreasing_sequences"] = decreasing
	out.Result["unparseable_sequences"] = len(unparseable)
	out.Grade(audit.Score(
		audit.Proportional(60, len(flagged), len(shapes)),
		audit.Flat(20, len(unparseable)),
	), audit.DefaultThresholds)
	return out
}

var boundsExp = audit.Explanation{
	Purpose: "Shape coordinates must be valid WGS84 positions.",
	Context: "Latitude must lie in [-90, 90] and longitude in [-180, 180].",
	Impact:  "Out-of-range or unreadable points corrupt every distance computed from the shape.",
}

func checkBounds(ds *dataset.Dataset, params audit.Params) audit.Report {
	shapes, rep, ok := loadShapes(ds, boundsExp, "shape_id", "shape_pt_lat", "shape_pt_lon")
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	var outOfRange, unparseable []string
	affected := make(map[string]struct{})
	points := 0
	for _, s := range shapes {
		for _, p := range s.points {
			points++
			switch {
			case p.coordErr != nil:
				unparseable = append(unparseable, pointLabel(s.id, p))
				affected[s.id] = struct{}{}
			case !p.inBounds():
				outOfRange = append(outOfRange, pointLabel(s.id, p))
				affected[s.id] = struct{}{}
			}
		}
	}

	out := audit.NewReport(boundsExp)
	if len(outOfRange) > 0 {
		out.AddIssue(audit.IssueOutOfRange, "shape_pt_lat,shape_pt_lon", outOfRange, limit,
			audit.SampleMessage("points outside valid coordinate ranges", outOfRange, 5))
		out.Recommend("Check for swapped latitude and longitude or projected coordinates.")
	}
	if len(unparseable) > 0 {
		out.AddIssue(audit.IssueInvalidFormat, "shape_pt_lat,shape_pt_lon", unparseable, limit,
			audit.SampleMessage("points with unreadable coordinates", unparseable, 5))
		out.Recommend("Write coordinates as decimal degrees.")
	}
	out.Result["points_checked"] = points
	out.Result["invalid_points"] = len(outOfRange) + len(unparseable)
	out.Result["out_of_range_points"] = audit.Sample(outOfRange, limit)
	out.Result["shapes_affected"] = audit.Sample(audit.SortedKeys(affected), limit)
	out.Grade(audit.Score(
		audit.Proportional(60, len(outOfRange), points),
		audit.Proportional(60, len(unparseable), points),
	), audit.DefaultThresholds)
	return out
}
