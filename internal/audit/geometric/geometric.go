// Package geometric checks the plausibility of shape geometries: sequence
// order, coordinate bounds, spacing, direction changes, isolated points and
// near-identical shapes. All distances are haversine metres.
package geometric

import (
	"fmt"
	"math"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

const (
	Group    = "geometric"
	FileType = "shapes"
)

// Option keys.
const (
	OptMinDistanceMeters         = "min_distance_meters"
	OptDuplicateEpsilonMeters    = "duplicate_epsilon_meters"
	OptToleranceMeters           = "tolerance_meters"
	OptAngleThresholdDeg         = "angle_threshold_deg"
	OptDistanceThresholdMeters   = "distance_threshold_meters"
	OptSimilarityToleranceMeters = "similarity_tolerance_meters"
)

const (
	defaultMinDistanceMeters       = 1.0
	defaultDuplicateEpsilonMeters  = 0.01
	defaultToleranceMeters         = 10.0
	defaultAngleThresholdDeg       = 120.0
	defaultDistanceThresholdMeters = 1000.0
	defaultSimilarityTolerance     = 50.0
)

// Rules returns the geometric rules in catalogue order.
func Rules() []audit.RuleDef {
	return []audit.RuleDef{
		def("GP01", "shape_sequence_monotonicity", monotonicityExp, checkMonotonicity),
		def("GP02", "shape_coordinate_bounds", boundsExp, checkBounds),
		def("GP03", "shape_min_spacing", spacingExp, checkMinSpacing, OptMinDistanceMeters, OptDuplicateEpsilonMeters),
		def("GP04", "consecutive_duplicate_points", duplicatePointsExp, checkConsecutiveDuplicates, OptDuplicateEpsilonMeters),
		def("GP05", "shape_length_linearity", linearityExp, checkLengthLinearity),
		def("GP06", "closed_loop_shapes", loopExp, checkClosedLoops, OptToleranceMeters),
		def("GP07", "abrupt_direction_changes", directionExp, checkDirectionChanges, OptAngleThresholdDeg),
		def("GP08", "isolated_shape_points", isolatedExp, checkIsolatedPoints, OptDistanceThresholdMeters),
		def("GP09", "similar_shapes", similarExp, checkSimilarShapes, OptSimilarityToleranceMeters),
	}
}

func def(id, name string, exp audit.Explanation, check audit.CheckFunc, keys ...string) audit.RuleDef {
	return audit.RuleDef{
		ID:          id,
		Name:        name,
		Group:       Group,
		FileType:    FileType,
		Description: exp.Purpose,
		ConfigKeys:  append([]string{audit.OptSampleLimit}, keys...),
		Check:       check,
	}
}

// loadShapes resolves shapes.txt with the given columns.
func loadShapes(ds *dataset.Dataset, exp audit.Explanation, columns ...string) ([]shape, audit.Report, bool) {
	t, rep, ok := audit.Require(ds, exp, dataset.Shapes, columns...)
	if !ok {
		return nil, rep, false
	}
	return groupShapes(t), audit.Report{}, true
}

func pointLabel(shapeID string, p point) string {
	if p.rawSeq != "" {
		return fmt.Sprintf("%s:%s", shapeID, p.rawSeq)
	}
	return fmt.Sprintf("%s:line %d", shapeID, p.row+2)
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}

func head[T any](s []T, limit int) []T {
	if len(s) > limit {
		s = s[:limit]
	}
	return append([]T{}, s...)
}
