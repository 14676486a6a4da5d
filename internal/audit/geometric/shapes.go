package geometric

import (
	"sort"

	"gtfsaudit.onebusaway.org/internal/dataset"
	"gtfsaudit.onebusaway.org/internal/utils"
)

var shapeColumns = []string{"shape_id", "shape_pt_lat", "shape_pt_lon", "shape_pt_sequence"}

type point struct {
	row      int
	rawSeq   string
	seq      int64
	seqErr   error
	lat, lon float64
	coordErr error
}

func (p point) inBounds() bool {
	return p.coordErr == nil && utils.ValidateCoordinate(p.lat, p.lon) == nil
}

// shape holds the points of one shape_id in stored order.
type shape struct {
	id     string
	points []point
}

// path returns the usable points ordered by sequence. Points with an
// unreadable sequence or invalid coordinates are left out.
func (s shape) path() []point {
	out := make([]point, 0, len(s.points))
	for _, p := range s.points {
		if p.seqErr == nil && p.inBounds() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// groupShapes splits shapes.txt by shape_id, ordered by shape_id.
func groupShapes(t *dataset.Table) []shape {
	byID := make(map[string]*shape)
	for i := 0; i < t.Len(); i++ {
		id, ok := t.Cell(i, "shape_id").Text()
		if !ok {
			continue
		}
		s := byID[id]
		if s == nil {
			s = &shape{id: id}
			byID[id] = s
		}
		p := point{row: i}
		p.rawSeq, _ = t.Cell(i, "shape_pt_sequence").Text()
		p.seq, p.seqErr = dataset.ParseInt(t.Cell(i, "shape_pt_sequence"))
		lat, latErr := dataset.ParseFloat(t.Cell(i, "shape_pt_lat"))
		lon, lonErr := dataset.ParseFloat(t.Cell(i, "shape_pt_lon"))
		p.lat, p.lon = lat, lon
		if latErr != nil {
			p.coordErr = latErr
		} else if lonErr != nil {
			p.coordErr = lonErr
		}
		s.points = append(s.points, p)
	}

	shapes := make([]shape, 0, len(byID))
	for _, s := range byID {
		shapes = append(shapes, *s)
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i].id < shapes[j].id })
	return shapes
}

func distance(a, b point) float64 {
	return utils.Haversine(a.lat, a.lon, b.lat, b.lon)
}

// length is the sum of consecutive segment distances.
func length(path []point) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += distance(path[i-1], path[i])
	}
	return total
}
