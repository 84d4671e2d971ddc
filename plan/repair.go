package plan

import "math"

const (
	// epsZero is the length below which a segment counts as zero-length.
	epsZero = 1e-9

	// autoSnapDivisor scales the bounding-box diagonal into the default
	// snap tolerance when none is configured.
	autoSnapDivisor = 1000.0
)

// RepairResult reports what the segment repair pass did.
type RepairResult struct {
	Segments []Segment // cleaned wall segments
	// Bridges are the wall spans consumed by opening excision. A door
	// interrupts the wall line but still bounds the rooms on either
	// side, so region building needs these spans back to close faces
	// across openings. They are snapped together with the walls and
	// share endpoints with the cut pieces.
	Bridges           []Segment
	Tolerance         float64 // snap tolerance actually used
	Excisions         int     // wall segments split or trimmed by openings
	MergedEndpoints   int     // endpoints moved onto a shared coordinate
	DroppedZeroLength int
	DroppedDuplicates int
}

// Boundary returns the cleaned walls plus the opening bridges: the
// closed room-bounding geometry region builders should work on.
func (r RepairResult) Boundary() []Segment {
	if len(r.Bridges) == 0 {
		return r.Segments
	}
	out := make([]Segment, 0, len(r.Segments)+len(r.Bridges))
	out = append(out, r.Segments...)
	out = append(out, r.Bridges...)
	return out
}

// AutoSnapTolerance derives a snap tolerance from the segment extent:
// one thousandth of the bounding-box diagonal.
func AutoSnapTolerance(segments []Segment) float64 {
	min, max, ok := SegmentBounds(segments)
	if !ok {
		return epsZero
	}
	diag := Distance(min, max)
	if diag < epsZero {
		return epsZero
	}
	return diag / autoSnapDivisor
}

// RepairSegments cleans a raw segment set: door and window spans are
// excised from the walls they cross, wall endpoints within tolerance are
// merged to a shared coordinate, and zero-length or duplicate segments
// are dropped. Openings are consumed by excision and do not appear in
// the output. A tolerance <= 0 selects AutoSnapTolerance.
//
// Repair is permissive: segments that cannot be snapped pass through
// unchanged. Repairing already-repaired output is a no-op.
func RepairSegments(segments []Segment, tolerance float64) RepairResult {
	if tolerance <= 0 {
		tolerance = AutoSnapTolerance(segments)
	}
	result := RepairResult{Tolerance: tolerance}

	var walls, openings []Segment
	for _, s := range segments {
		if s.Kind.IsOpening() {
			openings = append(openings, s)
		} else {
			walls = append(walls, s)
		}
	}

	walls, bridges := exciseOpenings(walls, openings, tolerance, &result)

	// Snap walls and bridges as one point set so bridge endpoints stay
	// coincident with the cut pieces they span between.
	nWalls := len(walls)
	combined := snapEndpoints(append(walls, bridges...), tolerance, &result)
	walls, bridges = combined[:nWalls], combined[nWalls:]

	// Drop zero-length segments and duplicates after snapping.
	seen := make(map[segmentKey]bool)
	cleaned := walls[:0]
	for _, w := range walls {
		if w.Length() < epsZero {
			result.DroppedZeroLength++
			continue
		}
		key := canonicalKey(w)
		if seen[key] {
			result.DroppedDuplicates++
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, w)
	}
	result.Segments = cleaned

	for _, b := range bridges {
		if b.Length() < epsZero || seen[canonicalKey(b)] {
			continue
		}
		seen[canonicalKey(b)] = true
		result.Bridges = append(result.Bridges, b)
	}
	return result
}

type segmentKey struct {
	a, b Point
}

// canonicalKey orders the endpoints so a segment and its reverse share
// one key.
func canonicalKey(s Segment) segmentKey {
	a, b := s.Start, s.End
	if b.X < a.X || (b.X == a.X && b.Y < a.Y) {
		a, b = b, a
	}
	return segmentKey{a: a, b: b}
}

// exciseOpenings removes the span each opening covers from every wall
// segment crossing its bounding extent, splitting the wall into the
// pieces outside the opening. The removed spans are returned as bridges
// so region building can still close faces across the opening.
func exciseOpenings(walls, openings []Segment, tolerance float64, result *RepairResult) (kept, bridges []Segment) {
	for _, opening := range openings {
		boxMin, boxMax, ok := SegmentBounds([]Segment{opening})
		if !ok {
			continue
		}
		boxMin.X -= tolerance
		boxMin.Y -= tolerance
		boxMax.X += tolerance
		boxMax.Y += tolerance

		next := make([]Segment, 0, len(walls)+1)
		for _, wall := range walls {
			t0, t1, hit := clipParamsToBox(wall.Start, wall.End, boxMin, boxMax)
			if !hit || t1 <= 0 || t0 >= 1 {
				next = append(next, wall)
				continue
			}
			result.Excisions++
			if piece, ok := subSegment(wall, 0, t0); ok {
				next = append(next, piece)
			}
			if piece, ok := subSegment(wall, t1, 1); ok {
				next = append(next, piece)
			}
			if span, ok := subSegment(wall, t0, t1); ok {
				bridges = append(bridges, span)
			}
		}
		walls = next
	}
	return walls, bridges
}

// subSegment returns the wall portion between parameters t0 and t1,
// clamped to [0,1]. ok is false when the piece is degenerate.
func subSegment(wall Segment, t0, t1 float64) (Segment, bool) {
	t0 = math.Max(0, t0)
	t1 = math.Min(1, t1)
	if t1-t0 < epsZero {
		return Segment{}, false
	}
	dx := wall.End.X - wall.Start.X
	dy := wall.End.Y - wall.Start.Y
	piece := Segment{
		Start: Point{X: wall.Start.X + t0*dx, Y: wall.Start.Y + t0*dy},
		End:   Point{X: wall.Start.X + t1*dx, Y: wall.Start.Y + t1*dy},
		Kind:  wall.Kind,
	}
	if piece.Length() < epsZero {
		return Segment{}, false
	}
	return piece, true
}

// clipParamsToBox computes the parameter interval of the segment p0->p1
// inside an axis-aligned box (Liang-Barsky). hit is false when the
// segment misses the box entirely.
func clipParamsToBox(p0, p1, boxMin, boxMax Point) (t0, t1 float64, hit bool) {
	t0, t1 = 0, 1
	dx := p1.X - p0.X
	dy := p1.Y - p0.Y

	clip := func(p, q float64) bool {
		if math.Abs(p) < epsZero {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return false
			}
			if r < t1 {
				t1 = r
			}
		}
		return true
	}

	if !clip(-dx, p0.X-boxMin.X) {
		return 0, 0, false
	}
	if !clip(dx, boxMax.X-p0.X) {
		return 0, 0, false
	}
	if !clip(-dy, p0.Y-boxMin.Y) {
		return 0, 0, false
	}
	if !clip(dy, boxMax.Y-p0.Y) {
		return 0, 0, false
	}
	return t0, t1, true
}

// snapEndpoints merges wall endpoints within tolerance onto a shared
// coordinate. Clusters are found by single-linkage union-find over all
// endpoints and replaced by their centroid. Rounds repeat until no two
// distinct endpoints remain within tolerance, so the output is a fixed
// point of the operation.
func snapEndpoints(walls []Segment, tolerance float64, result *RepairResult) []Segment {
	for round := 0; round < 16; round++ {
		points := make([]Point, 0, len(walls)*2)
		for _, w := range walls {
			points = append(points, w.Start, w.End)
		}

		uf := newUnionFind(len(points))
		merged := false
		for i := 0; i < len(points); i++ {
			for j := i + 1; j < len(points); j++ {
				if Distance(points[i], points[j]) <= tolerance {
					if points[i] != points[j] {
						merged = true
					}
					uf.union(i, j)
				}
			}
		}
		if !merged {
			return walls
		}

		// Replace each cluster by its centroid.
		clusters := make(map[int][]Point)
		for i, p := range points {
			root := uf.find(i)
			clusters[root] = append(clusters[root], p)
		}
		snapped := make(map[int]Point, len(clusters))
		for root, members := range clusters {
			snapped[root] = Centroid(members)
		}

		for i := range walls {
			start := snapped[uf.find(2*i)]
			end := snapped[uf.find(2*i+1)]
			if start != walls[i].Start {
				result.MergedEndpoints++
			}
			if end != walls[i].End {
				result.MergedEndpoints++
			}
			walls[i].Start = start
			walls[i].End = end
		}
	}
	return walls
}

// unionFind implements a disjoint-set data structure with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}
