package plan

import (
	"math"
	"sort"
)

// BuildRegions assembles wall segments into a planar arrangement and
// extracts every bounded face as a room candidate. Candidates are kept
// when minArea <= area <= maxArea; their outlines are single closed
// rings winding counter-clockwise. Interior boundaries enclosed by a
// room (columns, shafts) are absorbed into the room outline rather than
// subtracted; a closed cell inside them becomes its own candidate and
// is subject to the same area bounds.
//
// minArea <= 0 disables the lower bound, maxArea <= 0 the upper bound.
// A wall network with no closed faces yields an empty result.
func BuildRegions(segments []Segment, minArea, maxArea float64) []RoomPolygon {
	arr := newArrangement(segments)
	if arr == nil {
		return nil
	}
	arr.pruneDangling()

	if minArea <= 0 {
		minArea = epsZero
	}
	if maxArea <= 0 {
		maxArea = math.Inf(1)
	}

	var rooms []RoomPolygon
	seen := make(map[faceKey]bool)
	for _, cycle := range arr.boundedFaces() {
		outline := collapseCollinear(cycle)
		if len(outline) < 3 {
			continue
		}
		area := PolygonArea(outline)
		if area < minArea || area > maxArea {
			continue
		}

		// Coincident faces collapse to one entry; the first discovered wins.
		key := arr.faceKeyFor(outline, area)
		if seen[key] {
			continue
		}
		seen[key] = true

		rooms = append(rooms, RoomPolygon{
			Index:     len(rooms),
			Outline:   outline,
			Area:      area,
			Perimeter: PolygonPerimeter(outline),
		})
	}
	return rooms
}

// arrangement is an arena of vertices with angle-sorted adjacency lists.
// Vertices and edges are indexed by integer id so traversal order is
// deterministic.
type arrangement struct {
	verts   []Point
	adj     [][]int
	quantum float64
	nEdges  int
}

type vertexKey struct {
	x, y int64
}

type faceKey struct {
	cx, cy, area int64
}

// newArrangement resolves all pairwise segment intersections and builds
// the vertex/edge arena. Returns nil for empty input.
func newArrangement(segments []Segment) *arrangement {
	if len(segments) == 0 {
		return nil
	}
	min, max, _ := SegmentBounds(segments)
	diag := Distance(min, max)
	if diag < epsZero {
		return nil
	}

	arr := &arrangement{quantum: math.Max(diag*1e-9, 1e-12)}
	ids := make(map[vertexKey]int)

	vertexID := func(p Point) int {
		key := vertexKey{
			x: int64(math.Round(p.X / arr.quantum)),
			y: int64(math.Round(p.Y / arr.quantum)),
		}
		if id, ok := ids[key]; ok {
			return id
		}
		id := len(arr.verts)
		ids[key] = id
		arr.verts = append(arr.verts, p)
		arr.adj = append(arr.adj, nil)
		return id
	}

	// Split every segment at its intersections with all the others, then
	// emit an edge per sub-span.
	edgeSeen := make(map[[2]int]bool)
	addEdge := func(u, v int) {
		if u == v {
			return
		}
		key := [2]int{u, v}
		if v < u {
			key = [2]int{v, u}
		}
		if edgeSeen[key] {
			return
		}
		edgeSeen[key] = true
		arr.adj[u] = append(arr.adj[u], v)
		arr.adj[v] = append(arr.adj[v], u)
		arr.nEdges++
	}

	for i, seg := range segments {
		cuts := []float64{0, 1}
		for j, other := range segments {
			if i == j {
				continue
			}
			if t, _, ok := segmentIntersection(seg.Start, seg.End, other.Start, other.End); ok {
				cuts = append(cuts, t)
			}
		}
		sort.Float64s(cuts)

		prev := vertexID(seg.Start)
		prevT := 0.0
		for _, t := range cuts[1:] {
			if t-prevT < 1e-12 {
				continue
			}
			p := Point{
				X: seg.Start.X + t*(seg.End.X-seg.Start.X),
				Y: seg.Start.Y + t*(seg.End.Y-seg.Start.Y),
			}
			cur := vertexID(p)
			addEdge(prev, cur)
			prev = cur
			prevT = t
		}
	}

	// Sort adjacency by angle so the face walk can pick the next edge
	// clockwise from the incoming one.
	for v := range arr.adj {
		at := arr.verts[v]
		sort.Slice(arr.adj[v], func(i, j int) bool {
			return arr.angleTo(at, arr.adj[v][i]) < arr.angleTo(at, arr.adj[v][j])
		})
	}
	return arr
}

func (a *arrangement) angleTo(from Point, to int) float64 {
	p := a.verts[to]
	return math.Atan2(p.Y-from.Y, p.X-from.X)
}

// pruneDangling removes open stubs: vertices of degree <= 1 are deleted
// repeatedly until none remain, so every surviving edge borders two
// faces.
func (a *arrangement) pruneDangling() {
	for {
		removed := false
		for v := range a.adj {
			if len(a.adj[v]) != 1 {
				continue
			}
			w := a.adj[v][0]
			a.adj[v] = nil
			a.adj[w] = removeID(a.adj[w], v)
			a.nEdges--
			removed = true
		}
		if !removed {
			return
		}
	}
}

func removeID(list []int, id int) []int {
	out := list[:0]
	for _, x := range list {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// boundedFaces walks every directed edge once and returns the cycles
// with positive signed area (counter-clockwise), which are exactly the
// bounded faces of the subdivision. Clockwise cycles trace the outside
// of a component and are discarded. Cycles that revisit a vertex would
// be self-intersecting outlines and are discarded too.
func (a *arrangement) boundedFaces() [][]Point {
	type directed struct{ u, v int }
	visited := make(map[directed]bool, a.nEdges*2)
	maxSteps := a.nEdges*2 + 1

	var faces [][]Point
	for u := range a.adj {
		for _, v := range a.adj[u] {
			start := directed{u, v}
			if visited[start] {
				continue
			}

			var ring []int
			cur := start
			ok := true
			for steps := 0; ; steps++ {
				if steps > maxSteps {
					ok = false
					break
				}
				visited[cur] = true
				ring = append(ring, cur.u)

				next, found := a.nextClockwise(cur.v, cur.u)
				if !found {
					ok = false
					break
				}
				cur = directed{cur.v, next}
				if cur == start {
					break
				}
			}
			if !ok || len(ring) < 3 {
				continue
			}
			if hasRepeatedVertex(ring) {
				continue
			}

			outline := make([]Point, len(ring))
			for i, id := range ring {
				outline[i] = a.verts[id]
			}
			if PolygonSignedArea(outline) > epsZero {
				faces = append(faces, outline)
			}
		}
	}
	return faces
}

// nextClockwise picks the edge leaving v that follows the incoming edge
// from u in clockwise order: the predecessor of u in v's CCW-sorted
// adjacency. At a dead end this bounces back along the incoming edge.
func (a *arrangement) nextClockwise(v, u int) (int, bool) {
	neighbors := a.adj[v]
	for i, w := range neighbors {
		if w == u {
			return neighbors[(i-1+len(neighbors))%len(neighbors)], true
		}
	}
	return 0, false
}

func hasRepeatedVertex(ring []int) bool {
	seen := make(map[int]bool, len(ring))
	for _, id := range ring {
		if seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}

// faceKeyFor quantizes a face's centroid and area so coincident faces
// map to the same key.
func (a *arrangement) faceKeyFor(outline []Point, area float64) faceKey {
	c := PolygonCentroid(outline)
	q := a.quantum * 1000
	return faceKey{
		cx:   int64(math.Round(c.X / q)),
		cy:   int64(math.Round(c.Y / q)),
		area: int64(math.Round(area / (q * q))),
	}
}

// segmentIntersection intersects segments a0-a1 and b0-b1.
// ok is true for a proper crossing or endpoint touch; t is the parameter
// along a, u along b. Collinear overlaps are not resolved into cuts.
func segmentIntersection(a0, a1, b0, b1 Point) (t, u float64, ok bool) {
	rx := a1.X - a0.X
	ry := a1.Y - a0.Y
	sx := b1.X - b0.X
	sy := b1.Y - b0.Y

	denom := rx*sy - ry*sx
	if math.Abs(denom) < 1e-12 {
		return 0, 0, false
	}

	qx := b0.X - a0.X
	qy := b0.Y - a0.Y
	t = (qx*sy - qy*sx) / denom
	u = (qx*ry - qy*rx) / denom

	const eps = 1e-9
	if t < -eps || t > 1+eps || u < -eps || u > 1+eps {
		return 0, 0, false
	}
	return clamp01(t), clamp01(u), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// collapseCollinear removes outline vertices that continue straight
// through their neighbors, leaving only true corners.
func collapseCollinear(outline []Point) []Point {
	n := len(outline)
	if n < 3 {
		return outline
	}
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		prev := outline[(i-1+n)%n]
		cur := outline[i]
		next := outline[(i+1)%n]

		ax, ay := cur.X-prev.X, cur.Y-prev.Y
		bx, by := next.X-cur.X, next.Y-cur.Y
		cross := ax*by - ay*bx
		scale := math.Hypot(ax, ay) * math.Hypot(bx, by)
		if scale > 0 && math.Abs(cross) <= 1e-9*scale {
			continue
		}
		out = append(out, cur)
	}
	if len(out) < 3 {
		return outline
	}
	return out
}
