package plan

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// orbRing converts an outline to a closed orb.Ring.
// Returns nil if the outline has fewer than 3 vertices.
func orbRing(outline []Point) orb.Ring {
	if len(outline) < 3 {
		return nil
	}
	ring := make(orb.Ring, 0, len(outline)+1)
	for _, p := range outline {
		ring = append(ring, orb.Point{p.X, p.Y})
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// outlineFromRing converts a closed orb.Ring back to an outline,
// dropping the duplicate closing vertex.
func outlineFromRing(ring orb.Ring) []Point {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	outline := make([]Point, n)
	for i := 0; i < n; i++ {
		outline[i] = Point{X: ring[i][0], Y: ring[i][1]}
	}
	return outline
}

// PolygonArea returns the unsigned area of a closed outline.
func PolygonArea(outline []Point) float64 {
	ring := orbRing(outline)
	if ring == nil {
		return 0
	}
	return math.Abs(planar.Area(ring))
}

// PolygonSignedArea returns the signed area of a closed outline.
// Counter-clockwise outlines have positive area.
func PolygonSignedArea(outline []Point) float64 {
	ring := orbRing(outline)
	if ring == nil {
		return 0
	}
	return planar.Area(ring)
}

// PolygonPerimeter returns the total boundary length of a closed outline,
// including the closing edge.
func PolygonPerimeter(outline []Point) float64 {
	ring := orbRing(outline)
	if ring == nil {
		return 0
	}
	return planar.Length(ring)
}

// PolygonCentroid returns the area centroid of a closed outline.
func PolygonCentroid(outline []Point) Point {
	ring := orbRing(outline)
	if ring == nil {
		return Centroid(outline)
	}
	c, _ := planar.CentroidArea(ring)
	return Point{X: c[0], Y: c[1]}
}

// IsCounterClockwise reports whether the outline winds counter-clockwise.
func IsCounterClockwise(outline []Point) bool {
	ring := orbRing(outline)
	if ring == nil {
		return false
	}
	return ring.Orientation() == orb.CCW
}

// ReverseOutline returns the outline with reversed winding.
func ReverseOutline(outline []Point) []Point {
	out := make([]Point, len(outline))
	for i, p := range outline {
		out[len(outline)-1-i] = p
	}
	return out
}

// PointInPolygon reports whether p lies inside the closed outline.
// Points exactly on the boundary count as inside.
func PointInPolygon(p Point, outline []Point) bool {
	ring := orbRing(outline)
	if ring == nil {
		return false
	}
	return planar.RingContains(ring, orb.Point{p.X, p.Y})
}

// Compactness returns the isoperimetric quotient 4*pi*A/P^2 of an
// outline: 1.0 for a circle, lower for elongated or ragged shapes.
func Compactness(outline []Point) float64 {
	perimeter := PolygonPerimeter(outline)
	if perimeter == 0 {
		return 0
	}
	return 4 * math.Pi * PolygonArea(outline) / (perimeter * perimeter)
}

// WallAngleHistogram represents the distribution of wall angles in a
// drawing. Angles are binned into 1-degree buckets from 0-179 (180 degree
// symmetry, walls have no inherent direction). Bins are length-weighted so
// a long facade counts more than a short stub.
type WallAngleHistogram struct {
	Bins       [180]float64 // Normalized length-weighted bins
	RawLengths [180]float64 // Summed wall length per bin
	WallCount  int          // Number of wall segments analyzed
}

// WallAngles builds a wall-angle histogram from the drawing's wall segments.
// Zero-length segments are skipped.
func WallAngles(segments []Segment) WallAngleHistogram {
	var hist WallAngleHistogram

	var total float64
	for _, s := range segments {
		if s.Kind != KindWall {
			continue
		}
		length := s.Length()
		if length == 0 {
			continue
		}

		angle := math.Atan2(s.End.Y-s.Start.Y, s.End.X-s.Start.X) * 180 / math.Pi
		for angle < 0 {
			angle += 180
		}
		for angle >= 180 {
			angle -= 180
		}

		bin := int(math.Round(angle)) % 180
		hist.RawLengths[bin] += length
		hist.WallCount++
		total += length
	}

	if total > 0 {
		for i := 0; i < 180; i++ {
			hist.Bins[i] = hist.RawLengths[i] / total
		}
	}

	return hist
}

// DominantAngles returns the top N most common wall angles by total length.
func (h *WallAngleHistogram) DominantAngles(n int) []float64 {
	type angleWeight struct {
		angle  float64
		weight float64
	}

	var angles []angleWeight
	for i := 0; i < 180; i++ {
		if h.RawLengths[i] > 0 {
			angles = append(angles, angleWeight{float64(i), h.RawLengths[i]})
		}
	}

	sort.Slice(angles, func(i, j int) bool {
		return angles[i].weight > angles[j].weight
	})

	result := make([]float64, 0, n)
	for i := 0; i < len(angles) && i < n; i++ {
		result = append(result, angles[i].angle)
	}
	return result
}

// CountOpenEndpoints returns the number of wall endpoints with no other
// wall endpoint within tol. A tolerance <= 0 selects AutoSnapTolerance.
// A clean closed floor plan has zero open endpoints; each one usually marks
// a gap the repair pass has to bridge.
func CountOpenEndpoints(segments []Segment, tol float64) int {
	if tol <= 0 {
		tol = AutoSnapTolerance(segments)
	}
	if tol <= 0 {
		return 0
	}

	type cell struct{ x, y int }
	var endpoints []Point
	grid := make(map[cell][]int)
	for _, s := range segments {
		if s.Kind != KindWall || s.Length() == 0 {
			continue
		}
		for _, p := range []Point{s.Start, s.End} {
			idx := len(endpoints)
			endpoints = append(endpoints, p)
			c := cell{int(math.Floor(p.X / tol)), int(math.Floor(p.Y / tol))}
			grid[c] = append(grid[c], idx)
		}
	}

	open := 0
	for i, p := range endpoints {
		cx := int(math.Floor(p.X / tol))
		cy := int(math.Floor(p.Y / tol))

		matched := false
		for dx := -1; dx <= 1 && !matched; dx++ {
			for dy := -1; dy <= 1 && !matched; dy++ {
				for _, j := range grid[cell{cx + dx, cy + dy}] {
					if j != i && Distance(p, endpoints[j]) <= tol {
						matched = true
						break
					}
				}
			}
		}
		if !matched {
			open++
		}
	}
	return open
}

// OutlineBounds returns the bounding box of an outline.
// ok is false when the outline is empty.
func OutlineBounds(outline []Point) (min, max Point, ok bool) {
	if len(outline) == 0 {
		return Point{}, Point{}, false
	}
	min, max = outline[0], outline[0]
	for _, p := range outline[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}
	return min, max, true
}
