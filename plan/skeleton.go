package plan

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// SkeletonStrategy selects one of the fixed centerline algorithms.
type SkeletonStrategy string

const (
	// StrategyThin is Zhang-Suen morphological thinning.
	StrategyThin SkeletonStrategy = "thin"

	// StrategyRidge extracts directional maxima of the distance transform.
	StrategyRidge SkeletonStrategy = "ridge"

	// StrategyMedial peels boundary pixels in distance order while
	// anchoring the ridge, approximating the medial axis.
	StrategyMedial SkeletonStrategy = "medial"
)

// DefaultStrategies returns the strategy set run per room, in order.
func DefaultStrategies() []SkeletonStrategy {
	return []SkeletonStrategy{StrategyThin, StrategyRidge, StrategyMedial}
}

// chainSimplifyPx is the Douglas-Peucker tolerance applied to skeleton
// pixel chains, in grid pixels.
const chainSimplifyPx = 1.0

// RoomRaster bundles the rasterized interior of one room with its
// distance transform and ridge mask. Private to that room's processing.
type RoomRaster struct {
	Interior *Grid
	DT       []float64
	Ridge    *Grid
}

// SkeletonCandidate is one strategy's centerline proposal for a room.
// The graph is in grid space; the winning candidate is mapped back to
// world space after optimization. Candidates are discarded once a winner
// is chosen.
type SkeletonCandidate struct {
	Strategy   SkeletonStrategy
	Graph      *SkeletonGraph
	Mask       *Grid
	Valid      bool
	Diagnostic string
	Score      float64
}

// GenerateCandidates rasterizes a room outline and runs every strategy
// against it. Returns nil when the outline cannot produce a meaningful
// raster (the room is too small to skeletonize). Candidates whose
// narrowest interior passage is under-resolved (< 2 px wide) are marked
// invalid instead of producing a broken graph.
func GenerateCandidates(outline []Point, size int, strategies []SkeletonStrategy) (*RoomRaster, []SkeletonCandidate) {
	interior := RasterizePolygon(outline, size)
	if interior == nil || interior.CountSet() < MinInteriorPixels {
		return nil, nil
	}
	dt := DistanceTransform(interior)
	raster := &RoomRaster{
		Interior: interior,
		DT:       dt,
		Ridge:    ridgeMask(interior, dt),
	}

	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	candidates := make([]SkeletonCandidate, 0, len(strategies))
	for _, strategy := range strategies {
		mask := skeletonize(strategy, raster)
		if mask == nil {
			continue
		}
		cand := SkeletonCandidate{Strategy: strategy, Mask: mask}
		graph, minPassage := maskToGraph(mask, dt)
		cand.Graph = graph

		switch {
		case len(graph.Edges) == 0:
			cand.Diagnostic = "empty skeleton"
		case minPassage < 2.0:
			cand.Diagnostic = fmt.Sprintf("narrowest passage %.1fpx under-resolved", minPassage)
		default:
			cand.Valid = true
		}
		candidates = append(candidates, cand)
	}
	return raster, candidates
}

func skeletonize(strategy SkeletonStrategy, raster *RoomRaster) *Grid {
	switch strategy {
	case StrategyThin:
		return zhangSuenThin(raster.Interior)
	case StrategyRidge:
		return raster.Ridge.Clone()
	case StrategyMedial:
		return medialThin(raster.Interior, raster.DT, raster.Ridge)
	}
	return nil
}

// ringOffsets orders the 8-neighborhood N, NE, E, SE, S, SW, W, NW for
// crossing-number tests.
var ringOffsets = [8][2]int{{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}}

func neighborRing(g *Grid, x, y int) (ring [8]bool) {
	for i, o := range ringOffsets {
		ring[i] = g.At(x+o[0], y+o[1])
	}
	return ring
}

func ringCount(ring [8]bool) int {
	n := 0
	for _, set := range ring {
		if set {
			n++
		}
	}
	return n
}

// ringTransitions counts 0->1 transitions around the cyclic ring. A
// value of 1 means removing the center pixel keeps its neighborhood
// connected.
func ringTransitions(ring [8]bool) int {
	n := 0
	for i := range ring {
		if !ring[i] && ring[(i+1)%8] {
			n++
		}
	}
	return n
}

// zhangSuenThin erodes the mask to a one-pixel-wide skeleton with the
// classic two-subiteration scheme. Each pass only deletes pixels whose
// removal preserves local connectivity, so the loop terminates when a
// stable skeleton remains.
func zhangSuenThin(g *Grid) *Grid {
	out := g.Clone()
	size := out.Size
	for {
		changed := false
		for sub := 0; sub < 2; sub++ {
			var marks []int
			for y := 0; y < size; y++ {
				for x := 0; x < size; x++ {
					if !out.At(x, y) {
						continue
					}
					ring := neighborRing(out, x, y)
					b := ringCount(ring)
					if b < 2 || b > 6 || ringTransitions(ring) != 1 {
						continue
					}
					// ring indices: 0=N, 2=E, 4=S, 6=W
					if sub == 0 {
						if (ring[0] && ring[2] && ring[4]) || (ring[2] && ring[4] && ring[6]) {
							continue
						}
					} else {
						if (ring[0] && ring[2] && ring[6]) || (ring[0] && ring[4] && ring[6]) {
							continue
						}
					}
					marks = append(marks, y*size+x)
				}
			}
			for _, i := range marks {
				out.Cells[i] = false
				changed = true
			}
		}
		if !changed {
			return out
		}
	}
}

// ridgeMask keeps interior pixels that are directional maxima of the
// distance transform: at least as deep as both opposing neighbors along
// one of the four axes, and strictly deeper than one of them.
func ridgeMask(g *Grid, dt []float64) *Grid {
	out := NewGrid(g.Size)
	out.ToWorld, out.ToGrid, out.CellSize = g.ToWorld, g.ToGrid, g.CellSize

	axes := [4][2][2]int{
		{{1, 0}, {-1, 0}},
		{{0, 1}, {0, -1}},
		{{1, 1}, {-1, -1}},
		{{1, -1}, {-1, 1}},
	}
	at := func(x, y int) float64 {
		if x < 0 || x >= g.Size || y < 0 || y >= g.Size {
			return 0
		}
		return dt[y*g.Size+x]
	}

	for y := 0; y < g.Size; y++ {
		for x := 0; x < g.Size; x++ {
			d := at(x, y)
			if d < 1 {
				continue
			}
			for _, axis := range axes {
				a := at(x+axis[0][0], y+axis[0][1])
				b := at(x+axis[1][0], y+axis[1][1])
				if d >= a && d >= b && (d > a || d > b) {
					out.Set(x, y, true)
					break
				}
			}
		}
	}
	return out
}

// medialThin approximates the medial axis: boundary pixels are consumed
// in increasing distance-transform order, never breaking connectivity
// and never removing ridge anchors, then a thinning pass normalizes the
// result to single-pixel width.
func medialThin(g *Grid, dt []float64, anchors *Grid) *Grid {
	out := g.Clone()
	size := out.Size

	order := make([]int, 0, len(out.Cells))
	for i, set := range out.Cells {
		if set {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if dt[order[i]] != dt[order[j]] {
			return dt[order[i]] < dt[order[j]]
		}
		return order[i] < order[j]
	})

	for _, i := range order {
		if anchors.Cells[i] || !out.Cells[i] {
			continue
		}
		x, y := i%size, i/size
		ring := neighborRing(out, x, y)
		if ringCount(ring) == 0 {
			continue
		}
		if ringTransitions(ring) != 1 {
			continue
		}
		out.Cells[i] = false
	}
	return zhangSuenThin(out)
}

// maskToGraph converts a skeleton pixel mask into a node/edge graph in
// grid coordinates. Pixels with degree != 2 become nodes; 8-connected
// chains between them become edges after Douglas-Peucker straightening,
// with surviving bend pixels as interior nodes. A pure cycle is anchored
// at its lowest raster index. The second return value is the narrowest
// passage width crossed by any chain between non-leaf nodes, in pixels
// (+Inf when the skeleton has no such chain).
func maskToGraph(mask *Grid, dt []float64) (*SkeletonGraph, float64) {
	size := mask.Size
	graph := &SkeletonGraph{}

	var pixels []int
	for i, set := range mask.Cells {
		if set {
			pixels = append(pixels, i)
		}
	}
	if len(pixels) == 0 {
		return graph, math.Inf(1)
	}

	degree := func(i int) int {
		return ringCount(neighborRing(mask, i%size, i/size))
	}

	nodePixels := make(map[int]bool)
	for _, i := range pixels {
		if degree(i) != 2 {
			nodePixels[i] = true
		}
	}

	nodeID := make(map[int]int)
	idFor := func(pixel int) int {
		if id, ok := nodeID[pixel]; ok {
			return id
		}
		kind := NodeInterior
		switch d := degree(pixel); {
		case d <= 1:
			kind = NodeEndpoint
		case d >= 3:
			kind = NodeJunction
		}
		id := len(graph.Nodes)
		nodeID[pixel] = id
		graph.Nodes = append(graph.Nodes, SkeletonNode{
			ID:   id,
			Kind: kind,
			Pos:  Point{X: float64(pixel % size), Y: float64(pixel / size)},
		})
		return id
	}

	visited := make(map[[2]int]bool)
	edgeKeyOf := func(a, b int) [2]int {
		if b < a {
			a, b = b, a
		}
		return [2]int{a, b}
	}

	covered := make(map[int]bool)
	minPassage := math.Inf(1)
	processStart := func(start int) {
		covered[start] = true
		sx, sy := start%size, start/size
		for _, o := range ringOffsets {
			nx, ny := sx+o[0], sy+o[1]
			if !mask.At(nx, ny) {
				continue
			}
			next := ny*size + nx
			if visited[edgeKeyOf(start, next)] {
				continue
			}

			chain := walkChain(mask, nodePixels, visited, start, next)
			end := chain[len(chain)-1]
			for _, px := range chain {
				covered[px] = true
			}

			if w := chainPassage(chain, dt, degree(start) <= 1, degree(end) <= 1); w < minPassage {
				minPassage = w
			}

			addChainEdges(graph, chain, size, idFor)
		}
	}

	starts := make([]int, 0, len(nodePixels))
	for i := range nodePixels {
		starts = append(starts, i)
	}
	sort.Ints(starts)
	for _, start := range starts {
		processStart(start)
	}

	// Pure cycles have no degree != 2 pixel to start from; anchor each
	// uncovered one at its lowest raster index so it still enters the
	// graph (and counts against connectivity if it is a stray component).
	for _, i := range pixels {
		if !covered[i] {
			nodePixels[i] = true
			processStart(i)
		}
	}
	return graph, minPassage
}

// chainPassage returns the narrowest passage width (2r-1 for local
// radius r) crossed by a pixel chain. Pixels within dt+1 steps of a
// leaf tip are skipped: their shrinking radius reflects the tip's own
// taper, not a passage the chain squeezes through. Returns +Inf when
// every pixel sits in a taper.
func chainPassage(chain []int, dt []float64, startLeaf, endLeaf bool) float64 {
	narrowest := math.Inf(1)
	last := len(chain) - 1
	for i, px := range chain {
		if startLeaf && float64(i) <= dt[px]+1 {
			continue
		}
		if endLeaf && float64(last-i) <= dt[px]+1 {
			continue
		}
		if w := 2*dt[px] - 1; w < narrowest {
			narrowest = w
		}
	}
	return narrowest
}

// RadiusAt samples the distance transform at the grid cell nearest to
// p, in grid coordinates. Zero outside the raster.
func (r *RoomRaster) RadiusAt(p Point) float64 {
	x := int(math.Round(p.X))
	y := int(math.Round(p.Y))
	if x < 0 || x >= r.Interior.Size || y < 0 || y >= r.Interior.Size {
		return 0
	}
	return r.DT[y*r.Interior.Size+x]
}

// walkChain follows a pixel chain from a node pixel through degree-2
// pixels until the next node pixel, marking pixel adjacencies visited.
func walkChain(mask *Grid, nodePixels map[int]bool, visited map[[2]int]bool, start, next int) []int {
	size := mask.Size
	edgeKeyOf := func(a, b int) [2]int {
		if b < a {
			a, b = b, a
		}
		return [2]int{a, b}
	}

	chain := []int{start, next}
	visited[edgeKeyOf(start, next)] = true
	prev, cur := start, next
	for !nodePixels[cur] {
		cx, cy := cur%size, cur/size
		found := -1
		for _, o := range ringOffsets {
			nx, ny := cx+o[0], cy+o[1]
			if !mask.At(nx, ny) {
				continue
			}
			n := ny*size + nx
			if n != prev {
				found = n
				break
			}
		}
		if found < 0 {
			break
		}
		visited[edgeKeyOf(cur, found)] = true
		chain = append(chain, found)
		prev, cur = cur, found
	}
	return chain
}

// addChainEdges straightens a pixel chain and appends its edges to the
// graph, creating interior nodes at surviving bends.
func addChainEdges(graph *SkeletonGraph, chain []int, size int, idFor func(int) int) {
	if len(chain) < 2 {
		return
	}

	ls := make(orb.LineString, len(chain))
	for i, px := range chain {
		ls[i] = orb.Point{float64(px % size), float64(px / size)}
	}
	simplified, ok := simplify.DouglasPeucker(chainSimplifyPx).Simplify(ls.Clone()).(orb.LineString)
	if !ok || len(simplified) < 2 {
		return
	}

	prevID := idFor(chain[0])
	for i := 1; i < len(simplified); i++ {
		p := simplified[i]
		var id int
		if i == len(simplified)-1 {
			id = idFor(chain[len(chain)-1])
		} else {
			id = len(graph.Nodes)
			graph.Nodes = append(graph.Nodes, SkeletonNode{
				ID:   id,
				Kind: NodeInterior,
				Pos:  Point{X: p[0], Y: p[1]},
			})
		}
		if id != prevID {
			graph.Edges = append(graph.Edges, SkeletonEdge{A: prevID, B: id})
		}
		prevID = id
	}
}
