package plan

import (
	"fmt"
	"math"
	"sort"
)

// OptimizerConfig holds tolerances for skeleton graph cleanup. The
// optimizer runs on grid-space graphs, so distances are in raster
// pixels.
type OptimizerConfig struct {
	MergeTolerance float64 // node pairs closer than this collapse into one
	PruneTolerance float64 // leaf chains shorter than this are removed
	AngleTolerance float64 // degrees of deviation still treated as straight
	MaxIterations  int     // hard cap on every fixed-point loop

	// RadiusAt optionally reports the local room half-width at a graph
	// position. When set, leaf branches not much longer than the
	// half-width at their junction are pruned as thinning artifacts
	// regardless of PruneTolerance.
	RadiusAt func(Point) float64
}

// DefaultOptimizerConfig returns tolerances tuned for raster skeletons.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MergeTolerance: 2.0,  // thinning artifacts cluster within ~2px
		PruneTolerance: 6.0,  // corner spurs are shorter than real branches
		AngleTolerance: 10.0, // degrees
		MaxIterations:  32,
	}
}

// OptimizeResult reports the cleaned graph and whether the room had to
// be reduced to a single component.
type OptimizeResult struct {
	Graph             *SkeletonGraph
	Degenerate        bool // skeleton had multiple components after pruning
	DroppedComponents int
	Diagnostic        string
}

// OptimizeGraph cleans a raw skeleton candidate: nearby nodes merge,
// short leaf branches are pruned, disconnected fragments beyond the
// longest component are dropped, and near-collinear runs collapse into
// single edges. The passes repeat until the graph stops changing, so
// optimizing an already optimized graph is a no-op. Node IDs come out
// renumbered by position (Y, then X) with kinds recomputed from final
// degrees.
func OptimizeGraph(g *SkeletonGraph, cfg OptimizerConfig) OptimizeResult {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultOptimizerConfig().MaxIterations
	}
	if g == nil {
		return OptimizeResult{Graph: &SkeletonGraph{}}
	}

	work := normalizeGraph(g)
	droppedTotal := 0
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		nodesBefore, edgesBefore := len(work.Nodes), len(work.Edges)

		work = mergeNodes(work, cfg.MergeTolerance, cfg.MaxIterations)
		work = pruneSpurs(work, cfg)
		var dropped int
		work, dropped = keepLargestComponent(work)
		droppedTotal += dropped
		work = collapseChains(work, cfg.AngleTolerance, cfg.MaxIterations)
		work = normalizeGraph(work)

		// Every productive pass removes at least one node or edge.
		if len(work.Nodes) == nodesBefore && len(work.Edges) == edgesBefore {
			break
		}
	}

	result := OptimizeResult{Graph: work, DroppedComponents: droppedTotal}
	if droppedTotal > 0 {
		result.Degenerate = true
		result.Diagnostic = fmt.Sprintf("skeleton had %d components; kept the longest", droppedTotal+1)
	}
	return result
}

// mergeNodes collapses clusters of nodes within tolerance of each other
// into their centroid, rewiring edges and discarding the self-loops and
// duplicates the rewiring creates. Clustering repeats until no two
// remaining nodes are within tolerance.
func mergeNodes(g *SkeletonGraph, tolerance float64, maxIterations int) *SkeletonGraph {
	if tolerance <= 0 {
		return g
	}
	for iter := 0; iter < maxIterations; iter++ {
		n := len(g.Nodes)
		if n < 2 {
			return g
		}
		uf := newUnionFind(n)
		merged := false
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if Distance(g.Nodes[i].Pos, g.Nodes[j].Pos) > tolerance {
					continue
				}
				if uf.find(i) != uf.find(j) {
					uf.union(i, j)
					merged = true
				}
			}
		}
		if !merged {
			return g
		}

		sumX := make([]float64, n)
		sumY := make([]float64, n)
		count := make([]int, n)
		for i := 0; i < n; i++ {
			root := uf.find(i)
			sumX[root] += g.Nodes[i].Pos.X
			sumY[root] += g.Nodes[i].Pos.Y
			count[root]++
		}

		remap := make([]int, n)
		for i := range remap {
			remap[i] = -1
		}
		var nodes []SkeletonNode
		for i := 0; i < n; i++ {
			root := uf.find(i)
			if remap[root] < 0 {
				remap[root] = len(nodes)
				nodes = append(nodes, SkeletonNode{
					ID: len(nodes),
					Pos: Point{
						X: sumX[root] / float64(count[root]),
						Y: sumY[root] / float64(count[root]),
					},
				})
			}
		}

		edges := make([]SkeletonEdge, 0, len(g.Edges))
		for _, e := range g.Edges {
			edges = append(edges, SkeletonEdge{A: remap[uf.find(e.A)], B: remap[uf.find(e.B)]})
		}
		g = &SkeletonGraph{Nodes: nodes, Edges: dedupeEdges(edges)}
	}
	return g
}

// pruneSpurs removes short leaf chains, repeating until none remain.
// A chain that is an entire component by itself is never removed, and
// when all of a component's chains qualify the longest one is spared,
// so pruning cannot erase a component outright.
func pruneSpurs(g *SkeletonGraph, cfg OptimizerConfig) *SkeletonGraph {
	if cfg.PruneTolerance <= 0 || len(g.Edges) == 0 {
		return g
	}
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		degrees := nodeDegrees(g)
		chains := decomposeChains(g)

		uf := newUnionFind(len(g.Nodes))
		for _, e := range g.Edges {
			uf.union(e.A, e.B)
		}

		removable := make([]bool, len(chains))
		chainsPerComp := make(map[int]int)
		removablePerComp := make(map[int]int)
		for ci, c := range chains {
			root := uf.find(c.nodes[0])
			chainsPerComp[root]++
			if !c.leaf {
				continue
			}
			first, last := c.nodes[0], c.nodes[len(c.nodes)-1]
			if degrees[first] <= 1 && degrees[last] <= 1 {
				// The chain is its whole component; keep it.
				continue
			}
			limit := cfg.PruneTolerance
			if cfg.RadiusAt != nil {
				junction := first
				if degrees[first] <= 1 {
					junction = last
				}
				// Thinning a convex corner leaves a diagonal branch about
				// sqrt(2) times the local half-width; anything in that
				// range is an artifact, not room structure.
				if r := cfg.RadiusAt(g.Nodes[junction].Pos); r > 0 {
					limit = math.Max(limit, 1.5*r+cfg.PruneTolerance)
				}
			}
			if c.length >= limit {
				continue
			}
			removable[ci] = true
			removablePerComp[root]++
		}
		for root, cnt := range removablePerComp {
			if cnt < chainsPerComp[root] {
				continue
			}
			spare, spareLen := -1, -1.0
			for ci, c := range chains {
				if removable[ci] && uf.find(c.nodes[0]) == root && c.length > spareLen {
					spare, spareLen = ci, c.length
				}
			}
			if spare >= 0 {
				removable[spare] = false
			}
		}

		drop := make(map[int]bool)
		for ci, c := range chains {
			if !removable[ci] {
				continue
			}
			for _, ei := range c.edges {
				drop[ei] = true
			}
		}
		if len(drop) == 0 {
			return g
		}
		edges := make([]SkeletonEdge, 0, len(g.Edges)-len(drop))
		for i, e := range g.Edges {
			if !drop[i] {
				edges = append(edges, e)
			}
		}
		g = &SkeletonGraph{Nodes: g.Nodes, Edges: edges}
	}
	return g
}

// keepLargestComponent drops every component except the one with the
// greatest total edge length. Equal lengths resolve to the component
// containing the lowest node index. Returns the number of components
// removed.
func keepLargestComponent(g *SkeletonGraph) (*SkeletonGraph, int) {
	if len(g.Edges) == 0 {
		return g, 0
	}
	uf := newUnionFind(len(g.Nodes))
	for _, e := range g.Edges {
		uf.union(e.A, e.B)
	}
	byRoot := make(map[int]float64)
	for _, e := range g.Edges {
		byRoot[uf.find(e.A)] += Distance(g.Nodes[e.A].Pos, g.Nodes[e.B].Pos)
	}
	if len(byRoot) <= 1 {
		return g, 0
	}

	roots := make([]int, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Ints(roots)
	best, bestLen := -1, -1.0
	for _, root := range roots {
		if byRoot[root] > bestLen {
			best, bestLen = root, byRoot[root]
		}
	}

	edges := make([]SkeletonEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if uf.find(e.A) == best {
			edges = append(edges, e)
		}
	}
	return &SkeletonGraph{Nodes: g.Nodes, Edges: edges}, len(byRoot) - 1
}

// collapseChains straightens each chain by dropping interior nodes
// whose turn deviates less than the angle tolerance, repeating until a
// full pass drops nothing.
func collapseChains(g *SkeletonGraph, angleDeg float64, maxIterations int) *SkeletonGraph {
	if angleDeg <= 0 || len(g.Edges) == 0 {
		return g
	}
	for iter := 0; iter < maxIterations; iter++ {
		chains := decomposeChains(g)
		var edges []SkeletonEdge
		changed := false
		for _, c := range chains {
			kept := filterCollinear(g, c, angleDeg)
			if len(kept) < len(c.nodes) {
				changed = true
			}
			for i := 1; i < len(kept); i++ {
				edges = append(edges, SkeletonEdge{A: kept[i-1], B: kept[i]})
			}
		}
		g = &SkeletonGraph{Nodes: g.Nodes, Edges: dedupeEdges(edges)}
		if !changed {
			return g
		}
	}
	return g
}

// filterCollinear returns the chain's node sequence with straight-run
// interior nodes removed. Cycles keep at least three corners so a loop
// cannot collapse into a line.
func filterCollinear(g *SkeletonGraph, c graphChain, angleDeg float64) []int {
	if len(c.nodes) <= 2 {
		return c.nodes
	}
	closed := c.nodes[0] == c.nodes[len(c.nodes)-1]
	kept := []int{c.nodes[0]}
	for i := 1; i < len(c.nodes)-1; i++ {
		prev := g.Nodes[kept[len(kept)-1]].Pos
		cur := g.Nodes[c.nodes[i]].Pos
		next := g.Nodes[c.nodes[i+1]].Pos
		if turnAngle(prev, cur, next) > angleDeg {
			kept = append(kept, c.nodes[i])
		}
	}
	kept = append(kept, c.nodes[len(c.nodes)-1])
	if closed && len(kept) < 4 {
		return c.nodes
	}
	return kept
}

// turnAngle returns the absolute deviation in degrees from continuing
// straight through cur. Degenerate zero-length steps count as straight.
func turnAngle(prev, cur, next Point) float64 {
	ax, ay := cur.X-prev.X, cur.Y-prev.Y
	bx, by := next.X-cur.X, next.Y-cur.Y
	if math.Hypot(ax, ay) < 1e-12 || math.Hypot(bx, by) < 1e-12 {
		return 0
	}
	cross := ax*by - ay*bx
	dot := ax*bx + ay*by
	return math.Abs(math.Atan2(cross, dot)) * 180 / math.Pi
}

// normalizeGraph drops self-loops, duplicate edges, and unreferenced
// nodes, renumbers the remaining nodes by position (Y, then X), sorts
// edges, and recomputes node kinds from final degrees. Normalizing a
// normalized graph changes nothing.
func normalizeGraph(g *SkeletonGraph) *SkeletonGraph {
	edges := dedupeEdges(g.Edges)
	used := make([]bool, len(g.Nodes))
	for _, e := range edges {
		used[e.A] = true
		used[e.B] = true
	}

	order := make([]int, 0, len(g.Nodes))
	for i := range g.Nodes {
		if used[i] {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := g.Nodes[order[i]].Pos, g.Nodes[order[j]].Pos
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return order[i] < order[j]
	})

	remap := make([]int, len(g.Nodes))
	nodes := make([]SkeletonNode, len(order))
	for newID, oldID := range order {
		remap[oldID] = newID
		nodes[newID] = SkeletonNode{ID: newID, Pos: g.Nodes[oldID].Pos}
	}

	out := make([]SkeletonEdge, len(edges))
	for i, e := range edges {
		a, b := remap[e.A], remap[e.B]
		if a > b {
			a, b = b, a
		}
		out[i] = SkeletonEdge{A: a, B: b}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})

	result := &SkeletonGraph{Nodes: nodes, Edges: out}
	degrees := nodeDegrees(result)
	for i := range result.Nodes {
		switch {
		case degrees[i] <= 1:
			result.Nodes[i].Kind = NodeEndpoint
		case degrees[i] >= 3:
			result.Nodes[i].Kind = NodeJunction
		default:
			result.Nodes[i].Kind = NodeInterior
		}
	}
	return result
}

// dedupeEdges removes self-loops and duplicate edges regardless of
// endpoint order.
func dedupeEdges(edges []SkeletonEdge) []SkeletonEdge {
	seen := make(map[[2]int]bool, len(edges))
	out := make([]SkeletonEdge, 0, len(edges))
	for _, e := range edges {
		if e.A == e.B {
			continue
		}
		key := [2]int{e.A, e.B}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
