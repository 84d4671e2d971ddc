package plan

import "math"

// EvaluatorConfig weighs the structural criteria used to rank skeleton
// candidates.
type EvaluatorConfig struct {
	ConnectivityWeight float64 // reward for the largest component's share of edge length
	CoverageWeight     float64 // reward for capturing the distance-transform ridge
	SpurWeight         float64 // penalty for short leaf branches
	SpurFraction       float64 // leaf chains below this fraction of the characteristic size are spurious
	CoverageRadius     float64 // grid distance within which a ridge pixel counts as captured
}

// DefaultEvaluatorConfig returns the standard weighting.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		ConnectivityWeight: 0.5,  // disconnected skeletons are penalized heavily
		CoverageWeight:     0.35, // missing ridge structure matters more than a few spurs
		SpurWeight:         0.15,
		SpurFraction:       0.15, // relative to sqrt(interior area) in pixels
		CoverageRadius:     2.0,
	}
}

// CandidateScore breaks a candidate's combined score into its criteria.
type CandidateScore struct {
	Connectivity float64 // largest connected component fraction of total edge length
	Coverage     float64 // ridge pixels captured within CoverageRadius
	SpurDensity  float64 // spurious leaf chains per chain
	Combined     float64
}

// EvaluateCandidate scores a single candidate against the room raster.
func EvaluateCandidate(raster *RoomRaster, cand *SkeletonCandidate, cfg EvaluatorConfig) CandidateScore {
	var score CandidateScore
	score.Connectivity = connectivityFraction(cand.Graph)
	score.Coverage = ridgeCoverage(raster, cand.Mask, cfg.CoverageRadius)
	score.SpurDensity = spurDensity(cand.Graph, cfg.SpurFraction*characteristicSize(raster))
	score.Combined = cfg.ConnectivityWeight*score.Connectivity +
		cfg.CoverageWeight*score.Coverage -
		cfg.SpurWeight*score.SpurDensity
	return score
}

// SelectCandidate scores every valid candidate and returns the index of
// the winner. Ties within epsilon prefer fewer nodes, then earlier
// strategy order. ok is false when no candidate is valid.
func SelectCandidate(raster *RoomRaster, candidates []SkeletonCandidate, cfg EvaluatorConfig) (int, bool) {
	const eps = 1e-9
	best := -1
	for i := range candidates {
		if !candidates[i].Valid {
			continue
		}
		candidates[i].Score = EvaluateCandidate(raster, &candidates[i], cfg).Combined
		if best < 0 {
			best = i
			continue
		}
		diff := candidates[i].Score - candidates[best].Score
		if diff > eps {
			best = i
		} else if math.Abs(diff) <= eps && len(candidates[i].Graph.Nodes) < len(candidates[best].Graph.Nodes) {
			best = i
		}
	}
	return best, best >= 0
}

// characteristicSize is the side length of a square with the room's
// interior pixel area.
func characteristicSize(raster *RoomRaster) float64 {
	return math.Sqrt(float64(raster.Interior.CountSet()))
}

// connectivityFraction returns the share of total edge length held by
// the largest connected component. A graph without edges scores zero.
func connectivityFraction(g *SkeletonGraph) float64 {
	if len(g.Edges) == 0 {
		return 0
	}
	uf := newUnionFind(len(g.Nodes))
	for _, e := range g.Edges {
		uf.union(e.A, e.B)
	}

	total := 0.0
	byRoot := make(map[int]float64)
	for _, e := range g.Edges {
		length := Distance(g.Nodes[e.A].Pos, g.Nodes[e.B].Pos)
		total += length
		byRoot[uf.find(e.A)] += length
	}
	if total == 0 {
		return 0
	}
	largest := 0.0
	for _, length := range byRoot {
		if length > largest {
			largest = length
		}
	}
	return largest / total
}

// ridgeCoverage returns the fraction of ridge pixels lying within radius
// of any skeleton pixel.
func ridgeCoverage(raster *RoomRaster, mask *Grid, radius float64) float64 {
	if radius <= 0 {
		radius = 1
	}
	r := int(math.Ceil(radius))
	r2 := radius * radius
	size := raster.Ridge.Size

	ridgeTotal, captured := 0, 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if !raster.Ridge.At(x, y) {
				continue
			}
			ridgeTotal++
		window:
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					if float64(dx*dx+dy*dy) > r2 {
						continue
					}
					if mask.At(x+dx, y+dy) {
						captured++
						break window
					}
				}
			}
		}
	}
	if ridgeTotal == 0 {
		return 0
	}
	return float64(captured) / float64(ridgeTotal)
}

// graphChain is one maximal path between nodes of degree != 2. A pure
// cycle is a single chain whose first and last node coincide.
type graphChain struct {
	nodes  []int // node IDs in walk order
	edges  []int // edge indices in walk order
	length float64
	leaf   bool // at least one end has degree <= 1
}

// spurDensity returns the fraction of graph chains that are short leaf
// branches. minLength is the threshold below which a leaf chain counts
// as spurious.
func spurDensity(g *SkeletonGraph, minLength float64) float64 {
	chains := decomposeChains(g)
	if len(chains) == 0 {
		return 0
	}
	spurs := 0
	for _, c := range chains {
		if c.leaf && c.length < minLength {
			spurs++
		}
	}
	return float64(spurs) / float64(len(chains))
}

// decomposeChains splits a graph into maximal chains through degree-2
// nodes. Pure cycles count as one non-leaf chain.
func decomposeChains(g *SkeletonGraph) []graphChain {
	degrees := nodeDegrees(g)
	adjacency := buildAdjacency(g)

	visited := make([]bool, len(g.Edges))
	var chains []graphChain

	walk := func(nodeID, edgeIdx int) graphChain {
		chain := graphChain{
			nodes: []int{nodeID},
			leaf:  degrees[nodeID] <= 1,
		}
		cur, via := nodeID, edgeIdx
		for {
			visited[via] = true
			e := g.Edges[via]
			next := e.B
			if next == cur {
				next = e.A
			}
			chain.nodes = append(chain.nodes, next)
			chain.edges = append(chain.edges, via)
			chain.length += Distance(g.Nodes[cur].Pos, g.Nodes[next].Pos)
			if degrees[next] != 2 || next == nodeID {
				if degrees[next] <= 1 {
					chain.leaf = true
				}
				return chain
			}
			found := -1
			for _, idx := range adjacency[next] {
				if !visited[idx] {
					found = idx
					break
				}
			}
			if found < 0 {
				return chain
			}
			cur, via = next, found
		}
	}

	for id := range g.Nodes {
		if degrees[id] == 2 {
			continue
		}
		for _, idx := range adjacency[id] {
			if !visited[idx] {
				chains = append(chains, walk(id, idx))
			}
		}
	}
	// Remaining unvisited edges belong to pure cycles.
	for idx := range g.Edges {
		if !visited[idx] {
			chains = append(chains, walk(g.Edges[idx].A, idx))
		}
	}
	return chains
}

func nodeDegrees(g *SkeletonGraph) []int {
	degrees := make([]int, len(g.Nodes))
	for _, e := range g.Edges {
		degrees[e.A]++
		degrees[e.B]++
	}
	return degrees
}

func buildAdjacency(g *SkeletonGraph) [][]int {
	adjacency := make([][]int, len(g.Nodes))
	for i, e := range g.Edges {
		adjacency[e.A] = append(adjacency[e.A], i)
		adjacency[e.B] = append(adjacency[e.B], i)
	}
	return adjacency
}
