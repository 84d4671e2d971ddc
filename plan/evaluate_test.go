package plan

import (
	"math"
	"testing"
)

// squareRaster builds a fully set interior for evaluator tests.
func squareRaster(size int) *RoomRaster {
	interior := NewGrid(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			interior.Set(x, y, true)
		}
	}
	dt := DistanceTransform(interior)
	return &RoomRaster{Interior: interior, DT: dt, Ridge: ridgeMask(interior, dt)}
}

func barGraph(points ...Point) *SkeletonGraph {
	g := &SkeletonGraph{}
	for i, p := range points {
		g.Nodes = append(g.Nodes, SkeletonNode{ID: i, Pos: p})
	}
	for i := 1; i < len(points); i++ {
		g.Edges = append(g.Edges, SkeletonEdge{A: i - 1, B: i})
	}
	return g
}

func barMask(size, y, x0, x1 int) *Grid {
	m := NewGrid(size)
	for x := x0; x <= x1; x++ {
		m.Set(x, y, true)
	}
	return m
}

func TestSelectCandidatePrefersConnected(t *testing.T) {
	raster := squareRaster(32)

	// Fragmented: two separate stubs of the same centerline.
	fragMask := barMask(32, 16, 4, 10)
	for x := 20; x <= 27; x++ {
		fragMask.Set(x, 16, true)
	}
	frag := SkeletonCandidate{
		Strategy: StrategyRidge,
		Valid:    true,
		Mask:     fragMask,
		Graph: &SkeletonGraph{
			Nodes: []SkeletonNode{
				{ID: 0, Pos: Point{X: 4, Y: 16}}, {ID: 1, Pos: Point{X: 10, Y: 16}},
				{ID: 2, Pos: Point{X: 20, Y: 16}}, {ID: 3, Pos: Point{X: 27, Y: 16}},
			},
			Edges: []SkeletonEdge{{A: 0, B: 1}, {A: 2, B: 3}},
		},
	}

	// Connected: one unbroken bar covering at least as much ridge.
	whole := SkeletonCandidate{
		Strategy: StrategyThin,
		Valid:    true,
		Mask:     barMask(32, 16, 4, 27),
		Graph:    barGraph(Point{X: 4, Y: 16}, Point{X: 27, Y: 16}),
	}

	best, ok := SelectCandidate(raster, []SkeletonCandidate{frag, whole}, DefaultEvaluatorConfig())
	if !ok {
		t.Fatal("no winner")
	}
	if best != 1 {
		t.Errorf("connected candidate should win, got index %d", best)
	}
}

func TestSelectCandidateTieBreaksOnFewerNodes(t *testing.T) {
	raster := squareRaster(32)
	mask := barMask(32, 16, 4, 27)

	// Same centerline, same score; only the node count differs.
	dense := SkeletonCandidate{
		Strategy: StrategyThin,
		Valid:    true,
		Mask:     mask,
		Graph:    barGraph(Point{X: 4, Y: 16}, Point{X: 16, Y: 16}, Point{X: 27, Y: 16}),
	}
	sparse := SkeletonCandidate{
		Strategy: StrategyRidge,
		Valid:    true,
		Mask:     mask,
		Graph:    barGraph(Point{X: 4, Y: 16}, Point{X: 27, Y: 16}),
	}

	best, ok := SelectCandidate(raster, []SkeletonCandidate{dense, sparse}, DefaultEvaluatorConfig())
	if !ok {
		t.Fatal("no winner")
	}
	if best != 1 {
		t.Errorf("tie should prefer fewer nodes, got index %d", best)
	}

	// With the sparse graph first the tie keeps the earlier candidate.
	best, ok = SelectCandidate(raster, []SkeletonCandidate{sparse, dense}, DefaultEvaluatorConfig())
	if !ok || best != 0 {
		t.Errorf("tie should keep the earlier candidate, got index %d", best)
	}
}

func TestSelectCandidateSkipsInvalid(t *testing.T) {
	raster := squareRaster(32)
	bad := SkeletonCandidate{Strategy: StrategyThin, Valid: false}
	if _, ok := SelectCandidate(raster, []SkeletonCandidate{bad, bad}, DefaultEvaluatorConfig()); ok {
		t.Errorf("all-invalid candidates must not select a winner")
	}
}

func TestConnectivityFraction(t *testing.T) {
	g := &SkeletonGraph{
		Nodes: []SkeletonNode{
			{ID: 0, Pos: Point{X: 0, Y: 0}}, {ID: 1, Pos: Point{X: 30, Y: 0}},
			{ID: 2, Pos: Point{X: 0, Y: 5}}, {ID: 3, Pos: Point{X: 10, Y: 5}},
		},
		Edges: []SkeletonEdge{{A: 0, B: 1}, {A: 2, B: 3}},
	}
	if frac := connectivityFraction(g); math.Abs(frac-0.75) > 1e-9 {
		t.Errorf("connectivity: want 0.75, got %g", frac)
	}
	if frac := connectivityFraction(&SkeletonGraph{}); frac != 0 {
		t.Errorf("empty graph connectivity: want 0, got %g", frac)
	}
}

func TestDecomposeChainsStar(t *testing.T) {
	g := &SkeletonGraph{
		Nodes: []SkeletonNode{
			{ID: 0, Pos: Point{X: 0, Y: 0}},
			{ID: 1, Pos: Point{X: 10, Y: 0}},
			{ID: 2, Pos: Point{X: 0, Y: 10}},
			{ID: 3, Pos: Point{X: -10, Y: 0}},
		},
		Edges: []SkeletonEdge{{A: 0, B: 1}, {A: 0, B: 2}, {A: 0, B: 3}},
	}
	chains := decomposeChains(g)
	if len(chains) != 3 {
		t.Fatalf("want 3 chains, got %d", len(chains))
	}
	for i, c := range chains {
		if !c.leaf {
			t.Errorf("chain %d: every arm of a star ends in a leaf", i)
		}
		if math.Abs(c.length-10) > 1e-9 {
			t.Errorf("chain %d: want length 10, got %g", i, c.length)
		}
	}
}

func TestDecomposeChainsCycle(t *testing.T) {
	g := &SkeletonGraph{
		Nodes: []SkeletonNode{
			{ID: 0, Pos: Point{X: 0, Y: 0}},
			{ID: 1, Pos: Point{X: 10, Y: 0}},
			{ID: 2, Pos: Point{X: 10, Y: 10}},
			{ID: 3, Pos: Point{X: 0, Y: 10}},
		},
		Edges: []SkeletonEdge{{A: 0, B: 1}, {A: 1, B: 2}, {A: 2, B: 3}, {A: 3, B: 0}},
	}
	chains := decomposeChains(g)
	if len(chains) != 1 {
		t.Fatalf("want 1 chain for a pure cycle, got %d", len(chains))
	}
	c := chains[0]
	if c.leaf {
		t.Errorf("a cycle has no leaf end")
	}
	if c.nodes[0] != c.nodes[len(c.nodes)-1] {
		t.Errorf("cycle chain must close on itself: %v", c.nodes)
	}
	if math.Abs(c.length-40) > 1e-9 {
		t.Errorf("cycle length: want 40, got %g", c.length)
	}
}

func TestSpurDensity(t *testing.T) {
	// T shape: two long arms and one stub off the junction.
	g := &SkeletonGraph{
		Nodes: []SkeletonNode{
			{ID: 0, Pos: Point{X: 5, Y: 16}},
			{ID: 1, Pos: Point{X: 26, Y: 16}},
			{ID: 2, Pos: Point{X: 16, Y: 16}},
			{ID: 3, Pos: Point{X: 16, Y: 14}},
		},
		Edges: []SkeletonEdge{{A: 0, B: 2}, {A: 2, B: 1}, {A: 2, B: 3}},
	}
	if d := spurDensity(g, 4.8); math.Abs(d-1.0/3.0) > 1e-9 {
		t.Errorf("spur density: want 1/3, got %g", d)
	}
	if d := spurDensity(g, 1.0); d != 0 {
		t.Errorf("stub above threshold should not count, got %g", d)
	}
}
