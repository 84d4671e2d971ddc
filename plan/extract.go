package plan

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// RegionMode selects how room regions are recovered from the repaired
// walls.
type RegionMode string

const (
	// RegionAuto tries the arrangement first and falls back to raster
	// regions when the arrangement finds nothing.
	RegionAuto RegionMode = "auto"
	// RegionArrangement uses only the exact planar arrangement.
	RegionArrangement RegionMode = "arrangement"
	// RegionRaster uses only raster flood-fill regions.
	RegionRaster RegionMode = "raster"
)

// ParseRegionMode validates a region mode string. An empty string
// means RegionAuto.
func ParseRegionMode(s string) (RegionMode, error) {
	switch RegionMode(s) {
	case "":
		return RegionAuto, nil
	case RegionAuto, RegionArrangement, RegionRaster:
		return RegionMode(s), nil
	default:
		return "", fmt.Errorf("unknown region mode %q", s)
	}
}

// ExtractOptions controls the full extraction pipeline.
type ExtractOptions struct {
	MinArea       float64            // world units squared; <= 0 derives from the drawing bounds
	MaxArea       float64            // world units squared; <= 0 derives from the drawing bounds
	RasterSize    int                // per-room raster resolution in pixels
	SnapTolerance float64            // endpoint snap distance; <= 0 derives from the drawing bounds
	Workers       int                // concurrent rooms; <= 0 uses the default
	Strategies    []SkeletonStrategy // empty uses DefaultStrategies
	RegionMode    RegionMode
	Evaluator     EvaluatorConfig
	Optimizer     OptimizerConfig

	// MinSkeletonArea marks rooms below this area (world units squared)
	// as degenerate without attempting a skeleton. Rooms are rasterized
	// to a normalized per-room grid, so a world-space floor is the only
	// way to call a room too small to mean anything. <= 0 derives
	// 4x the resolved MinArea.
	MinSkeletonArea float64
}

// DefaultExtractOptions returns the standard pipeline settings.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		MinArea:         0, // auto: 0.1% of the drawing bounds area
		MaxArea:         0, // auto: the full drawing bounds area
		RasterSize:      DefaultRasterSize,
		SnapTolerance:   0, // auto: bounds diagonal / 1000
		Workers:         4,
		Strategies:      DefaultStrategies(),
		RegionMode:      RegionAuto,
		Evaluator:       DefaultEvaluatorConfig(),
		Optimizer:       DefaultOptimizerConfig(),
		MinSkeletonArea: 0, // auto: 4x the resolved MinArea
	}
}

// ExtractResult carries the assembled room records plus drawing-level
// warnings that did not stop the pipeline.
type ExtractResult struct {
	Rooms    []RoomRecord `json:"rooms"`
	Warnings []string     `json:"warnings,omitempty"`
}

// ExtractRooms runs the full pipeline: segment repair, region
// recovery, and per-room skeleton extraction.
func ExtractRooms(segments []Segment, opts ExtractOptions) (ExtractResult, error) {
	return ExtractRoomsWithContext(context.Background(), segments, opts)
}

// ExtractRoomsWithContext is ExtractRooms with cancellation. Rooms are
// processed concurrently but each room runs to completion; cancellation
// takes effect between rooms, and rooms finished before the cancel are
// still returned alongside the context error.
func ExtractRoomsWithContext(ctx context.Context, segments []Segment, opts ExtractOptions) (ExtractResult, error) {
	var result ExtractResult
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if len(segments) == 0 {
		return result, fmt.Errorf("no input segments")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultExtractOptions().Workers
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	size := opts.RasterSize
	if size <= 0 {
		size = DefaultRasterSize
	}

	repair := RepairSegments(segments, opts.SnapTolerance)
	// Region building works on walls plus opening bridges: a door
	// interrupts the wall line but still bounds the rooms on either
	// side, so faces must close across the excised spans.
	boundary := repair.Boundary()
	if len(boundary) == 0 {
		result.Warnings = append(result.Warnings, "no wall segments after repair")
		return result, nil
	}
	minArea, maxArea := resolveAreaBounds(boundary, opts.MinArea, opts.MaxArea)
	minSkeletonArea := opts.MinSkeletonArea
	if minSkeletonArea <= 0 {
		minSkeletonArea = 4 * minArea
	}

	rooms := buildRegionsForMode(boundary, minArea, maxArea, size, opts.RegionMode, &result.Warnings)
	if len(rooms) == 0 {
		result.Warnings = append(result.Warnings, "no rooms detected")
		return result, nil
	}

	records := make([]*RoomRecord, len(rooms))
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for i := range rooms {
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return err
			}
			record := processRoom(rooms[i], size, minSkeletonArea, strategies, opts.Evaluator, opts.Optimizer)
			records[i] = &record
			return nil
		})
	}
	err := grp.Wait()

	unrasterized := 0
	for _, record := range records {
		if record != nil {
			result.Rooms = append(result.Rooms, *record)
			if record.Diagnostic == diagTooSmallToRasterize {
				unrasterized++
			}
		}
	}
	if unrasterized > 0 && unrasterized == len(result.Rooms) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("raster size %d too small for any room", size))
	}
	return result, err
}

// buildRegionsForMode recovers room polygons using the requested mode,
// recording a warning when auto mode falls back to raster regions.
func buildRegionsForMode(segments []Segment, minArea, maxArea float64, size int, mode RegionMode, warnings *[]string) []RoomPolygon {
	switch mode {
	case RegionArrangement:
		return BuildRegions(segments, minArea, maxArea)
	case RegionRaster:
		return BuildRegionsRaster(segments, minArea, maxArea, size)
	default:
		rooms := BuildRegions(segments, minArea, maxArea)
		if len(rooms) == 0 {
			*warnings = append(*warnings, "arrangement found no rooms; using raster regions")
			rooms = BuildRegionsRaster(segments, minArea, maxArea, size)
		}
		return rooms
	}
}

// resolveAreaBounds fills in automatic area limits from the drawing
// bounds: 0.1% of the bounding box area as the floor, the whole box
// (with a float margin) as the ceiling. A single-room drawing fills its
// own bounding box exactly, so the automatic ceiling must not cut it.
func resolveAreaBounds(segments []Segment, minArea, maxArea float64) (float64, float64) {
	if minArea > 0 && maxArea > 0 {
		return minArea, maxArea
	}
	min, max, ok := SegmentBounds(segments)
	bboxArea := 0.0
	if ok {
		bboxArea = (max.X - min.X) * (max.Y - min.Y)
	}
	if minArea <= 0 {
		minArea = bboxArea * 0.001
	}
	if maxArea <= 0 && bboxArea > 0 {
		maxArea = bboxArea * 1.001
	}
	return minArea, maxArea
}

const diagTooSmallToRasterize = "room too small to rasterize"

// processRoom runs candidate generation, selection, and optimization
// for one room. It always returns a usable record: pipeline problems
// downgrade the status instead of propagating errors.
func processRoom(room RoomPolygon, size int, minSkeletonArea float64, strategies []SkeletonStrategy, evalCfg EvaluatorConfig, optCfg OptimizerConfig) RoomRecord {
	record := RoomRecord{
		Index:     room.Index,
		Polygon:   room.Outline,
		Area:      room.Area,
		Perimeter: room.Perimeter,
		Status:    StatusOK,
	}

	if room.Area < minSkeletonArea {
		record.Status = StatusDegenerate
		record.Diagnostic = "room below skeletonization threshold"
		return record
	}

	raster, candidates := GenerateCandidates(room.Outline, size, strategies)
	if raster == nil {
		record.Status = StatusDegenerate
		record.Diagnostic = diagTooSmallToRasterize
		return record
	}

	best, ok := SelectCandidate(raster, candidates, evalCfg)
	if !ok {
		record.Status = StatusFailed
		record.Diagnostic = candidateFailures(candidates)
		return record
	}

	optCfg.RadiusAt = raster.RadiusAt
	optimized := OptimizeGraph(candidates[best].Graph, optCfg)
	if len(optimized.Graph.Edges) == 0 {
		record.Status = StatusDegenerate
		record.Diagnostic = "skeleton vanished during optimization"
		return record
	}

	record.Skeleton = graphToWorld(optimized.Graph, raster.Interior.ToWorld)
	if optimized.Degenerate {
		record.Status = StatusDegenerate
		record.Diagnostic = optimized.Diagnostic
	}
	return record
}

// candidateFailures joins per-strategy diagnostics into one message.
func candidateFailures(candidates []SkeletonCandidate) string {
	if len(candidates) == 0 {
		return "no skeleton strategies configured"
	}
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Strategy, c.Diagnostic))
	}
	return strings.Join(parts, "; ")
}

// graphToWorld maps a grid-space skeleton through the raster's
// grid-to-world transform.
func graphToWorld(g *SkeletonGraph, toWorld AffineMatrix) *SkeletonGraph {
	out := &SkeletonGraph{
		Nodes: make([]SkeletonNode, len(g.Nodes)),
		Edges: make([]SkeletonEdge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = SkeletonNode{ID: n.ID, Kind: n.Kind, Pos: TransformPoint(n.Pos, toWorld)}
	}
	copy(out.Edges, g.Edges)
	return out
}
