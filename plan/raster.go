package plan

import (
	"image"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/effect"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

const (
	// DefaultRasterSize is the default side length of the per-room grid.
	DefaultRasterSize = 256

	// MinInteriorPixels is the smallest rasterized interior worth
	// skeletonizing; rooms under it are degenerate.
	MinInteriorPixels = 16

	// minRegionCompactness rejects raster regions too ragged to be rooms
	// (isoperimetric quotient 4*pi*A/P^2).
	minRegionCompactness = 0.03

	// contourSimplifyPx is the Douglas-Peucker tolerance for traced
	// region contours, in grid pixels.
	contourSimplifyPx = 2.0

	// maxContourVertices caps the outline complexity of a raster region.
	maxContourVertices = 100
)

// Grid is a square binary raster tied to world space through an affine
// transform pair. Cell (x, y) covers the unit square centered on grid
// coordinate (x, y); ToWorld maps grid coordinates back to the drawing
// coordinate system.
type Grid struct {
	Size     int
	Cells    []bool
	ToWorld  AffineMatrix
	ToGrid   AffineMatrix
	CellSize float64 // world units per cell
}

// NewGrid allocates an empty grid with identity mapping.
func NewGrid(size int) *Grid {
	return &Grid{
		Size:     size,
		Cells:    make([]bool, size*size),
		ToWorld:  Identity(),
		ToGrid:   Identity(),
		CellSize: 1,
	}
}

// At reports whether the cell at (x, y) is set. Out-of-range cells read
// as unset.
func (g *Grid) At(x, y int) bool {
	if x < 0 || x >= g.Size || y < 0 || y >= g.Size {
		return false
	}
	return g.Cells[y*g.Size+x]
}

// Set writes the cell at (x, y), ignoring out-of-range coordinates.
func (g *Grid) Set(x, y int, v bool) {
	if x < 0 || x >= g.Size || y < 0 || y >= g.Size {
		return
	}
	g.Cells[y*g.Size+x] = v
}

// Clone returns a deep copy sharing no cell storage.
func (g *Grid) Clone() *Grid {
	cells := make([]bool, len(g.Cells))
	copy(cells, g.Cells)
	return &Grid{Size: g.Size, Cells: cells, ToWorld: g.ToWorld, ToGrid: g.ToGrid, CellSize: g.CellSize}
}

// CountSet returns the number of set cells.
func (g *Grid) CountSet() int {
	n := 0
	for _, c := range g.Cells {
		if c {
			n++
		}
	}
	return n
}

// WorldPoint maps a grid coordinate to world space.
func (g *Grid) WorldPoint(x, y float64) Point {
	return TransformPoint(Point{X: x, Y: y}, g.ToWorld)
}

// gridFit builds the world->grid transform that fits the given bounds
// into a size x size grid with pad cells of margin, preserving aspect
// ratio. Returns false when the bounds are degenerate.
func gridFit(min, max Point, size, pad int) (toGrid AffineMatrix, cellSize float64, ok bool) {
	w := max.X - min.X
	h := max.Y - min.Y
	maxDim := math.Max(w, h)
	usable := float64(size - 2*pad - 1)
	if maxDim < epsZero || usable <= 0 {
		return Identity(), 1, false
	}
	s := usable / maxDim
	toGrid = MultiplyMatrices(
		Translation(float64(pad), float64(pad)),
		MultiplyMatrices(Scale(s, s), Translation(-min.X, -min.Y)),
	)
	return toGrid, 1 / s, true
}

// RasterizePolygon fills a polygon interior onto a size x size grid with
// a one-cell empty border, using even-odd scanline filling. Returns nil
// when the outline or size cannot produce a meaningful raster.
func RasterizePolygon(outline []Point, size int) *Grid {
	if len(outline) < 3 || size < 8 {
		return nil
	}
	min, max, _ := OutlineBounds(outline)
	toGrid, cellSize, ok := gridFit(min, max, size, 1)
	if !ok {
		return nil
	}

	g := NewGrid(size)
	g.ToGrid = toGrid
	g.ToWorld = InvertMatrix(toGrid)
	g.CellSize = cellSize

	poly := TransformPoints(outline, toGrid)
	n := len(poly)
	var xs []float64
	for y := 0; y < size; y++ {
		fy := float64(y)
		xs = xs[:0]
		for i := 0; i < n; i++ {
			a, b := poly[i], poly[(i+1)%n]
			if (a.Y > fy) == (b.Y > fy) {
				continue
			}
			xs = append(xs, a.X+(fy-a.Y)/(b.Y-a.Y)*(b.X-a.X))
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := int(math.Ceil(xs[i])); x <= int(math.Floor(xs[i+1])); x++ {
				g.Set(x, y, true)
			}
		}
	}
	return g
}

// DistanceTransform returns the chamfer-3/4 distance from each set cell
// to the nearest unset cell, in cell units. Unset cells are zero.
func DistanceTransform(g *Grid) []float64 {
	size := g.Size
	const inf = math.MaxInt32
	dist := make([]int32, size*size)
	for i, set := range g.Cells {
		if set {
			dist[i] = inf
		}
	}

	at := func(x, y int) int32 {
		if x < 0 || x >= size || y < 0 || y >= size {
			return 0
		}
		return dist[y*size+x]
	}

	// Forward pass: N, W and the two upper diagonals.
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := y*size + x
			if dist[i] == 0 {
				continue
			}
			d := dist[i]
			if v := at(x-1, y) + 3; v < d {
				d = v
			}
			if v := at(x, y-1) + 3; v < d {
				d = v
			}
			if v := at(x-1, y-1) + 4; v < d {
				d = v
			}
			if v := at(x+1, y-1) + 4; v < d {
				d = v
			}
			dist[i] = d
		}
	}
	// Backward pass: S, E and the two lower diagonals.
	for y := size - 1; y >= 0; y-- {
		for x := size - 1; x >= 0; x-- {
			i := y*size + x
			if dist[i] == 0 {
				continue
			}
			d := dist[i]
			if v := at(x+1, y) + 3; v < d {
				d = v
			}
			if v := at(x, y+1) + 3; v < d {
				d = v
			}
			if v := at(x+1, y+1) + 4; v < d {
				d = v
			}
			if v := at(x-1, y+1) + 4; v < d {
				d = v
			}
			dist[i] = d
		}
	}

	out := make([]float64, size*size)
	for i, d := range dist {
		out[i] = float64(d) / 3.0
	}
	return out
}

// stampLine rasterizes a line onto the grid with Bresenham stepping.
func stampLine(g *Grid, a, b Point) {
	x0, y0 := int(math.Round(a.X)), int(math.Round(a.Y))
	x1, y1 := int(math.Round(b.X)), int(math.Round(b.Y))

	dx := int(math.Abs(float64(x1 - x0)))
	dy := -int(math.Abs(float64(y1 - y0)))
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		g.Set(x0, y0, true)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// closeMask applies a morphological close (dilate then erode) to bridge
// small gaps in a stamped wall mask.
func closeMask(g *Grid, radius float64) {
	if radius <= 0 {
		return
	}
	img := image.NewRGBA(image.Rect(0, 0, g.Size, g.Size))
	for y := 0; y < g.Size; y++ {
		for x := 0; x < g.Size; x++ {
			if g.At(x, y) {
				i := img.PixOffset(x, y)
				img.Pix[i] = 255
				img.Pix[i+1] = 255
				img.Pix[i+2] = 255
				img.Pix[i+3] = 255
			} else {
				img.Pix[img.PixOffset(x, y)+3] = 255
			}
		}
	}

	closed := effect.Erode(effect.Dilate(img, radius), radius)
	for y := 0; y < g.Size; y++ {
		for x := 0; x < g.Size; x++ {
			r, _, _, _ := closed.At(x, y).RGBA()
			g.Set(x, y, r>>8 > 127)
		}
	}
}

// floodRegion collects the 4-connected component of free cells seeded at
// (sx, sy), marking labels as it goes. Returns the member cell indices
// and whether the component touches the grid border.
func floodRegion(free *Grid, labels []int, label, sx, sy int) (cells []int, touchesBorder bool) {
	size := free.Size
	queue := []int{sy*size + sx}
	labels[sy*size+sx] = label

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		cells = append(cells, i)

		x, y := i%size, i/size
		if x == 0 || y == 0 || x == size-1 || y == size-1 {
			touchesBorder = true
		}
		for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
			nx, ny := n[0], n[1]
			if nx < 0 || nx >= size || ny < 0 || ny >= size {
				continue
			}
			j := ny*size + nx
			if labels[j] != 0 || !free.Cells[j] {
				continue
			}
			labels[j] = label
			queue = append(queue, j)
		}
	}
	return cells, touchesBorder
}

// BuildRegionsRaster extracts room polygons by stamping walls onto a
// size x size grid, closing small gaps morphologically, and labeling the
// enclosed free space. Components touching the grid border are outside
// the building and rejected, as are regions failing the area bounds,
// a compactness floor, or outline complexity limits. Discovery order is
// grid scan order.
func BuildRegionsRaster(segments []Segment, minArea, maxArea float64, size int) []RoomPolygon {
	if len(segments) == 0 {
		return nil
	}
	if size < 16 {
		size = DefaultRasterSize
	}
	min, max, _ := SegmentBounds(segments)
	toGrid, cellSize, ok := gridFit(min, max, size, 2)
	if !ok {
		return nil
	}
	if minArea <= 0 {
		minArea = epsZero
	}
	if maxArea <= 0 {
		maxArea = math.Inf(1)
	}

	walls := NewGrid(size)
	walls.ToGrid = toGrid
	walls.ToWorld = InvertMatrix(toGrid)
	walls.CellSize = cellSize
	for _, s := range segments {
		stampLine(walls, TransformPoint(s.Start, toGrid), TransformPoint(s.End, toGrid))
	}
	closeMask(walls, math.Max(1, float64(size)/128))

	free := walls.Clone()
	for i, wall := range walls.Cells {
		free.Cells[i] = !wall
	}

	labels := make([]int, size*size)
	nextLabel := 1
	var rooms []RoomPolygon
	for i, isFree := range free.Cells {
		if !isFree || labels[i] != 0 {
			continue
		}
		cells, touchesBorder := floodRegion(free, labels, nextLabel, i%size, i/size)
		nextLabel++
		if touchesBorder || len(cells) < MinInteriorPixels {
			continue
		}

		outline := regionOutline(free, cells)
		if len(outline) < 3 || len(outline) > maxContourVertices {
			continue
		}
		world := TransformPoints(outline, walls.ToWorld)
		if !IsCounterClockwise(world) {
			world = ReverseOutline(world)
		}
		area := PolygonArea(world)
		if area < minArea || area > maxArea {
			continue
		}
		if Compactness(world) < minRegionCompactness {
			continue
		}

		rooms = append(rooms, RoomPolygon{
			Index:     len(rooms),
			Outline:   world,
			Area:      area,
			Perimeter: PolygonPerimeter(world),
		})
	}
	return rooms
}

// regionOutline traces the outer contour of one labeled region and
// simplifies it in grid space.
func regionOutline(free *Grid, cells []int) []Point {
	mask := NewGrid(free.Size)
	first := -1
	for _, i := range cells {
		mask.Cells[i] = true
		if first == -1 || i < first {
			first = i
		}
	}
	if first == -1 {
		return nil
	}

	contour := traceMoore(mask, first%mask.Size, first/mask.Size)
	if len(contour) < 3 {
		return nil
	}

	ls := make(orb.LineString, len(contour))
	for i, p := range contour {
		ls[i] = orb.Point{p.X, p.Y}
	}
	simplified := simplify.DouglasPeucker(contourSimplifyPx).Simplify(ls.Clone())
	result, ok := simplified.(orb.LineString)
	if !ok {
		return contour
	}

	out := make([]Point, 0, len(result))
	for _, p := range result {
		out = append(out, Point{X: p[0], Y: p[1]})
	}
	// The trace closes on its start pixel; drop the duplicate.
	if len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

// traceMoore follows a region boundary from its scan-order first pixel
// using Moore-neighbor tracing with the left-hand rule. On this y-down
// grid the trace keeps the region on its right, so outer contours come
// out counter-clockwise in image space.
func traceMoore(mask *Grid, startX, startY int) []Point {
	dirs := [4][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}} // N, E, S, W

	var path []Point
	seen := make(map[VisitKey]bool)
	curX, curY := startX, startY
	facing := 3 // scan-order first pixel has an empty west neighbor

	for {
		key := VisitKey{Idx: curY*mask.Size + curX, Dir: facing}
		if seen[key] {
			if curX == startX && curY == startY && len(path) > 0 {
				path = append(path, Point{X: float64(curX), Y: float64(curY)})
			}
			break
		}
		seen[key] = true
		path = append(path, Point{X: float64(curX), Y: float64(curY)})

		// Left-hand rule: scan counter-clockwise starting one step left
		// of the current heading, so the boundary stays on the same side
		// throughout the walk.
		found := false
		for i := 0; i < 4; i++ {
			d := (facing + 1 + 8 - i) % 4
			nx, ny := curX+dirs[d][0], curY+dirs[d][1]
			if mask.At(nx, ny) {
				curX, curY = nx, ny
				facing = d
				found = true
				break
			}
		}
		if !found {
			break
		}
		if len(path) > 100000 {
			break
		}
	}
	return path
}

// VisitKey uniquely identifies an edge visit during contour tracing
type VisitKey struct {
	Idx int
	Dir int
}
