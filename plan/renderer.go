package plan

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultOverviewSize is the target long edge of an auto-scaled overview.
	DefaultOverviewSize = 1024

	// maxOverviewSize caps the rendered image dimensions.
	maxOverviewSize = 4000

	// roomFillAlpha is the alpha for semi-transparent room fills.
	roomFillAlpha = 150

	// maxLegendRows limits the room legend; crowded plans get a summary row.
	maxLegendRows = 12
)

// Greyscale colors for the structural elements
var (
	OverviewBG     = color.NRGBA{240, 240, 240, 255}
	OverviewWall   = color.NRGBA{60, 60, 60, 255}
	OverviewDoor   = color.NRGBA{184, 134, 11, 255} // Dark goldenrod
	OverviewWindow = color.NRGBA{70, 130, 180, 255} // Steel blue
)

// RoomPalette returns n visually distinct fill colors for room polygons.
func RoomPalette(n int) []color.NRGBA {
	if n <= 0 {
		return nil
	}
	palette := colorful.FastHappyPalette(n)
	out := make([]color.NRGBA, n)
	for i, c := range palette {
		r, g, b := c.RGB255()
		out[i] = color.NRGBA{r, g, b, roomFillAlpha}
	}
	return out
}

// ParseHexColor parses a hex color string like "#FF6B6B"
// Returns crimson if parsing fails
func ParseHexColor(hex string) color.NRGBA {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{220, 20, 60, 255}
	}
	r, g, b := c.RGB255()
	return color.NRGBA{r, g, b, 255}
}

// darken halves a color's channels for skeleton strokes over room fills.
func darken(c color.NRGBA) color.NRGBA {
	return color.NRGBA{c.R / 2, c.G / 2, c.B / 2, 255}
}

// OverviewRenderer renders a drawing's walls, extracted rooms and skeletons
// into a single raster image
type OverviewRenderer struct {
	Drawing *Drawing
	State   *DrawingState
	Scale   float64 // Pixels per drawing unit; <= 0 fits DefaultOverviewSize
	Padding int     // Padding around the image
}

// NewOverviewRenderer creates a renderer with default settings
func NewOverviewRenderer(drawing *Drawing, state *DrawingState) *OverviewRenderer {
	return &OverviewRenderer{
		Drawing: drawing,
		State:   state,
		Scale:   0, // Auto-fit
		Padding: 30,
	}
}

// HasDrawableContent returns true if there are segments or rooms to draw.
func (r *OverviewRenderer) HasDrawableContent() bool {
	if r.Drawing != nil && len(r.Drawing.Segments) > 0 {
		return true
	}
	return r.State != nil && len(r.State.Rooms) > 0
}

// CalculateBounds computes the bounding box of segments and room outlines
func (r *OverviewRenderer) CalculateBounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY = -math.MaxFloat64, -math.MaxFloat64

	expand := func(p Point) {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	if r.Drawing != nil {
		if min, max, ok := SegmentBounds(r.Drawing.Segments); ok {
			expand(min)
			expand(max)
		}
	}
	if r.State != nil {
		for _, room := range r.State.Rooms {
			for _, p := range room.Polygon {
				expand(p)
			}
		}
	}

	return
}

// Render creates the overview image
func (r *OverviewRenderer) Render() *image.RGBA {
	minX, minY, maxX, maxY := r.CalculateBounds()

	extentX := maxX - minX
	extentY := maxY - minY

	scale := r.Scale
	if scale <= 0 {
		// Fit the longer edge to the default size
		longest := math.Max(extentX, extentY)
		if longest > 0 {
			scale = float64(DefaultOverviewSize-2*r.Padding) / longest
		} else {
			scale = 1.0
		}
	}

	width := int(extentX*scale) + 2*r.Padding
	height := int(extentY*scale) + 2*r.Padding

	// Limit size
	if width > maxOverviewSize {
		scale *= float64(maxOverviewSize) / float64(width)
		width = maxOverviewSize
		height = int(extentY*scale) + 2*r.Padding
	}
	if height > maxOverviewSize {
		scale *= float64(maxOverviewSize) / float64(height)
		height = maxOverviewSize
		width = int(extentX*scale) + 2*r.Padding
	}

	// If bounds are invalid (e.g., no content), ensure positive dimensions
	if width <= 0 || height <= 0 {
		minSize := 1
		if 2*r.Padding+1 > minSize {
			minSize = 2*r.Padding + 1
		}
		if width <= 0 {
			width = minSize
		}
		if height <= 0 {
			height = minSize
		}
	}

	// Create image with light background
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, OverviewBG)
		}
	}

	// Helper to convert drawing coords to image coords
	toImage := func(p Point) (float64, float64) {
		x := (p.X-minX)*scale + float64(r.Padding)
		y := (p.Y-minY)*scale + float64(r.Padding)
		return x, y
	}

	// First pass: room fills (semi-transparent)
	if r.State != nil {
		palette := RoomPalette(len(r.State.Rooms))
		for i, room := range r.State.Rooms {
			fillPolygon(img, room.Polygon, toImage, palette[i])
		}
	}

	// Second pass: segments (opaque); walls over openings
	if r.Drawing != nil {
		for _, s := range r.Drawing.Segments {
			if s.Kind == KindWall {
				continue
			}
			c := OverviewDoor
			if s.Kind == KindWindow {
				c = OverviewWindow
			}
			x0, y0 := toImage(s.Start)
			x1, y1 := toImage(s.End)
			drawThickLine(img, x0, y0, x1, y1, 1, c)
		}
		for _, s := range r.Drawing.Segments {
			if s.Kind != KindWall {
				continue
			}
			x0, y0 := toImage(s.Start)
			x1, y1 := toImage(s.End)
			drawThickLine(img, x0, y0, x1, y1, 1, OverviewWall)
		}
	}

	// Third pass: skeleton overlay per room
	if r.State != nil {
		palette := RoomPalette(len(r.State.Rooms))
		for i, room := range r.State.Rooms {
			if room.Skeleton == nil {
				continue
			}
			c := darken(palette[i])
			for _, e := range room.Skeleton.Edges {
				a := room.Skeleton.Nodes[e.A].Pos
				b := room.Skeleton.Nodes[e.B].Pos
				x0, y0 := toImage(a)
				x1, y1 := toImage(b)
				drawThickLine(img, x0, y0, x1, y1, 1, c)
			}
			for _, n := range room.Skeleton.Nodes {
				x, y := toImage(n.Pos)
				switch n.Kind {
				case NodeJunction:
					drawCircle(img, int(x), int(y), 3, c)
				case NodeEndpoint:
					drawSquare(img, int(x), int(y), 4, c)
				}
			}
		}
	}

	// Add legend
	r.drawLegend(img)

	return img
}

// SavePNG saves the overview image to a file
func (r *OverviewRenderer) SavePNG(path string) error {
	img := r.Render()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}

// drawLegend adds a room legend with color swatches to the image
func (r *OverviewRenderer) drawLegend(img *image.RGBA) {
	if r.State == nil || len(r.State.Rooms) == 0 {
		return
	}

	palette := RoomPalette(len(r.State.Rooms))
	rows := len(r.State.Rooms)
	if rows > maxLegendRows {
		rows = maxLegendRows
	}

	// Legend in top-left corner
	y := 15
	for i := 0; i < rows; i++ {
		room := r.State.Rooms[i]

		// Draw color swatch (12x12 square)
		swatch := color.NRGBA{palette[i].R, palette[i].G, palette[i].B, 255}
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-6, swatch)
			}
		}

		label := fmt.Sprintf("room %d  %.1f", room.Index, room.Area)
		if room.Status != StatusOK {
			label += fmt.Sprintf(" (%s)", room.Status)
		}
		drawText(img, 28, y, label, color.RGBA{0, 0, 0, 255})

		y += 18
	}

	if len(r.State.Rooms) > rows {
		drawText(img, 28, y, fmt.Sprintf("+%d more", len(r.State.Rooms)-rows), color.RGBA{0, 0, 0, 255})
	}
}

// DumpRoomMasks writes each room's rasterized interior mask as a PNG plus a
// small preview, for debugging skeleton input. Returns the written paths.
func DumpRoomMasks(state *DrawingState, dir string, size int) ([]string, error) {
	if state == nil || len(state.Rooms) == 0 {
		return nil, nil
	}
	if size <= 0 {
		size = DefaultRasterSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating mask dir: %w", err)
	}

	var paths []string
	for _, room := range state.Rooms {
		grid := RasterizePolygon(room.Polygon, size)
		if grid == nil {
			continue
		}

		img := image.NewNRGBA(image.Rect(0, 0, grid.Size, grid.Size))
		for y := 0; y < grid.Size; y++ {
			for x := 0; x < grid.Size; x++ {
				if grid.At(x, y) {
					img.Set(x, y, color.NRGBA{255, 255, 255, 255})
				} else {
					img.Set(x, y, color.NRGBA{30, 30, 30, 255})
				}
			}
		}

		path := filepath.Join(dir, fmt.Sprintf("room-%03d.png", room.Index))
		if err := imaging.Save(img, path); err != nil {
			return paths, fmt.Errorf("saving mask for room %d: %w", room.Index, err)
		}
		paths = append(paths, path)

		preview := imaging.Resize(img, 128, 0, imaging.Lanczos)
		previewPath := filepath.Join(dir, fmt.Sprintf("room-%03d-preview.png", room.Index))
		if err := imaging.Save(preview, previewPath); err != nil {
			return paths, fmt.Errorf("saving preview for room %d: %w", room.Index, err)
		}
		paths = append(paths, previewPath)
	}

	sort.Strings(paths)
	return paths, nil
}

// blendColors performs alpha blending of two colors
func blendColors(bg color.RGBA, fg color.NRGBA) color.NRGBA {
	// RGBA is premultiplied; un-premultiply before blending
	var bgNRGBA color.NRGBA
	switch bg.A {
	case 0:
		bgNRGBA = color.NRGBA{0, 0, 0, 0}
	case 255:
		bgNRGBA = color.NRGBA{bg.R, bg.G, bg.B, 255}
	default:
		alpha32 := uint32(bg.A)
		bgNRGBA = color.NRGBA{
			R: uint8((uint32(bg.R) * 255) / alpha32),
			G: uint8((uint32(bg.G) * 255) / alpha32),
			B: uint8((uint32(bg.B) * 255) / alpha32),
			A: bg.A,
		}
	}

	alpha := float64(fg.A) / 255.0
	invAlpha := 1.0 - alpha

	return color.NRGBA{
		R: uint8(float64(fg.R)*alpha + float64(bgNRGBA.R)*invAlpha),
		G: uint8(float64(fg.G)*alpha + float64(bgNRGBA.G)*invAlpha),
		B: uint8(float64(fg.B)*alpha + float64(bgNRGBA.B)*invAlpha),
		A: 255,
	}
}

// fillPolygon fills a polygon using even-odd scanline in image space
func fillPolygon(img *image.RGBA, outline []Point, toImage func(Point) (float64, float64), c color.NRGBA) {
	if len(outline) < 3 {
		return
	}

	// Project outline into image space
	xs := make([]float64, len(outline))
	ys := make([]float64, len(outline))
	minY, maxY := math.MaxFloat64, -math.MaxFloat64
	for i, p := range outline {
		xs[i], ys[i] = toImage(p)
		if ys[i] < minY {
			minY = ys[i]
		}
		if ys[i] > maxY {
			maxY = ys[i]
		}
	}

	bounds := img.Bounds()
	y0 := int(math.Ceil(minY))
	y1 := int(math.Floor(maxY))
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if y1 >= bounds.Max.Y {
		y1 = bounds.Max.Y - 1
	}

	n := len(outline)
	for y := y0; y <= y1; y++ {
		fy := float64(y) + 0.5

		// Collect crossings of this scanline with polygon edges
		var crossings []float64
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			ay, by := ys[i], ys[j]
			if (ay <= fy && by > fy) || (by <= fy && ay > fy) {
				t := (fy - ay) / (by - ay)
				crossings = append(crossings, xs[i]+t*(xs[j]-xs[i]))
			}
		}
		sort.Float64s(crossings)

		// Fill between crossing pairs
		for i := 0; i+1 < len(crossings); i += 2 {
			x0 := int(math.Ceil(crossings[i]))
			x1 := int(math.Floor(crossings[i+1]))
			if x0 < bounds.Min.X {
				x0 = bounds.Min.X
			}
			if x1 >= bounds.Max.X {
				x1 = bounds.Max.X - 1
			}
			for x := x0; x <= x1; x++ {
				existing := img.RGBAAt(x, y)
				img.Set(x, y, blendColors(existing, c))
			}
		}
	}
}

// drawThickLine draws a line between image-space points with the given
// half-thickness in pixels
func drawThickLine(img *image.RGBA, x0, y0, x1, y1 float64, thickness int, c color.NRGBA) {
	length := math.Hypot(x1-x0, y1-y0)
	steps := int(length*2) + 1

	bounds := img.Bounds()
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		cx := int(x0 + t*(x1-x0))
		cy := int(y0 + t*(y1-y0))
		for dy := -thickness; dy <= thickness; dy++ {
			for dx := -thickness; dx <= thickness; dx++ {
				px, py := cx+dx, cy+dy
				if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
					img.Set(px, py, c)
				}
			}
		}
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.NRGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.NRGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := cx+dx, cy+dy
			if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
				img.Set(x, y, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
