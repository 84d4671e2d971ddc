package plan

import (
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// Stroke widths and marker sizes in drawing units (meters for typical plans)
const (
	wallStrokeWidth     = 0.08
	openingStrokeWidth  = 0.05
	skeletonStrokeWidth = 0.05
	gridStrokeWidth     = 0.02
	junctionRadius      = 0.09
	endpointSide        = 0.14
)

// snapCoord rounds a coordinate to the nearest multiple of the given increment.
// An increment of 0 disables snapping and returns the coordinate unchanged.
func snapCoord(coord, increment float64) float64 {
	if increment <= 0 {
		return coord
	}
	return math.Round(coord/increment) * increment
}

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	// Premultiply: multiply RGB by alpha
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// VectorOverview renders a drawing's walls, rooms and skeletons as vector
// graphics (SVG or rasterized PNG)
type VectorOverview struct {
	Drawing       *Drawing
	State         *DrawingState
	Padding       float64           // Padding in drawing units
	Resolution    canvas.Resolution // Resolution for PNG output
	GridSpacing   float64           // Grid line spacing in drawing units; 0 disables
	SnapIncrement float64           // Snap coordinates to this increment; 0 disables
}

// NewVectorOverview creates a vector renderer with default settings
func NewVectorOverview(drawing *Drawing, state *DrawingState) *VectorOverview {
	return &VectorOverview{
		Drawing:       drawing,
		State:         state,
		Padding:       1.0,             // One drawing unit of margin
		Resolution:    canvas.DPMM(50), // 50 px per drawing unit for PNG output
		GridSpacing:   1.0,
		SnapIncrement: 0.01,
	}
}

// ApplyRenderConfig overrides defaults from the service configuration.
func (r *VectorOverview) ApplyRenderConfig(rc RenderConfig) {
	if rc.GridSpacing > 0 {
		r.GridSpacing = rc.GridSpacing
	}
	if rc.VectorResolution > 0 {
		r.Resolution = canvas.DPMM(rc.VectorResolution)
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the overview as an SVG to the provided writer
func (r *VectorOverview) RenderToSVG(w io.Writer) error {
	minX, minY, maxX, maxY := r.calculateWorldBounds()

	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)

	r.renderToCanvas(svgRenderer, minX, minY, maxX, maxY, width, height)

	// Close writes the trailing SVG tags
	return svgRenderer.Close()
}

// RenderToPNG writes the overview as a PNG to the provided writer
func (r *VectorOverview) RenderToPNG(w io.Writer) error {
	minX, minY, maxX, maxY := r.calculateWorldBounds()

	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)

	r.renderToCanvas(rast, minX, minY, maxX, maxY, width, height)

	// Rasterizer implements draw.Image, which embeds image.Image
	return png.Encode(w, rast)
}

// SaveSVG renders the overview into an SVG file
func (r *VectorOverview) SaveSVG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return r.RenderToSVG(f)
}

// SavePNG renders the overview into a PNG file
func (r *VectorOverview) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return r.RenderToPNG(f)
}

// renderToCanvas renders the drawing to a canvas renderer (shared logic for SVG and PNG)
func (r *VectorOverview) renderToCanvas(renderer canvasRenderer, minX, minY, maxX, maxY, width, height float64) {
	// Draw white background
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// Helper to transform drawing points to canvas points
	toCanvas := func(p Point) (float64, float64) {
		tx := snapCoord(p.X, r.SnapIncrement) - minX + r.Padding
		ty := snapCoord(p.Y, r.SnapIncrement) - minY + r.Padding
		return tx, ty
	}

	// Render room fills first
	var palette []color.NRGBA
	if r.State != nil {
		palette = RoomPalette(len(r.State.Rooms))
		for i, room := range r.State.Rooms {
			if len(room.Polygon) < 3 {
				continue
			}

			fillStyle := canvas.DefaultStyle
			fillStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(palette[i])}
			fillStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

			cp := &canvas.Path{}
			for j, pt := range room.Polygon {
				cx, cy := toCanvas(pt)
				if j == 0 {
					cp.MoveTo(cx, cy)
				} else {
					cp.LineTo(cx, cy)
				}
			}
			cp.Close()
			renderer.RenderPath(cp, fillStyle, canvas.Identity)
		}
	}

	// Render grid lines over the fills so they stay visible
	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = gridStrokeWidth
		gridStyle.Dashes = []float64{0.2, 0.2}

		// Vertical grid lines
		for x := math.Floor(minX/r.GridSpacing) * r.GridSpacing; x <= maxX; x += r.GridSpacing {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(Point{X: x, Y: minY})
			x2, y2 := toCanvas(Point{X: x, Y: maxY})
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}

		// Horizontal grid lines
		for y := math.Floor(minY/r.GridSpacing) * r.GridSpacing; y <= maxY; y += r.GridSpacing {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(Point{X: minX, Y: y})
			x2, y2 := toCanvas(Point{X: maxX, Y: y})
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	// Render segments (stroked); openings first so walls draw over shared joints
	if r.Drawing != nil {
		doorStyle := canvas.DefaultStyle
		doorStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		doorStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(OverviewDoor)}
		doorStyle.StrokeWidth = openingStrokeWidth

		windowStyle := doorStyle
		windowStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(OverviewWindow)}

		wallStyle := canvas.DefaultStyle
		wallStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		wallStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(OverviewWall)}
		wallStyle.StrokeWidth = wallStrokeWidth

		for _, pass := range []SegmentKind{KindDoor, KindWindow, KindWall} {
			style := wallStyle
			switch pass {
			case KindDoor:
				style = doorStyle
			case KindWindow:
				style = windowStyle
			}
			for _, s := range r.Drawing.Segments {
				if s.Kind != pass {
					continue
				}
				cp := &canvas.Path{}
				x0, y0 := toCanvas(s.Start)
				x1, y1 := toCanvas(s.End)
				cp.MoveTo(x0, y0)
				cp.LineTo(x1, y1)
				renderer.RenderPath(cp, style, canvas.Identity)
			}
		}
	}

	// Render skeleton overlays
	if r.State != nil {
		for i, room := range r.State.Rooms {
			if room.Skeleton == nil {
				continue
			}
			stroke := nrgbaToRGBA(darken(palette[i]))

			edgeStyle := canvas.DefaultStyle
			edgeStyle.Fill = canvas.Paint{Color: canvas.Transparent}
			edgeStyle.Stroke = canvas.Paint{Color: stroke}
			edgeStyle.StrokeWidth = skeletonStrokeWidth

			for _, e := range room.Skeleton.Edges {
				a := room.Skeleton.Nodes[e.A].Pos
				b := room.Skeleton.Nodes[e.B].Pos
				cp := &canvas.Path{}
				x0, y0 := toCanvas(a)
				x1, y1 := toCanvas(b)
				cp.MoveTo(x0, y0)
				cp.LineTo(x1, y1)
				renderer.RenderPath(cp, edgeStyle, canvas.Identity)
			}

			nodeStyle := canvas.DefaultStyle
			nodeStyle.Fill = canvas.Paint{Color: stroke}
			nodeStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

			for _, n := range room.Skeleton.Nodes {
				cx, cy := toCanvas(n.Pos)
				switch n.Kind {
				case NodeJunction:
					p := canvas.Circle(junctionRadius)
					p = p.Translate(cx, cy)
					renderer.RenderPath(p, nodeStyle, canvas.Identity)
				case NodeEndpoint:
					p := canvas.Rectangle(endpointSide, endpointSide)
					p = p.Translate(cx-endpointSide/2, cy-endpointSide/2)
					renderer.RenderPath(p, nodeStyle, canvas.Identity)
				}
			}
		}
	}

	// Room index labels need a loaded font family; the raster overview
	// carries the legend instead.
}

func (r *VectorOverview) calculateWorldBounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY = -math.MaxFloat64, -math.MaxFloat64

	expand := func(p Point) {
		x := snapCoord(p.X, r.SnapIncrement)
		y := snapCoord(p.Y, r.SnapIncrement)
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}

	if r.Drawing != nil {
		for _, s := range r.Drawing.Segments {
			expand(s.Start)
			expand(s.End)
		}
	}
	if r.State != nil {
		for _, room := range r.State.Rooms {
			for _, p := range room.Polygon {
				expand(p)
			}
		}
	}

	// Degenerate input still needs a drawable viewport
	if minX > maxX || minY > maxY {
		minX, minY, maxX, maxY = 0, 0, 1, 1
	}

	return
}
