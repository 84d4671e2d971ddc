package plan

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/beevik/etree"
)

// ParseSVGDrawing parses an SVG export into a drawing. Geometry is taken
// from line, polyline, polygon, and rect elements; group transforms are
// composed and applied. The segment kind comes from the nearest data-kind,
// id, or class attribute naming a layer (wall, door, window); untagged
// geometry defaults to wall.
func ParseSVGDrawing(data []byte) (*Drawing, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing SVG: %w", err)
	}

	root := doc.SelectElement("svg")
	if root == nil {
		return nil, fmt.Errorf("no svg root element")
	}

	d := &Drawing{
		Name:  root.SelectAttrValue("id", "svg-import"),
		Units: root.SelectAttrValue("data-units", ""),
	}

	if err := collectSVGElement(root, Identity(), KindWall, d); err != nil {
		return nil, err
	}
	return d, nil
}

// collectSVGElement walks one element and its children, accumulating
// segments into d.
func collectSVGElement(el *etree.Element, parent AffineMatrix, kind SegmentKind, d *Drawing) error {
	if el.Tag == "defs" {
		return nil
	}

	m := parent
	if tf := el.SelectAttrValue("transform", ""); tf != "" {
		own, err := parseSVGTransform(tf)
		if err != nil {
			return fmt.Errorf("element %s: %w", el.Tag, err)
		}
		m = MultiplyMatrices(parent, own)
	}
	kind = elementKind(el, kind)

	switch el.Tag {
	case "line":
		start := Point{X: attrFloat(el, "x1"), Y: attrFloat(el, "y1")}
		end := Point{X: attrFloat(el, "x2"), Y: attrFloat(el, "y2")}
		appendSVGSegment(d, start, end, m, kind)
	case "polyline", "polygon":
		points, err := parseSVGPoints(el.SelectAttrValue("points", ""))
		if err != nil {
			return fmt.Errorf("element %s: %w", el.Tag, err)
		}
		for i := 0; i+1 < len(points); i++ {
			appendSVGSegment(d, points[i], points[i+1], m, kind)
		}
		if el.Tag == "polygon" && len(points) > 2 {
			appendSVGSegment(d, points[len(points)-1], points[0], m, kind)
		}
	case "rect":
		x, y := attrFloat(el, "x"), attrFloat(el, "y")
		w, h := attrFloat(el, "width"), attrFloat(el, "height")
		corners := []Point{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}
		for i := range corners {
			appendSVGSegment(d, corners[i], corners[(i+1)%4], m, kind)
		}
	}

	for _, child := range el.ChildElements() {
		if err := collectSVGElement(child, m, kind, d); err != nil {
			return err
		}
	}
	return nil
}

func appendSVGSegment(d *Drawing, start, end Point, m AffineMatrix, kind SegmentKind) {
	d.Segments = append(d.Segments, Segment{
		Start: TransformPoint(start, m),
		End:   TransformPoint(end, m),
		Kind:  kind,
	})
}

// elementKind resolves the segment kind for an element, falling back to
// the inherited kind when no attribute names a known layer.
func elementKind(el *etree.Element, inherited SegmentKind) SegmentKind {
	for _, attr := range []string{"data-kind", "id", "class"} {
		val := strings.ToLower(el.SelectAttrValue(attr, ""))
		if val == "" {
			continue
		}
		for _, k := range []SegmentKind{KindWall, KindDoor, KindWindow} {
			if strings.Contains(val, string(k)) {
				return k
			}
		}
	}
	return inherited
}

func attrFloat(el *etree.Element, name string) float64 {
	val, err := strconv.ParseFloat(el.SelectAttrValue(name, "0"), 64)
	if err != nil {
		return 0
	}
	return val
}

// parseSVGPoints parses a points attribute: pairs separated by commas
// and/or whitespace.
func parseSVGPoints(s string) ([]Point, error) {
	fields := splitNumberList(s)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("odd number of coordinates in points list")
	}
	points := make([]Point, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		x, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("bad coordinate %q", fields[i])
		}
		y, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad coordinate %q", fields[i+1])
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points, nil
}

// parseSVGTransform parses a transform attribute into a single affine
// matrix. Supported operations: translate, scale, rotate (with optional
// center), and matrix. Operations compose left to right as in SVG.
func parseSVGTransform(attr string) (AffineMatrix, error) {
	result := Identity()
	for _, chunk := range strings.Split(attr, ")") {
		chunk = strings.TrimLeft(chunk, " ,\t\r\n")
		if chunk == "" {
			continue
		}
		open := strings.Index(chunk, "(")
		if open < 0 {
			return Identity(), fmt.Errorf("malformed transform %q", attr)
		}
		name := strings.TrimSpace(chunk[:open])
		args, err := parseFloatList(chunk[open+1:])
		if err != nil {
			return Identity(), fmt.Errorf("transform %s: %w", name, err)
		}

		var op AffineMatrix
		switch name {
		case "translate":
			tx, ty := argAt(args, 0), argAt(args, 1)
			op = Translation(tx, ty)
		case "scale":
			sx := argAt(args, 0)
			sy := sx
			if len(args) > 1 {
				sy = args[1]
			}
			op = Scale(sx, sy)
		case "rotate":
			op = RotationDeg(argAt(args, 0))
			if len(args) >= 3 {
				cx, cy := args[1], args[2]
				op = MultiplyMatrices(Translation(cx, cy), MultiplyMatrices(op, Translation(-cx, -cy)))
			}
		case "matrix":
			if len(args) != 6 {
				return Identity(), fmt.Errorf("matrix needs 6 values, got %d", len(args))
			}
			// SVG matrix(a b c d e f): x' = a*x + c*y + e, y' = b*x + d*y + f
			op = AffineMatrix{A: args[0], B: args[2], Tx: args[4], C: args[1], D: args[3], Ty: args[5]}
		default:
			return Identity(), fmt.Errorf("unsupported transform %q", name)
		}
		result = MultiplyMatrices(result, op)
	}
	return result, nil
}

func argAt(args []float64, i int) float64 {
	if i < len(args) {
		return args[i]
	}
	return 0
}

func parseFloatList(s string) ([]float64, error) {
	fields := splitNumberList(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func splitNumberList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
