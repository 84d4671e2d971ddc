package plan

import (
	"encoding/json"
	"fmt"
	"os"
)

// ParseDrawingFile reads and parses a drawing segment JSON file
func ParseDrawingFile(path string) (*Drawing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseDrawingJSON(data)
}

// ParseDrawingJSON parses drawing segment JSON data. Segments with an
// unknown kind abort the parse; the kind set is closed.
func ParseDrawingJSON(data []byte) (*Drawing, error) {
	var d Drawing
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	for i, s := range d.Segments {
		if _, err := ParseSegmentKind(string(s.Kind)); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return &d, nil
}

// FilterSegments returns all segments of the given kind
func FilterSegments(d *Drawing, kind SegmentKind) []Segment {
	var out []Segment
	for _, s := range d.Segments {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// WallSegments returns only the wall segments of a drawing
func WallSegments(d *Drawing) []Segment {
	return FilterSegments(d, KindWall)
}

// OpeningSegments returns the door and window segments of a drawing
func OpeningSegments(d *Drawing) []Segment {
	var out []Segment
	for _, s := range d.Segments {
		if s.Kind.IsOpening() {
			out = append(out, s)
		}
	}
	return out
}

// SegmentBounds returns the bounding box of the segment endpoints.
// ok is false when the slice is empty.
func SegmentBounds(segments []Segment) (min, max Point, ok bool) {
	if len(segments) == 0 {
		return Point{}, Point{}, false
	}
	min = segments[0].Start
	max = segments[0].Start
	expand := func(p Point) {
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
	for _, s := range segments {
		expand(s.Start)
		expand(s.End)
	}
	return min, max, true
}

// DrawingSummary provides a summary of drawing contents
type DrawingSummary struct {
	Name            string
	Units           string
	SegmentCount    int
	WallCount       int
	DoorCount       int
	WindowCount     int
	Min             Point
	Max             Point
	Width           float64
	Height          float64
	TotalWallLength float64
}

// Summarize extracts key information from a drawing
func Summarize(d *Drawing) DrawingSummary {
	summary := DrawingSummary{
		Name:         d.Name,
		Units:        d.Units,
		SegmentCount: len(d.Segments),
	}

	for _, s := range d.Segments {
		switch s.Kind {
		case KindWall:
			summary.WallCount++
			summary.TotalWallLength += s.Length()
		case KindDoor:
			summary.DoorCount++
		case KindWindow:
			summary.WindowCount++
		}
	}

	if min, max, ok := SegmentBounds(d.Segments); ok {
		summary.Min = min
		summary.Max = max
		summary.Width = max.X - min.X
		summary.Height = max.Y - min.Y
	}

	return summary
}

// HasGeometry returns true if the drawing contains at least one segment
// of positive length
func HasGeometry(d *Drawing) bool {
	if d == nil {
		return false
	}
	for _, s := range d.Segments {
		if s.Length() > 0 {
			return true
		}
	}
	return false
}
