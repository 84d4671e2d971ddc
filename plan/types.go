package plan

import "fmt"

// SegmentKind classifies a drawing segment by its originating layer.
// The set is closed: only walls, doors, and windows are ever distinguished.
type SegmentKind string

const (
	KindWall   SegmentKind = "wall"
	KindDoor   SegmentKind = "door"
	KindWindow SegmentKind = "window"
)

// ParseSegmentKind validates a layer tag from an external source.
func ParseSegmentKind(s string) (SegmentKind, error) {
	switch SegmentKind(s) {
	case KindWall, KindDoor, KindWindow:
		return SegmentKind(s), nil
	}
	return "", fmt.Errorf("unknown segment kind %q", s)
}

// IsOpening reports whether the kind punches an opening through a wall.
func (k SegmentKind) IsOpening() bool {
	return k == KindDoor || k == KindWindow
}

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is an ordered pair of points tagged with its source layer.
// Segments are immutable once repaired; zero-length segments are invalid
// and dropped during repair.
type Segment struct {
	Start Point       `json:"start"`
	End   Point       `json:"end"`
	Kind  SegmentKind `json:"kind"`
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return Distance(s.Start, s.End)
}

// Drawing is the ingest envelope: a named, flat list of segments in a
// single planar coordinate system.
type Drawing struct {
	Name     string    `json:"name"`
	Units    string    `json:"units,omitempty"`
	Segments []Segment `json:"segments"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// RoomPolygon is a closed room boundary extracted by the region builder.
// Outline holds the vertices in order without a duplicate closing vertex.
// Index is assigned in discovery order and survives into the RoomRecord.
type RoomPolygon struct {
	Index     int     `json:"index"`
	Outline   []Point `json:"outline"`
	Area      float64 `json:"area"`
	Perimeter float64 `json:"perimeter"`
}

// NodeKind classifies a skeleton node by its degree in the final graph.
type NodeKind string

const (
	NodeEndpoint NodeKind = "endpoint"
	NodeJunction NodeKind = "junction"
	NodeInterior NodeKind = "interior"
)

// SkeletonNode is a single node of a skeleton graph. Pos is in the same
// coordinate system as the input segments.
type SkeletonNode struct {
	ID   int      `json:"id"`
	Kind NodeKind `json:"kind"`
	Pos  Point    `json:"pos"`
}

// SkeletonEdge connects two nodes by ID.
type SkeletonEdge struct {
	A int `json:"a"`
	B int `json:"b"`
}

// SkeletonGraph is the optimized centerline graph for one room: a plain
// node/edge list that downstream exporters can consume directly.
type SkeletonGraph struct {
	Nodes []SkeletonNode `json:"nodes"`
	Edges []SkeletonEdge `json:"edges"`
}

// TotalLength returns the summed Euclidean length of all edges.
func (g *SkeletonGraph) TotalLength() float64 {
	total := 0.0
	for _, e := range g.Edges {
		total += Distance(g.Nodes[e.A].Pos, g.Nodes[e.B].Pos)
	}
	return total
}

// RoomStatus reports the outcome of a room's skeleton extraction.
type RoomStatus string

const (
	// StatusOK means the room has a connected skeleton with at least one edge.
	StatusOK RoomStatus = "ok"

	// StatusDegenerate means the room is valid but its skeleton is either
	// meaningless (room too small, skeleton null) or was reduced to its
	// largest component because the optimizer could not restore connectivity.
	StatusDegenerate RoomStatus = "degenerate"

	// StatusFailed means every skeleton candidate was invalid or empty.
	// The polygon, area, and perimeter are still populated.
	StatusFailed RoomStatus = "failed"
)

// RoomRecord pairs a room polygon with its optimized skeleton and is the
// terminal artifact of extraction. Records are immutable after assembly
// and ordered by polygon discovery index.
type RoomRecord struct {
	Index      int            `json:"index"`
	Polygon    []Point        `json:"polygon"`
	Skeleton   *SkeletonGraph `json:"skeleton,omitempty"`
	Area       float64        `json:"area"`
	Perimeter  float64        `json:"perimeter"`
	Status     RoomStatus     `json:"status"`
	Diagnostic string         `json:"diagnostic,omitempty"`
}

// DrawingState is the service-mode snapshot for one drawing.
type DrawingState struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	SegmentCount int          `json:"segmentCount"`
	Rooms        []RoomRecord `json:"rooms"`
	Warnings     []string     `json:"warnings,omitempty"`
	LastUpdate   int64        `json:"lastUpdate"`
}

// DrawingConfig defines a drawing source from the config file.
type DrawingConfig struct {
	ID     string  `yaml:"id" json:"id"`
	Topic  string  `yaml:"topic" json:"topic"`
	Color  string  `yaml:"color,omitempty" json:"color,omitempty"`
	ApiURL *string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"` // Optional upstream API for fetching segment exports
}

// ExtractionConfig carries the engine parameters from the config file.
// Zero values fall back to the engine defaults (see DefaultExtractOptions).
type ExtractionConfig struct {
	MinArea         float64 `yaml:"minArea,omitempty" json:"minArea,omitempty"`
	MaxArea         float64 `yaml:"maxArea,omitempty" json:"maxArea,omitempty"`
	MinSkeletonArea float64 `yaml:"minSkeletonArea,omitempty" json:"minSkeletonArea,omitempty"`
	RasterSize      int     `yaml:"rasterSize,omitempty" json:"rasterSize,omitempty"`
	SnapTolerance   float64 `yaml:"snapTolerance,omitempty" json:"snapTolerance,omitempty"`
	Workers         int     `yaml:"workers,omitempty" json:"workers,omitempty"`
	RegionMode      string  `yaml:"regionMode,omitempty" json:"regionMode,omitempty"` // auto, arrangement, or raster
}

// RenderConfig holds overview rendering settings.
type RenderConfig struct {
	GridSpacing      float64 `yaml:"gridSpacing,omitempty" json:"gridSpacing,omitempty"`           // Grid line spacing in drawing units (default 1)
	VectorResolution float64 `yaml:"vectorResolution,omitempty" json:"vectorResolution,omitempty"` // Vector PNG pixels per drawing unit (default 50)
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction,omitempty" json:"extraction,omitempty"`
	MQTT       MQTTConfig       `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Drawings   []DrawingConfig  `yaml:"drawings,omitempty" json:"drawings,omitempty"`
	Render     RenderConfig     `yaml:"render,omitempty" json:"render,omitempty"`
}

// GetDrawingByID returns the drawing config for the given ID
func (c *Config) GetDrawingByID(id string) *DrawingConfig {
	for i := range c.Drawings {
		if c.Drawings[i].ID == id {
			return &c.Drawings[i]
		}
	}
	return nil
}
