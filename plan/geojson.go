package plan

import (
	"encoding/json"
	"sort"
)

// GeometryType represents the GeoJSON geometry type
type GeometryType string

const (
	GeometryPoint           GeometryType = "Point"
	GeometryLineString      GeometryType = "LineString"
	GeometryPolygon         GeometryType = "Polygon"
	GeometryMultiPoint      GeometryType = "MultiPoint"
	GeometryMultiLineString GeometryType = "MultiLineString"
)

// Geometry represents a GeoJSON geometry object
type Geometry struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature represents a GeoJSON feature with geometry and properties
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   *Geometry              `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
	ID         interface{}            `json:"id,omitempty"`
}

// FeatureCollection represents a GeoJSON FeatureCollection
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection creates a new empty FeatureCollection
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*Feature, 0),
	}
}

// AddFeature appends a feature to the collection
func (fc *FeatureCollection) AddFeature(f *Feature) {
	fc.Features = append(fc.Features, f)
}

// NewFeature creates a Feature with the given geometry and properties
func NewFeature(geom *Geometry, props map[string]interface{}) *Feature {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: props,
	}
}

// OutlineToPolygon converts a room outline to a GeoJSON Polygon geometry.
// The ring is closed on the way out; coordinates stay in drawing units.
func OutlineToPolygon(outline []Point) *Geometry {
	coords := make([][2]float64, len(outline))
	for i, p := range outline {
		coords[i] = [2]float64{p.X, p.Y}
	}

	// Close the ring if not already closed
	if len(coords) > 0 {
		first := coords[0]
		last := coords[len(coords)-1]
		if first[0] != last[0] || first[1] != last[1] {
			coords = append(coords, first)
		}
	}

	rings := [][][2]float64{coords}
	coordsJSON, _ := json.Marshal(rings)
	return &Geometry{
		Type:        GeometryPolygon,
		Coordinates: coordsJSON,
	}
}

// SkeletonToMultiLineString converts a skeleton graph to a GeoJSON
// MultiLineString, one two-point line per edge.
func SkeletonToMultiLineString(g *SkeletonGraph) *Geometry {
	if g == nil || len(g.Edges) == 0 {
		return nil
	}
	lines := make([][][2]float64, 0, len(g.Edges))
	for _, e := range g.Edges {
		a, b := g.Nodes[e.A].Pos, g.Nodes[e.B].Pos
		lines = append(lines, [][2]float64{{a.X, a.Y}, {b.X, b.Y}})
	}

	coordsJSON, _ := json.Marshal(lines)
	return &Geometry{
		Type:        GeometryMultiLineString,
		Coordinates: coordsJSON,
	}
}

// SkeletonNodesToMultiPoint converts the skeleton's junction and endpoint
// nodes to a GeoJSON MultiPoint. Interior nodes carry no information a
// consumer needs and are skipped.
func SkeletonNodesToMultiPoint(g *SkeletonGraph) *Geometry {
	if g == nil {
		return nil
	}
	coords := make([][2]float64, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Kind == NodeInterior {
			continue
		}
		coords = append(coords, [2]float64{n.Pos.X, n.Pos.Y})
	}
	if len(coords) == 0 {
		return nil
	}

	coordsJSON, _ := json.Marshal(coords)
	return &Geometry{
		Type:        GeometryMultiPoint,
		Coordinates: coordsJSON,
	}
}

// RoomToFeatures converts one room record to its GeoJSON features: a
// polygon for the boundary and, when a skeleton exists, a line feature
// for the centerline graph.
func RoomToFeatures(drawingID string, r RoomRecord) []*Feature {
	props := map[string]interface{}{
		"featureType": "room",
		"drawingId":   drawingID,
		"roomIndex":   r.Index,
		"area":        r.Area,
		"perimeter":   r.Perimeter,
		"status":      string(r.Status),
	}
	if r.Diagnostic != "" {
		props["diagnostic"] = r.Diagnostic
	}
	features := []*Feature{NewFeature(OutlineToPolygon(r.Polygon), props)}

	if geom := SkeletonToMultiLineString(r.Skeleton); geom != nil {
		features = append(features, NewFeature(geom, map[string]interface{}{
			"featureType": "skeleton",
			"drawingId":   drawingID,
			"roomIndex":   r.Index,
			"nodeCount":   len(r.Skeleton.Nodes),
			"edgeCount":   len(r.Skeleton.Edges),
		}))
	}
	return features
}

// StateToFeatureCollection converts one drawing's extraction state to a
// GeoJSON FeatureCollection with room and skeleton features.
func StateToFeatureCollection(state *DrawingState) *FeatureCollection {
	fc := NewFeatureCollection()
	if state == nil {
		return fc
	}
	for _, r := range state.Rooms {
		for _, f := range RoomToFeatures(state.ID, r) {
			fc.AddFeature(f)
		}
	}
	return fc
}

// StatesToFeatureCollection merges every drawing's extraction state into
// one FeatureCollection. Drawings are emitted in ID order so repeated
// exports are byte-stable.
func StatesToFeatureCollection(states map[string]*DrawingState) *FeatureCollection {
	fc := NewFeatureCollection()

	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for _, f := range StateToFeatureCollection(states[id]).Features {
			fc.AddFeature(f)
		}
	}
	return fc
}
