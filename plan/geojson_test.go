package plan

import (
	"encoding/json"
	"testing"
)

func TestNewFeatureCollection(t *testing.T) {
	fc := NewFeatureCollection()

	if fc.Type != "FeatureCollection" {
		t.Errorf("Expected Type 'FeatureCollection', got '%s'", fc.Type)
	}
	if fc.Features == nil {
		t.Error("Expected Features to be initialized")
	}
	if len(fc.Features) != 0 {
		t.Errorf("Expected 0 features, got %d", len(fc.Features))
	}
}

func TestNewFeature(t *testing.T) {
	geom := &Geometry{Type: GeometryPoint}
	props := map[string]interface{}{"name": "test"}

	f := NewFeature(geom, props)

	if f.Type != "Feature" {
		t.Errorf("Expected Type 'Feature', got '%s'", f.Type)
	}
	if f.Geometry != geom {
		t.Error("Geometry mismatch")
	}
	if f.Properties["name"] != "test" {
		t.Error("Properties not set correctly")
	}
}

func TestNewFeatureNilProperties(t *testing.T) {
	geom := &Geometry{Type: GeometryPoint}
	f := NewFeature(geom, nil)

	if f.Properties == nil {
		t.Error("Expected Properties to be initialized when nil is passed")
	}
	if len(f.Properties) != 0 {
		t.Errorf("Expected empty properties map, got %d entries", len(f.Properties))
	}
}

func TestAddFeature(t *testing.T) {
	fc := NewFeatureCollection()
	f := NewFeature(&Geometry{Type: GeometryPoint}, nil)

	fc.AddFeature(f)

	if len(fc.Features) != 1 {
		t.Errorf("Expected 1 feature, got %d", len(fc.Features))
	}
	if fc.Features[0] != f {
		t.Error("Feature not added correctly")
	}
}

func TestOutlineToPolygon(t *testing.T) {
	outline := []Point{
		{X: 0, Y: 0},
		{X: 10, Y: 0},
		{X: 10, Y: 6},
		{X: 0, Y: 6},
	}

	geom := OutlineToPolygon(outline)

	if geom.Type != GeometryPolygon {
		t.Errorf("Expected type Polygon, got %s", geom.Type)
	}

	var rings [][][2]float64
	if err := json.Unmarshal(geom.Coordinates, &rings); err != nil {
		t.Fatalf("Failed to unmarshal coordinates: %v", err)
	}

	if len(rings) != 1 {
		t.Fatalf("Expected 1 ring, got %d", len(rings))
	}

	// The ring is closed on output: 4 corners + repeated first point
	ring := rings[0]
	if len(ring) != 5 {
		t.Fatalf("Expected 5 coordinates (closed ring), got %d", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Errorf("Ring not closed: first %v, last %v", ring[0], ring[len(ring)-1])
	}
	if ring[2][0] != 10 || ring[2][1] != 6 {
		t.Errorf("Coordinate 2: expected [10 6], got %v", ring[2])
	}
}

func TestOutlineToPolygonAlreadyClosed(t *testing.T) {
	outline := []Point{
		{X: 0, Y: 0},
		{X: 10, Y: 0},
		{X: 10, Y: 6},
		{X: 0, Y: 0}, // already closed
	}

	geom := OutlineToPolygon(outline)

	var rings [][][2]float64
	if err := json.Unmarshal(geom.Coordinates, &rings); err != nil {
		t.Fatalf("Failed to unmarshal coordinates: %v", err)
	}

	// No duplicate closing point should be added
	if len(rings[0]) != 4 {
		t.Errorf("Expected 4 coordinates, got %d", len(rings[0]))
	}
}

func TestOutlineToPolygonEmpty(t *testing.T) {
	geom := OutlineToPolygon(nil)

	if geom.Type != GeometryPolygon {
		t.Errorf("Expected type Polygon, got %s", geom.Type)
	}

	var rings [][][2]float64
	if err := json.Unmarshal(geom.Coordinates, &rings); err != nil {
		t.Fatalf("Failed to unmarshal coordinates: %v", err)
	}
	if len(rings) != 1 || len(rings[0]) != 0 {
		t.Errorf("Expected one empty ring, got %v", rings)
	}
}

func sampleSkeleton() *SkeletonGraph {
	return &SkeletonGraph{
		Nodes: []SkeletonNode{
			{ID: 0, Kind: NodeEndpoint, Pos: Point{X: 1, Y: 3}},
			{ID: 1, Kind: NodeJunction, Pos: Point{X: 5, Y: 3}},
			{ID: 2, Kind: NodeEndpoint, Pos: Point{X: 9, Y: 3}},
			{ID: 3, Kind: NodeEndpoint, Pos: Point{X: 5, Y: 1}},
		},
		Edges: []SkeletonEdge{
			{A: 0, B: 1},
			{A: 1, B: 2},
			{A: 1, B: 3},
		},
	}
}

func TestSkeletonToMultiLineString(t *testing.T) {
	geom := SkeletonToMultiLineString(sampleSkeleton())
	if geom == nil {
		t.Fatal("Expected geometry, got nil")
		return
	}

	if geom.Type != GeometryMultiLineString {
		t.Errorf("Expected type MultiLineString, got %s", geom.Type)
	}

	var lines [][][2]float64
	if err := json.Unmarshal(geom.Coordinates, &lines); err != nil {
		t.Fatalf("Failed to unmarshal coordinates: %v", err)
	}

	if len(lines) != 3 {
		t.Fatalf("Expected 3 line strings (one per edge), got %d", len(lines))
	}
	for i, line := range lines {
		if len(line) != 2 {
			t.Errorf("Line %d: expected 2 points, got %d", i, len(line))
		}
	}

	// First edge runs from node 0 to node 1
	if lines[0][0] != [2]float64{1, 3} || lines[0][1] != [2]float64{5, 3} {
		t.Errorf("First line: expected [[1 3] [5 3]], got %v", lines[0])
	}
}

func TestSkeletonToMultiLineStringNil(t *testing.T) {
	if geom := SkeletonToMultiLineString(nil); geom != nil {
		t.Error("Expected nil geometry for nil skeleton")
	}
	if geom := SkeletonToMultiLineString(&SkeletonGraph{}); geom != nil {
		t.Error("Expected nil geometry for edgeless skeleton")
	}
}

func TestSkeletonNodesToMultiPoint(t *testing.T) {
	g := sampleSkeleton()
	// Add an interior node that must be skipped
	g.Nodes = append(g.Nodes, SkeletonNode{ID: 4, Kind: NodeInterior, Pos: Point{X: 3, Y: 3}})

	geom := SkeletonNodesToMultiPoint(g)
	if geom == nil {
		t.Fatal("Expected geometry, got nil")
		return
	}

	if geom.Type != GeometryMultiPoint {
		t.Errorf("Expected type MultiPoint, got %s", geom.Type)
	}

	var coords [][2]float64
	if err := json.Unmarshal(geom.Coordinates, &coords); err != nil {
		t.Fatalf("Failed to unmarshal coordinates: %v", err)
	}

	// 4 original nodes kept, interior node skipped
	if len(coords) != 4 {
		t.Errorf("Expected 4 points (interior skipped), got %d", len(coords))
	}
}

func TestSkeletonNodesToMultiPointEmpty(t *testing.T) {
	if geom := SkeletonNodesToMultiPoint(nil); geom != nil {
		t.Error("Expected nil geometry for nil skeleton")
	}

	onlyInterior := &SkeletonGraph{
		Nodes: []SkeletonNode{{ID: 0, Kind: NodeInterior, Pos: Point{X: 1, Y: 1}}},
	}
	if geom := SkeletonNodesToMultiPoint(onlyInterior); geom != nil {
		t.Error("Expected nil geometry when all nodes are interior")
	}
}

func TestRoomToFeatures(t *testing.T) {
	room := RoomRecord{
		Index:     2,
		Polygon:   []Point{{0, 0}, {10, 0}, {10, 6}, {0, 6}},
		Skeleton:  sampleSkeleton(),
		Area:      60,
		Perimeter: 32,
		Status:    StatusOK,
	}

	features := RoomToFeatures("unit-a", room)

	if len(features) != 2 {
		t.Fatalf("Expected 2 features (room + skeleton), got %d", len(features))
	}

	roomFeature := features[0]
	if roomFeature.Geometry.Type != GeometryPolygon {
		t.Errorf("Room geometry: expected Polygon, got %s", roomFeature.Geometry.Type)
	}
	if roomFeature.Properties["featureType"] != "room" {
		t.Errorf("featureType = %v, want room", roomFeature.Properties["featureType"])
	}
	if roomFeature.Properties["drawingId"] != "unit-a" {
		t.Errorf("drawingId = %v, want unit-a", roomFeature.Properties["drawingId"])
	}
	if roomFeature.Properties["roomIndex"] != 2 {
		t.Errorf("roomIndex = %v, want 2", roomFeature.Properties["roomIndex"])
	}
	if roomFeature.Properties["area"] != 60.0 {
		t.Errorf("area = %v, want 60", roomFeature.Properties["area"])
	}
	if roomFeature.Properties["status"] != "ok" {
		t.Errorf("status = %v, want ok", roomFeature.Properties["status"])
	}
	if _, ok := roomFeature.Properties["diagnostic"]; ok {
		t.Error("diagnostic should be omitted when empty")
	}

	skeletonFeature := features[1]
	if skeletonFeature.Geometry.Type != GeometryMultiLineString {
		t.Errorf("Skeleton geometry: expected MultiLineString, got %s", skeletonFeature.Geometry.Type)
	}
	if skeletonFeature.Properties["featureType"] != "skeleton" {
		t.Errorf("featureType = %v, want skeleton", skeletonFeature.Properties["featureType"])
	}
	if skeletonFeature.Properties["nodeCount"] != 4 {
		t.Errorf("nodeCount = %v, want 4", skeletonFeature.Properties["nodeCount"])
	}
	if skeletonFeature.Properties["edgeCount"] != 3 {
		t.Errorf("edgeCount = %v, want 3", skeletonFeature.Properties["edgeCount"])
	}
}

func TestRoomToFeaturesNoSkeleton(t *testing.T) {
	room := RoomRecord{
		Index:      0,
		Polygon:    []Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Area:       1,
		Status:     StatusFailed,
		Diagnostic: "all candidates empty",
	}

	features := RoomToFeatures("unit-a", room)

	if len(features) != 1 {
		t.Fatalf("Expected 1 feature (room only), got %d", len(features))
	}
	if features[0].Properties["status"] != "failed" {
		t.Errorf("status = %v, want failed", features[0].Properties["status"])
	}
	if features[0].Properties["diagnostic"] != "all candidates empty" {
		t.Errorf("diagnostic = %v, want 'all candidates empty'", features[0].Properties["diagnostic"])
	}
}

func TestStateToFeatureCollection(t *testing.T) {
	state := &DrawingState{
		ID: "unit-a",
		Rooms: []RoomRecord{
			{Index: 0, Polygon: []Point{{0, 0}, {5, 0}, {5, 5}, {0, 5}}, Skeleton: sampleSkeleton(), Status: StatusOK},
			{Index: 1, Polygon: []Point{{6, 0}, {10, 0}, {10, 5}, {6, 5}}, Status: StatusFailed},
		},
	}

	fc := StateToFeatureCollection(state)

	// Room 0 contributes room + skeleton, room 1 contributes room only
	if len(fc.Features) != 3 {
		t.Errorf("Expected 3 features, got %d", len(fc.Features))
	}
}

func TestStateToFeatureCollectionNil(t *testing.T) {
	fc := StateToFeatureCollection(nil)
	if fc == nil {
		t.Fatal("Expected empty collection, got nil")
		return
	}
	if len(fc.Features) != 0 {
		t.Errorf("Expected 0 features, got %d", len(fc.Features))
	}
}

func TestStatesToFeatureCollection(t *testing.T) {
	states := map[string]*DrawingState{
		"unit-b": {
			ID:    "unit-b",
			Rooms: []RoomRecord{{Index: 0, Polygon: []Point{{0, 0}, {1, 0}, {1, 1}}, Status: StatusOK}},
		},
		"unit-a": {
			ID:    "unit-a",
			Rooms: []RoomRecord{{Index: 0, Polygon: []Point{{0, 0}, {2, 0}, {2, 2}}, Status: StatusOK}},
		},
	}

	fc := StatesToFeatureCollection(states)

	if len(fc.Features) != 2 {
		t.Fatalf("Expected 2 features, got %d", len(fc.Features))
	}

	// Drawings are emitted in ID order regardless of map iteration order
	if fc.Features[0].Properties["drawingId"] != "unit-a" {
		t.Errorf("First feature drawingId = %v, want unit-a", fc.Features[0].Properties["drawingId"])
	}
	if fc.Features[1].Properties["drawingId"] != "unit-b" {
		t.Errorf("Second feature drawingId = %v, want unit-b", fc.Features[1].Properties["drawingId"])
	}
}

func TestFeatureCollectionJSON(t *testing.T) {
	state := &DrawingState{
		ID: "unit-a",
		Rooms: []RoomRecord{
			{Index: 0, Polygon: []Point{{0, 0}, {10, 0}, {10, 6}, {0, 6}}, Skeleton: sampleSkeleton(), Area: 60, Status: StatusOK},
		},
	}

	fc := StateToFeatureCollection(state)

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}

	// The document must round-trip as plain GeoJSON
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if decoded["type"] != "FeatureCollection" {
		t.Errorf("type = %v, want FeatureCollection", decoded["type"])
	}
	features, ok := decoded["features"].([]interface{})
	if !ok || len(features) != 2 {
		t.Fatalf("features = %v", decoded["features"])
	}
	first, ok := features[0].(map[string]interface{})
	if !ok {
		t.Fatal("feature is not an object")
		return
	}
	if first["type"] != "Feature" {
		t.Errorf("feature type = %v, want Feature", first["type"])
	}
	geom, ok := first["geometry"].(map[string]interface{})
	if !ok || geom["type"] != "Polygon" {
		t.Errorf("geometry = %v", first["geometry"])
	}
}
