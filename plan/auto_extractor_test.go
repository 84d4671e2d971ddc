package plan

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleExportDrawing() *Drawing {
	return &Drawing{
		Name:     "unit-a",
		Units:    "m",
		Segments: rectWalls(0, 0, 10, 6),
	}
}

// ---------------------------------------------------------------------------
// NewAutoExtractor
// ---------------------------------------------------------------------------

func TestNewAutoExtractor(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a"}}}
	st := NewStateTracker()

	ae := NewAutoExtractor(cfg, st, t.TempDir(), DefaultExtractOptions())
	if ae == nil {
		t.Fatal("expected non-nil AutoExtractor")
		return
	}
	if ae.lastExtracted == nil {
		t.Fatal("expected lastExtracted map to be initialized")
	}
}

// ---------------------------------------------------------------------------
// OnDrawingPayload – decoded export
// ---------------------------------------------------------------------------

func TestOnDrawingPayload_ValidExport(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a", Topic: "cad/unit-a/DrawingData/segments"}}}
	st := NewStateTracker()
	dataDir := t.TempDir()

	ae := NewAutoExtractor(cfg, st, dataDir, DefaultExtractOptions())

	var extractedState *DrawingState
	ae.SetExtractedHandler(func(state *DrawingState) {
		extractedState = state
	})

	drawing := sampleExportDrawing()
	ae.OnDrawingPayload("unit-a", []byte("{}"), drawing, nil)

	// Export saved to disk
	exportPath := filepath.Join(dataDir, "DrawingExport-unit-a.json")
	if _, err := os.Stat(exportPath); err != nil {
		t.Errorf("expected export file at %s: %v", exportPath, err)
	}

	// Drawing stored in the tracker
	if st.GetDrawing("unit-a") == nil {
		t.Error("drawing should be stored in the tracker")
	}

	// Extraction ran
	state := st.GetState("unit-a")
	if state == nil {
		t.Fatal("expected extraction state after valid export")
		return
	}
	if len(state.Rooms) != 1 {
		t.Errorf("rooms = %d, want 1", len(state.Rooms))
	}

	// Callback received the new state
	if extractedState == nil {
		t.Fatal("extracted handler was not invoked")
		return
	}
	if extractedState.ID != "unit-a" {
		t.Errorf("callback state ID = %s, want unit-a", extractedState.ID)
	}
}

func TestOnDrawingPayload_DebounceSkips(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a"}}}
	st := NewStateTracker()

	ae := NewAutoExtractor(cfg, st, "", DefaultExtractOptions())
	// Simulate a recent extraction
	ae.lastExtracted["unit-a"] = time.Now()

	handlerCalled := false
	ae.SetExtractedHandler(func(*DrawingState) { handlerCalled = true })

	ae.OnDrawingPayload("unit-a", []byte("{}"), sampleExportDrawing(), nil)

	// The drawing is stored (newest export wins) but extraction is skipped
	if st.GetDrawing("unit-a") == nil {
		t.Error("drawing should still be stored during debounce")
	}
	if st.GetState("unit-a") != nil {
		t.Error("extraction should be skipped within debounce window")
	}
	if handlerCalled {
		t.Error("extracted handler should not fire during debounce")
	}
}

func TestOnDrawingPayload_PersistedDebounce(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a"}}}
	st := NewStateTracker()

	// Cached results from a previous run, still fresh
	st.states["unit-a"] = &DrawingState{
		ID:         "unit-a",
		LastUpdate: time.Now().Unix(),
	}

	ae := NewAutoExtractor(cfg, st, "", DefaultExtractOptions())

	handlerCalled := false
	ae.SetExtractedHandler(func(*DrawingState) { handlerCalled = true })

	ae.OnDrawingPayload("unit-a", []byte("{}"), sampleExportDrawing(), nil)

	if handlerCalled {
		t.Error("extracted handler should not fire while cached results are fresh")
	}
	// The seeded state survives untouched
	state := st.GetState("unit-a")
	if state == nil || len(state.Rooms) != 0 {
		t.Error("cached state should remain unmodified")
	}
}

func TestOnDrawingPayload_UndecodableExport(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a"}}}
	st := NewStateTracker()
	dataDir := t.TempDir()

	ae := NewAutoExtractor(cfg, st, dataDir, DefaultExtractOptions())

	handlerCalled := false
	ae.SetExtractedHandler(func(*DrawingState) { handlerCalled = true })

	rawPayload := []byte("not a drawing at all")
	ae.OnDrawingPayload("unit-a", rawPayload, nil, assert.AnError)

	// Raw payload preserved for inspection
	rawPath := filepath.Join(dataDir, "DrawingExport-unit-a.raw")
	saved, err := os.ReadFile(rawPath)
	if err != nil {
		t.Fatalf("expected raw export at %s: %v", rawPath, err)
	}
	if string(saved) != string(rawPayload) {
		t.Errorf("saved raw export = %q, want %q", saved, rawPayload)
	}

	// No extraction, no callback
	if st.GetState("unit-a") != nil {
		t.Error("no extraction should run for undecodable export")
	}
	if handlerCalled {
		t.Error("extracted handler should not fire for undecodable export")
	}
}

func TestOnDrawingPayload_NoGeometry(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a"}}}
	st := NewStateTracker()
	dataDir := t.TempDir()

	ae := NewAutoExtractor(cfg, st, dataDir, DefaultExtractOptions())

	empty := &Drawing{Name: "unit-a", Segments: []Segment{}}
	ae.OnDrawingPayload("unit-a", []byte("{}"), empty, nil)

	// Nothing saved, nothing stored, nothing extracted
	if _, err := os.Stat(filepath.Join(dataDir, "DrawingExport-unit-a.json")); err == nil {
		t.Error("empty export should not be saved")
	}
	if st.GetDrawing("unit-a") != nil {
		t.Error("empty export should not be stored")
	}
	if st.GetState("unit-a") != nil {
		t.Error("empty export should not be extracted")
	}
}

// ---------------------------------------------------------------------------
// OnSaveEvent
// ---------------------------------------------------------------------------

func TestOnSaveEvent_FetchesAndExtracts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(sampleDrawingData())
	}))
	defer srv.Close()

	apiURL := srv.URL
	cfg := &Config{
		Drawings: []DrawingConfig{
			{ID: "unit-a", Topic: "cad/unit-a/DrawingData/segments", ApiURL: &apiURL},
		},
	}
	st := NewStateTracker()
	dataDir := t.TempDir()

	ae := NewAutoExtractor(cfg, st, dataDir, DefaultExtractOptions())

	var extractedState *DrawingState
	ae.SetExtractedHandler(func(state *DrawingState) {
		extractedState = state
	})

	ae.OnSaveEvent("unit-a")

	// Fetched export saved to disk
	if _, err := os.Stat(filepath.Join(dataDir, "DrawingExport-unit-a.json")); err != nil {
		t.Errorf("expected export file: %v", err)
	}

	// Extraction ran on the fetched export
	state := st.GetState("unit-a")
	if state == nil {
		t.Fatal("expected extraction state after save event")
		return
	}
	if len(state.Rooms) == 0 {
		t.Error("expected at least one room from fetched export")
	}
	if extractedState == nil {
		t.Error("extracted handler was not invoked")
	}
}

func TestOnSaveEvent_UnknownDrawing(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a"}}}
	st := NewStateTracker()

	ae := NewAutoExtractor(cfg, st, "", DefaultExtractOptions())

	// Should log warning and return without panic
	ae.OnSaveEvent("unknown-drawing")

	if st.GetState("unknown-drawing") != nil {
		t.Error("no state should appear for unknown drawing")
	}
}

func TestOnSaveEvent_NoApiURL(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a", Topic: "cad/unit-a/DrawingData/segments"}}}
	st := NewStateTracker()

	ae := NewAutoExtractor(cfg, st, "", DefaultExtractOptions())

	// Should log warning about missing apiUrl and return
	ae.OnSaveEvent("unit-a")

	if st.GetState("unit-a") != nil {
		t.Error("save event without apiUrl should not extract")
	}
}

func TestOnSaveEvent_APIFailure(t *testing.T) {
	// Server that always returns 500
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	apiURL := srv.URL
	cfg := &Config{
		Drawings: []DrawingConfig{
			{ID: "unit-a", ApiURL: &apiURL},
		},
	}
	st := NewStateTracker()

	ae := NewAutoExtractor(cfg, st, "", DefaultExtractOptions())
	ae.OnSaveEvent("unit-a")

	if requests.Load() == 0 {
		t.Error("expected at least one fetch attempt")
	}
	if st.GetState("unit-a") != nil {
		t.Error("failed fetch should preserve existing results (none)")
	}
}

func TestOnSaveEvent_DebounceSkips(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write(sampleDrawingData())
	}))
	defer srv.Close()

	apiURL := srv.URL
	cfg := &Config{
		Drawings: []DrawingConfig{
			{ID: "unit-a", ApiURL: &apiURL},
		},
	}
	st := NewStateTracker()

	ae := NewAutoExtractor(cfg, st, "", DefaultExtractOptions())
	// Simulate a recent extraction
	ae.lastExtracted["unit-a"] = time.Now()

	ae.OnSaveEvent("unit-a")

	// Debounce happens before the fetch, so the API is never hit
	if requests.Load() != 0 {
		t.Errorf("API requests = %d, want 0 (debounced)", requests.Load())
	}
}

// ---------------------------------------------------------------------------
// TestSaveAutoExtractFlow
//
// Integration test that exercises the full save -> auto-extraction chain:
//   1. Mock MQTT client receives a "saved" status message
//   2. SaveHandler fires for the correct drawing
//   3. AutoExtractor fetches the fresh export via HTTP API (httptest server)
//   4. Extraction runs and updates the state tracker
//   5. The extracted handler publishes results through the mock client
// ---------------------------------------------------------------------------

func TestSaveAutoExtractFlow(t *testing.T) {
	// -- arrange: export served by a fake CAD workstation API --
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); accept != "application/json, image/svg+xml" {
			t.Errorf("unexpected Accept header: %q", accept)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(sampleDrawingData())
	}))
	defer srv.Close()

	// -- arrange: MQTT mock with save detection --
	mock := NewMockClient()
	mock.SetConnected(true)

	apiURL := srv.URL
	config := &Config{
		Drawings: []DrawingConfig{
			{ID: "studio1", Topic: "cad/studio1/DrawingData/segments", ApiURL: &apiURL},
		},
	}

	st := NewStateTracker()
	ae := NewAutoExtractor(config, st, t.TempDir(), DefaultExtractOptions())

	client := newMQTTClientWithMock(mock, config, ae.OnDrawingPayload)
	client.SetSaveHandler(ae.OnSaveEvent)

	// -- arrange: publish extraction results through the same mock --
	publisher := NewPublisher(mock)
	ae.SetExtractedHandler(func(state *DrawingState) {
		if err := publisher.PublishRooms(state); err != nil {
			t.Errorf("PublishRooms failed: %v", err)
		}
	})

	// -- act: subscribe and simulate the save event --
	client.onConnect(mock)
	mock.SimulateMessage(
		"cad/studio1/DocumentStatus/status",
		[]byte(`{"value":"saved"}`),
	)

	// -- assert: extraction ran for the correct drawing --
	state := st.GetState("studio1")
	if state == nil {
		t.Fatal("expected extraction state after save event")
		return
	}
	assert.Equal(t, "studio1", state.ID)
	assert.NotEmpty(t, state.Rooms, "expected rooms from the fetched export")

	// -- assert: results were published --
	roomsMsgs := mock.PublishedTo("roomskel/studio1/rooms")
	assert.Len(t, roomsMsgs, 1, "rooms message should be published once")
	summaryMsgs := mock.PublishedTo("roomskel/studio1/summary")
	assert.Len(t, summaryMsgs, 1, "summary message should be published once")
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

func TestAutoExtractor_String(t *testing.T) {
	cfg := &Config{Drawings: []DrawingConfig{{ID: "unit-a"}}}
	ae := NewAutoExtractor(cfg, NewStateTracker(), "/tmp/test-data", DefaultExtractOptions())

	s := ae.String()
	if s == "" {
		t.Fatal("expected non-empty string")
	}
}
