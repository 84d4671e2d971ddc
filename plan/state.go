package plan

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateTracker holds the latest drawing and extraction result per drawing
// ID for the HTTP endpoints and MQTT publisher. All methods are safe for
// concurrent use.
type StateTracker struct {
	mu        sync.RWMutex
	drawings  map[string]*Drawing
	states    map[string]*DrawingState
	colors    map[string]string // drawing ID -> hex color
	cachePath string            // path to .rooms.json cache file; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		drawings: make(map[string]*Drawing),
		states:   make(map[string]*DrawingState),
		colors:   make(map[string]string),
	}
}

// NewStateTrackerWithCache creates a state tracker that persists extraction
// states to the given cache file path. If the file exists, the cached
// states are loaded on creation so restarts serve results immediately.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := NewStateTracker()
	st.cachePath = cachePath
	if cachePath != "" {
		if states, err := LoadStates(cachePath); err == nil {
			st.states = states
		}
	}
	return st
}

// SetColor sets the render color for a drawing
func (st *StateTracker) SetColor(drawingID, hexColor string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.colors[drawingID] = hexColor
}

// GetColor returns the render color for a drawing, or "" if unset.
func (st *StateTracker) GetColor(drawingID string) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.colors[drawingID]
}

// UpdateDrawing stores the latest decoded drawing for an ID
func (st *StateTracker) UpdateDrawing(drawingID string, d *Drawing) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.drawings[drawingID] = d
}

// GetDrawing returns the latest drawing for an ID, or nil
func (st *StateTracker) GetDrawing(drawingID string) *Drawing {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.drawings[drawingID]
}

// GetDrawings returns all current drawings
func (st *StateTracker) GetDrawings() map[string]*Drawing {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*Drawing)
	for k, v := range st.drawings {
		result[k] = v
	}
	return result
}

// HasDrawings returns true if at least one drawing has been ingested
func (st *StateTracker) HasDrawings() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.drawings) > 0
}

// GetState returns a copy of the extraction state for an ID, or nil.
func (st *StateTracker) GetState(drawingID string) *DrawingState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return cloneState(st.states[drawingID])
}

// GetStates returns copies of all extraction states keyed by drawing ID.
func (st *StateTracker) GetStates() map[string]*DrawingState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*DrawingState, len(st.states))
	for k, v := range st.states {
		result[k] = cloneState(v)
	}
	return result
}

// UpdateExtraction runs room extraction on the stored drawing and records
// the result as the drawing's current state. The previous state survives
// when extraction fails outright. The updated state set is persisted to
// the cache file when a cache path is configured.
func (st *StateTracker) UpdateExtraction(drawingID string, opts ExtractOptions) (*DrawingState, error) {
	st.mu.RLock()
	d := st.drawings[drawingID]
	cachePath := st.cachePath
	st.mu.RUnlock()

	if d == nil {
		return nil, fmt.Errorf("no drawing stored for %q", drawingID)
	}

	result, err := ExtractRooms(d.Segments, opts)
	if err != nil {
		return nil, fmt.Errorf("extracting rooms for %q: %w", drawingID, err)
	}

	state := &DrawingState{
		ID:           drawingID,
		Name:         d.Name,
		SegmentCount: len(d.Segments),
		Rooms:        result.Rooms,
		Warnings:     result.Warnings,
		LastUpdate:   time.Now().Unix(),
	}
	if state.Rooms == nil {
		state.Rooms = make([]RoomRecord, 0)
	}

	st.mu.Lock()
	st.states[drawingID] = state
	states := make(map[string]*DrawingState, len(st.states))
	for k, v := range st.states {
		states[k] = v
	}
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveStates(states, cachePath); err != nil {
			log.Printf("warning: failed to save rooms cache: %v", err)
		}
	}

	return cloneState(state), nil
}

// cloneState deep-copies a drawing state so callers cannot mutate the
// tracker's copy through shared slices.
func cloneState(s *DrawingState) *DrawingState {
	if s == nil {
		return nil
	}
	out := *s
	out.Rooms = make([]RoomRecord, len(s.Rooms))
	for i, r := range s.Rooms {
		out.Rooms[i] = cloneRecord(r)
	}
	out.Warnings = append([]string(nil), s.Warnings...)
	return &out
}

func cloneRecord(r RoomRecord) RoomRecord {
	out := r
	out.Polygon = append([]Point(nil), r.Polygon...)
	if r.Skeleton != nil {
		sk := &SkeletonGraph{
			Nodes: append([]SkeletonNode(nil), r.Skeleton.Nodes...),
			Edges: append([]SkeletonEdge(nil), r.Skeleton.Edges...),
		}
		out.Skeleton = sk
	}
	return out
}

// SaveStates writes extraction states to disk as JSON.
func SaveStates(states map[string]*DrawingState, path string) error {
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal states: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write rooms cache: %w", err)
	}
	return nil
}

// LoadStates reads extraction states from a JSON file on disk.
func LoadStates(path string) (map[string]*DrawingState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms cache: %w", err)
	}
	states := make(map[string]*DrawingState)
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("unmarshal rooms cache: %w", err)
	}
	return states, nil
}
