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

const (
	// DefaultMinExtractionInterval is the minimum time between extractions
	// for the same drawing (debounce). CAD exporters tend to autosave in
	// bursts; one extraction per burst is enough.
	DefaultMinExtractionInterval = 30 * time.Second
)

// AutoExtractor orchestrates room extraction when drawing exports arrive.
// It debounces rapid re-publishes of the same drawing, validates incoming
// geometry, persists exports to the data directory, and hands extraction
// results to a registered callback (typically the MQTT publisher).
type AutoExtractor struct {
	config       *Config
	stateTracker *StateTracker
	dataDir      string
	extractOpts  ExtractOptions

	mu            sync.Mutex
	lastExtracted map[string]time.Time
	onExtracted   func(*DrawingState)
}

// NewAutoExtractor creates an AutoExtractor ready to handle drawing events.
func NewAutoExtractor(config *Config, st *StateTracker, dataDir string, opts ExtractOptions) *AutoExtractor {
	return &AutoExtractor{
		config:        config,
		stateTracker:  st,
		dataDir:       dataDir,
		extractOpts:   opts,
		lastExtracted: make(map[string]time.Time),
	}
}

// SetExtractedHandler registers a callback invoked after each successful
// extraction. The callback receives a deep copy of the new state.
func (ae *AutoExtractor) SetExtractedHandler(handler func(*DrawingState)) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ae.onExtracted = handler
}

// OnDrawingPayload is the MessageHandler callback registered with the MQTT
// client. It is safe to call from any goroutine.
func (ae *AutoExtractor) OnDrawingPayload(drawingID string, rawPayload []byte, drawing *Drawing, err error) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	log.Printf("[AUTO-EXT] Drawing export received for %s (%d bytes)", drawingID, len(rawPayload))

	// --- Step 1: Handle undecodable exports ---
	if err != nil || drawing == nil {
		// Keep the raw payload on disk so broken exports can be inspected.
		if ae.dataDir != "" && len(rawPayload) > 0 {
			savePath := filepath.Join(ae.dataDir, fmt.Sprintf("DrawingExport-%s.raw", drawingID))
			if werr := os.WriteFile(savePath, rawPayload, 0644); werr != nil {
				log.Printf("[AUTO-EXT] %s: failed to save raw export to %s: %v", drawingID, savePath, werr)
			} else {
				log.Printf("[AUTO-EXT] %s: saved undecodable export to %s", drawingID, savePath)
			}
		}
		log.Printf("[AUTO-EXT] %s: export could not be decoded: %v (preserving existing results)", drawingID, err)
		return
	}

	// --- Step 2: Validate geometry ---
	if !HasGeometry(drawing) {
		log.Printf("[AUTO-EXT] %s: export has no usable geometry, skipping", drawingID)
		return
	}
	summary := Summarize(drawing)
	log.Printf("[AUTO-EXT] %s: export validated (segments=%d, walls=%d, extent=%.1fx%.1f)",
		drawingID, summary.SegmentCount, summary.WallCount, summary.Width, summary.Height)

	// --- Step 3: Persist the export and update the tracker ---
	ae.saveExport(drawingID, drawing)
	ae.stateTracker.UpdateDrawing(drawingID, drawing)

	// --- Step 4: Debounced extraction ---
	if ae.shouldSkip(drawingID) {
		return
	}
	ae.extract(drawingID)
}

// OnSaveEvent is the SaveHandler callback registered with the MQTT client.
// A save event means the operator saved the document in the CAD tool, so the
// authoritative export is fetched from the drawing's HTTP API.
func (ae *AutoExtractor) OnSaveEvent(drawingID string) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	log.Printf("[AUTO-EXT] Save event received for %s", drawingID)

	// --- Step 1: Debounce ---
	if ae.shouldSkip(drawingID) {
		return
	}

	// --- Step 2: Look up drawing config for API URL ---
	dc := ae.config.GetDrawingByID(drawingID)
	if dc == nil {
		log.Printf("[AUTO-EXT] %s: drawing not found in config, skipping", drawingID)
		return
	}
	if dc.ApiURL == nil || *dc.ApiURL == "" {
		log.Printf("[AUTO-EXT] %s: no apiUrl configured, skipping fetch", drawingID)
		return
	}

	// --- Step 3: Fetch fresh export from the HTTP API ---
	log.Printf("[AUTO-EXT] %s: fetching export from %s", drawingID, *dc.ApiURL)
	drawing, err := FetchDrawingFromAPI(*dc.ApiURL)
	if err != nil {
		log.Printf("[AUTO-EXT] %s: failed to fetch export: %v (preserving existing results)", drawingID, err)
		return
	}

	// --- Step 4: Validate geometry ---
	if !HasGeometry(drawing) {
		log.Printf("[AUTO-EXT] %s: fetched export has no usable geometry, skipping", drawingID)
		return
	}
	summary := Summarize(drawing)
	log.Printf("[AUTO-EXT] %s: export validated (segments=%d, walls=%d, extent=%.1fx%.1f)",
		drawingID, summary.SegmentCount, summary.WallCount, summary.Width, summary.Height)

	// --- Step 5: Persist, update, extract ---
	ae.saveExport(drawingID, drawing)
	ae.stateTracker.UpdateDrawing(drawingID, drawing)
	ae.extract(drawingID)
}

// saveExport writes the decoded drawing to the data directory (same naming
// convention for MQTT and HTTP sourced exports).
func (ae *AutoExtractor) saveExport(drawingID string, drawing *Drawing) {
	if ae.dataDir == "" {
		return
	}
	savePath := filepath.Join(ae.dataDir, fmt.Sprintf("DrawingExport-%s.json", drawingID))
	jsonBytes, err := json.MarshalIndent(drawing, "", "  ")
	if err != nil {
		log.Printf("[AUTO-EXT] %s: failed to marshal export for saving: %v", drawingID, err)
		return
	}
	if err := os.WriteFile(savePath, jsonBytes, 0644); err != nil {
		log.Printf("[AUTO-EXT] %s: failed to save export to %s: %v", drawingID, savePath, err)
		return
	}
	log.Printf("[AUTO-EXT] %s: saved export to %s", drawingID, savePath)
}

// shouldSkip reports whether extraction for the drawing is inside the
// debounce window. Caller must hold ae.mu.
func (ae *AutoExtractor) shouldSkip(drawingID string) bool {
	if last, ok := ae.lastExtracted[drawingID]; ok {
		if time.Since(last) < DefaultMinExtractionInterval {
			log.Printf("[AUTO-EXT] %s: skipping, last extracted %s ago (min interval %s)",
				drawingID, time.Since(last).Round(time.Second), DefaultMinExtractionInterval)
			return true
		}
	}

	// Also consult the persisted state timestamp (covers restarts).
	if state := ae.stateTracker.GetState(drawingID); state != nil && state.LastUpdate > 0 {
		if since := time.Since(time.Unix(state.LastUpdate, 0)); since < DefaultMinExtractionInterval {
			log.Printf("[AUTO-EXT] %s: skipping, cached results are %s old (min interval %s)",
				drawingID, since.Round(time.Second), DefaultMinExtractionInterval)
			return true
		}
	}

	return false
}

// extract runs room extraction for the drawing and notifies the callback.
// Caller must hold ae.mu.
func (ae *AutoExtractor) extract(drawingID string) {
	log.Printf("[AUTO-EXT] %s: running room extraction", drawingID)

	state, err := ae.stateTracker.UpdateExtraction(drawingID, ae.extractOpts)
	if err != nil {
		log.Printf("[AUTO-EXT] %s: extraction failed: %v (preserving existing results)", drawingID, err)
		return
	}

	ae.lastExtracted[drawingID] = time.Now()
	log.Printf("[AUTO-EXT] %s: extraction complete (%d rooms, %d warnings)",
		drawingID, len(state.Rooms), len(state.Warnings))

	if ae.onExtracted != nil {
		ae.onExtracted(state)
	}
}

// String implements fmt.Stringer for debug logging.
func (ae *AutoExtractor) String() string {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return fmt.Sprintf("AutoExtractor{dataDir=%s, drawings=%d, lastExtracted=%d}",
		ae.dataDir, len(ae.config.Drawings), len(ae.lastExtracted))
}
