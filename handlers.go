package main

import (
	"encoding/json"
	"fmt"
	"html"
	"image/png"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/kwv/roomskel/plan"
)

// drawingInfo is one entry in the /drawings listing
type drawingInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	SegmentCount int    `json:"segmentCount"`
	RoomCount    int    `json:"roomCount"`
	Color        string `json:"color,omitempty"`
	LastUpdate   int64  `json:"lastUpdate,omitempty"`
}

// trackedIDs returns the union of drawing and state IDs, sorted
func trackedIDs(tracker *plan.StateTracker) []string {
	seen := make(map[string]bool)
	var ids []string
	for id := range tracker.GetDrawings() {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range tracker.GetStates() {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// withRequestLogging wraps a handler with a request log line
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(tracker *plan.StateTracker, config *plan.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status      string `json:"status"`
			Timestamp   string `json:"timestamp"`
			HasDrawings bool   `json:"hasDrawings"`
		}{
			Status:      "ok",
			Timestamp:   time.Now().Format(time.RFC3339),
			HasDrawings: tracker.HasDrawings(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("[HTTP] Error encoding health response: %v", err)
		}
	})

	// Listing of all known drawings with extraction status
	mux.HandleFunc("/drawings", func(w http.ResponseWriter, r *http.Request) {
		drawings := tracker.GetDrawings()
		states := tracker.GetStates()

		list := make([]drawingInfo, 0, len(drawings))
		for _, id := range trackedIDs(tracker) {
			info := drawingInfo{ID: id, Color: tracker.GetColor(id)}
			if d := drawings[id]; d != nil {
				info.Name = d.Name
				info.SegmentCount = len(d.Segments)
			}
			if s := states[id]; s != nil {
				info.RoomCount = len(s.Rooms)
				info.LastUpdate = s.LastUpdate
				if info.SegmentCount == 0 {
					info.SegmentCount = s.SegmentCount
				}
				if info.Name == "" {
					info.Name = s.Name
				}
			}
			list = append(list, info)
		}

		w.Header().Set("Content-Type", "application/json")
		noCache(w)
		if err := json.NewEncoder(w).Encode(list); err != nil {
			log.Printf("[HTTP] Error encoding drawings list: %v", err)
		}
	})

	// Merged GeoJSON across every extracted drawing
	mux.HandleFunc("/rooms.geojson", func(w http.ResponseWriter, r *http.Request) {
		states := tracker.GetStates()
		if len(states) == 0 {
			http.Error(w, "No extractions available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		noCache(w)
		if err := json.NewEncoder(w).Encode(plan.StatesToFeatureCollection(states)); err != nil {
			log.Printf("[HTTP] Error encoding merged GeoJSON: %v", err)
		}
	})

	// Full extraction state for one drawing
	mux.HandleFunc("/drawings/{id}/rooms.json", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		state := tracker.GetState(id)
		if state == nil {
			http.Error(w, fmt.Sprintf("No extraction for drawing %q", id), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		noCache(w)
		if err := json.NewEncoder(w).Encode(state); err != nil {
			log.Printf("[HTTP] Error encoding rooms for %s: %v", id, err)
		}
	})

	// GeoJSON for one drawing
	mux.HandleFunc("/drawings/{id}/rooms.geojson", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		state := tracker.GetState(id)
		if state == nil {
			http.Error(w, fmt.Sprintf("No extraction for drawing %q", id), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		noCache(w)
		if err := json.NewEncoder(w).Encode(plan.StateToFeatureCollection(state)); err != nil {
			log.Printf("[HTTP] Error encoding GeoJSON for %s: %v", id, err)
		}
	})

	// Raster overview image
	mux.HandleFunc("/drawings/{id}/overview.png", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		drawing := tracker.GetDrawing(id)
		state := tracker.GetState(id)
		if drawing == nil && state == nil {
			http.Error(w, fmt.Sprintf("Unknown drawing %q", id), http.StatusNotFound)
			return
		}

		renderer := plan.NewOverviewRenderer(drawing, state)
		if !renderer.HasDrawableContent() {
			log.Printf("[HTTP] No drawable content for %s", id)
			http.Error(w, "No drawable content", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		noCache(w)
		if err := png.Encode(w, renderer.Render()); err != nil {
			log.Printf("[HTTP] Error encoding PNG for %s: %v", id, err)
		}
	})

	// Vector overview image
	mux.HandleFunc("/drawings/{id}/overview.svg", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		drawing := tracker.GetDrawing(id)
		state := tracker.GetState(id)
		if drawing == nil && state == nil {
			http.Error(w, fmt.Sprintf("Unknown drawing %q", id), http.StatusNotFound)
			return
		}

		vector := plan.NewVectorOverview(drawing, state)
		if config != nil {
			vector.ApplyRenderConfig(config.Render)
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		noCache(w)
		if err := vector.RenderToSVG(w); err != nil {
			log.Printf("[HTTP] Error rendering SVG for %s: %v", id, err)
		}
	})

	// HTML index with an overview card per drawing
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		states := tracker.GetStates()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head>
<title>roomskel</title>
<style>
  body { font-family: sans-serif; margin: 2em; background: #fafafa; }
  .drawings { display: flex; flex-wrap: wrap; gap: 2em; }
  figure { margin: 0; padding: 1em; background: #fff; border: 1px solid #ddd; border-radius: 4px; }
  figure img { max-width: 420px; display: block; }
  figcaption { margin-top: 0.5em; color: #333; }
</style>
</head>
<body>
<h1>Room Extraction Overview</h1>
<div class="drawings">
`)
		for _, id := range trackedIDs(tracker) {
			rooms := 0
			if s := states[id]; s != nil {
				rooms = len(s.Rooms)
			}
			safe := html.EscapeString(id)
			fmt.Fprintf(w, "<figure><a href=\"/drawings/%s/rooms.json\"><img src=\"/drawings/%s/overview.svg\" alt=\"%s\"></a><figcaption>%s (%d rooms)</figcaption></figure>\n",
				safe, safe, safe, safe, rooms)
		}
		fmt.Fprint(w, `</div>
</body>
</html>
`)
	})

	return withRequestLogging(mux)
}
