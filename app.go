package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/kwv/roomskel/plan"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *plan.Config
	StateTracker *plan.StateTracker
	MQTTClient   *plan.MQTTClient
	Publisher    *plan.Publisher

	// CLI options (effectively dependencies)
	ConfigFile   string
	DataDir      string
	StateCache   string
	OutputFile   string
	RenderFormat string
	VectorFormat string
	GridSpacing  float64
	Workers      int
	RegionMode   string
	RenderMasks  bool
	MqttMode     bool
	HttpMode     bool
	HttpPort     int
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: plan.NewStateTracker(),
	}
}

// ApplyOptions copies parsed command-line options onto the App
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataDir = opts.DataDir
	a.StateCache = opts.StateCache
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.VectorFormat = opts.VectorFormat
	a.GridSpacing = opts.GridSpacing
	a.Workers = opts.Workers
	a.RegionMode = opts.RegionMode
	a.RenderMasks = opts.RenderMasks
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.HttpPort = opts.HttpPort
}

// resolvePaths anchors the default config and cache paths at the data
// directory so `-data-dir /some/dir` finds everything in one place.
// Explicitly set paths are left alone.
func (a *App) resolvePaths() (configPath, cachePath string) {
	configPath = a.ConfigFile
	cachePath = a.StateCache
	if a.DataDir != "" && a.DataDir != "." {
		if configPath == "config.yaml" {
			configPath = filepath.Join(a.DataDir, "config.yaml")
		}
		if cachePath == ".rooms-cache.json" {
			cachePath = filepath.Join(a.DataDir, ".rooms-cache.json")
		}
	}
	return configPath, cachePath
}

// exportName derives the drawing ID from an export filename.
// "DrawingExport-unit-a-20260101T0930.json" becomes "unit-a".
func exportName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.TrimPrefix(name, "DrawingExport-")
	return strings.Split(name, "-2")[0] // Strip timestamp suffix
}

// exportFiles lists drawing export files in the data directory, falling
// back to the current directory when none are found there
func (a *App) exportFiles() []string {
	dirs := []string{a.DataDir}
	if a.DataDir != "." && a.DataDir != "" {
		dirs = append(dirs, ".")
	}
	for _, dir := range dirs {
		var files []string
		for _, pattern := range []string{"DrawingExport-*.json", "DrawingExport-*.svg"} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				log.Printf("Warning: bad export glob in %s: %v", dir, err)
				continue
			}
			files = append(files, matches...)
		}
		if len(files) > 0 {
			sort.Strings(files)
			return files
		}
	}
	return nil
}

// loadExports decodes every drawing export found in the data directory,
// keyed by drawing ID. Later files win when a drawing has several exports.
func (a *App) loadExports() map[string]*plan.Drawing {
	drawings := make(map[string]*plan.Drawing)
	for _, file := range a.exportFiles() {
		name := exportName(file)
		drawing, err := plan.DecodeDrawingFile(file)
		if err != nil {
			log.Printf("Warning: Failed to decode %s: %v", filepath.Base(file), err)
			continue
		}
		drawings[name] = drawing
		log.Printf("Loaded drawing %s from %s (%d segments)", name, filepath.Base(file), len(drawing.Segments))
	}
	return drawings
}

// loadOptionalConfig loads the config file if one exists. The offline
// modes work without a config, falling back to extraction defaults.
func (a *App) loadOptionalConfig() *plan.Config {
	configPath, _ := a.resolvePaths()
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}
	config, err := plan.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config %s: %v", configPath, err)
		return nil
	}
	log.Printf("Loaded config from %s", configPath)
	return config
}

// resolveExtractOptions merges config extraction settings with CLI overrides
func (a *App) resolveExtractOptions(config *plan.Config) plan.ExtractOptions {
	opts := plan.DefaultExtractOptions()
	if config != nil {
		opts = plan.ExtractOptionsFromConfig(config.Extraction)
	}
	if a.Workers > 0 {
		opts.Workers = a.Workers
	}
	if a.RegionMode != "" {
		mode, err := plan.ParseRegionMode(a.RegionMode)
		if err != nil {
			log.Fatalf("Invalid --region-mode: %v", err)
		}
		opts.RegionMode = mode
	}
	return opts
}

// RunSummary prints a digest of every drawing export and exits
func (a *App) RunSummary() {
	files := a.exportFiles()
	if len(files) == 0 {
		log.Fatalf("No DrawingExport-* files found in %s", a.DataDir)
	}
	fmt.Printf("Found %d drawing export(s)\n\n", len(files))
	for _, file := range files {
		a.summarizeExport(file)
	}
}

// summarizeExport prints the parse results for a single export file
func (a *App) summarizeExport(path string) {
	fmt.Printf("=== %s ===\n", exportName(path))
	fmt.Printf("File: %s\n", filepath.Base(path))

	drawing, err := plan.DecodeDrawingFile(path)
	if err != nil {
		fmt.Printf("ERROR: %v\n\n", err)
		return
	}

	s := plan.Summarize(drawing)
	units := s.Units
	if units == "" {
		units = "unspecified"
	}
	fmt.Printf("Units: %s\n", units)
	fmt.Printf("Segments: %d (%d walls, %d doors, %d windows)\n",
		s.SegmentCount, s.WallCount, s.DoorCount, s.WindowCount)
	if s.SegmentCount > 0 {
		fmt.Printf("Bounds: (%.2f, %.2f) - (%.2f, %.2f), %.2f x %.2f\n",
			s.Min.X, s.Min.Y, s.Max.X, s.Max.Y, s.Width, s.Height)
		fmt.Printf("Total wall length: %.2f\n", s.TotalWallLength)

		hist := plan.WallAngles(drawing.Segments)
		if dominant := hist.DominantAngles(4); len(dominant) > 0 {
			angles := make([]string, len(dominant))
			for i, angle := range dominant {
				angles[i] = fmt.Sprintf("%.0f°", angle)
			}
			fmt.Printf("Dominant wall angles: %s\n", strings.Join(angles, ", "))
		}
		fmt.Printf("Open wall endpoints: %d\n", plan.CountOpenEndpoints(drawing.Segments, 0))
	}
	fmt.Println()
}

// RunExtract extracts rooms from every drawing export and writes the room
// records, GeoJSON files and the state cache into the data directory
func (a *App) RunExtract() {
	drawings := a.loadExports()
	if len(drawings) == 0 {
		log.Fatalf("No DrawingExport-* files found in %s", a.DataDir)
	}
	fmt.Printf("Found %d drawing(s)\n\n", len(drawings))

	config := a.loadOptionalConfig()
	opts := a.resolveExtractOptions(config)

	ids := make([]string, 0, len(drawings))
	for id := range drawings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a.StateTracker.UpdateDrawing(id, drawings[id])
		state, err := a.StateTracker.UpdateExtraction(id, opts)
		if err != nil {
			log.Printf("Warning: extraction failed for %s: %v", id, err)
			continue
		}
		a.printExtraction(state)
		a.writeExtraction(id, state)
	}

	merged := plan.StatesToFeatureCollection(a.StateTracker.GetStates())
	if err := a.writeJSON(filepath.Join(a.DataDir, "rooms.geojson"), merged); err != nil {
		log.Printf("Warning: %v", err)
	}

	_, cachePath := a.resolvePaths()
	if err := plan.SaveStates(a.StateTracker.GetStates(), cachePath); err != nil {
		log.Printf("Warning: Failed to save state cache: %v", err)
	} else {
		fmt.Printf("State cache updated: %s\n", cachePath)
	}
}

// printExtraction prints a per-room digest for one drawing
func (a *App) printExtraction(state *plan.DrawingState) {
	fmt.Printf("=== %s ===\n", state.ID)
	fmt.Printf("Rooms: %d\n", len(state.Rooms))
	for _, room := range state.Rooms {
		nodes, edges := 0, 0
		if room.Skeleton != nil {
			nodes, edges = len(room.Skeleton.Nodes), len(room.Skeleton.Edges)
		}
		fmt.Printf("  [%d] %-10s area=%.2f perimeter=%.2f skeleton=%d nodes / %d edges\n",
			room.Index, room.Status, room.Area, room.Perimeter, nodes, edges)
		if room.Diagnostic != "" {
			fmt.Printf("      %s\n", room.Diagnostic)
		}
	}
	for _, warning := range state.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
	fmt.Println()
}

// writeExtraction writes one drawing's room records and GeoJSON next to the exports
func (a *App) writeExtraction(id string, state *plan.DrawingState) {
	recordsPath := filepath.Join(a.DataDir, fmt.Sprintf("rooms-%s.json", id))
	if err := a.writeJSON(recordsPath, state); err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	geoPath := filepath.Join(a.DataDir, fmt.Sprintf("rooms-%s.geojson", id))
	if err := a.writeJSON(geoPath, plan.StateToFeatureCollection(state)); err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	fmt.Printf("Wrote %s and %s\n", filepath.Base(recordsPath), filepath.Base(geoPath))
}

// writeJSON marshals v with indentation and writes it to path
func (a *App) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RunRender renders overview images for every drawing export and exits.
// Extraction states come from the cache when present, otherwise rooms are
// extracted on the fly.
func (a *App) RunRender() {
	drawings := a.loadExports()
	if len(drawings) == 0 {
		log.Fatalf("No DrawingExport-* files found in %s", a.DataDir)
	}

	format := a.RenderFormat
	if format == "" {
		format = "raster"
	}
	if format != "raster" && format != "vector" && format != "both" {
		log.Fatalf("Invalid --format %q: use raster, vector, or both", format)
	}
	if a.VectorFormat != "" && a.VectorFormat != "svg" && a.VectorFormat != "png" {
		log.Fatalf("Invalid --vector-format %q: use svg or png", a.VectorFormat)
	}

	config := a.loadOptionalConfig()
	opts := a.resolveExtractOptions(config)

	_, cachePath := a.resolvePaths()
	states, err := plan.LoadStates(cachePath)
	if err != nil {
		states = nil
	} else {
		log.Printf("Loaded %d cached extraction state(s) from %s", len(states), cachePath)
	}

	ids := make([]string, 0, len(drawings))
	for id := range drawings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		drawing := drawings[id]
		a.StateTracker.UpdateDrawing(id, drawing)

		state := states[id]
		if state == nil {
			state, err = a.StateTracker.UpdateExtraction(id, opts)
			if err != nil {
				log.Printf("Warning: extraction failed for %s, rendering walls only: %v", id, err)
				state = nil
			}
		}

		a.renderDrawing(id, drawing, state, config, format, len(ids) > 1)

		if a.RenderMasks && state != nil {
			masksDir := filepath.Join(a.DataDir, "masks-"+id)
			paths, err := plan.DumpRoomMasks(state, masksDir, opts.RasterSize)
			if err != nil {
				log.Printf("Warning: failed to dump room masks for %s: %v", id, err)
			} else {
				fmt.Printf("Created %d room mask file(s) in %s\n", len(paths), masksDir)
			}
		}
	}
}

// renderDrawing writes raster and/or vector overviews for one drawing.
// With multiple drawings the drawing ID is appended to the output name.
func (a *App) renderDrawing(id string, drawing *plan.Drawing, state *plan.DrawingState, config *plan.Config, format string, multi bool) {
	outputPath := a.OutputFile
	if multi {
		ext := filepath.Ext(outputPath)
		outputPath = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(outputPath, ext), id, ext)
	}

	if format == "raster" || format == "both" {
		renderer := plan.NewOverviewRenderer(drawing, state)
		if !renderer.HasDrawableContent() {
			log.Printf("Warning: nothing to render for %s", id)
		} else {
			rasterPath := outputPath
			if !strings.HasSuffix(rasterPath, ".png") {
				rasterPath = strings.TrimSuffix(rasterPath, filepath.Ext(rasterPath)) + ".png"
			}
			if err := renderer.SavePNG(rasterPath); err != nil {
				log.Fatalf("Failed to render %s: %v", id, err)
			}
			fmt.Printf("Created raster overview: %s\n", rasterPath)
		}
	}

	if format == "vector" || format == "both" {
		vector := plan.NewVectorOverview(drawing, state)
		if config != nil {
			vector.ApplyRenderConfig(config.Render)
		}
		if a.GridSpacing > 0 {
			vector.GridSpacing = a.GridSpacing
		}

		base := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
		if a.VectorFormat == "png" {
			vectorPath := base + ".png"
			if format == "both" {
				vectorPath = base + "-vector.png" // Raster overview owns the plain .png name
			}
			if err := vector.SavePNG(vectorPath); err != nil {
				log.Fatalf("Failed to render vector PNG for %s: %v", id, err)
			}
			fmt.Printf("Created vector overview: %s\n", vectorPath)
		} else {
			vectorPath := base + ".svg"
			if err := vector.SaveSVG(vectorPath); err != nil {
				log.Fatalf("Failed to render SVG for %s: %v", id, err)
			}
			fmt.Printf("Created vector overview: %s\n", vectorPath)
		}
	}
}

// RunService starts the MQTT and/or HTTP service and blocks until interrupted
func (a *App) RunService() {
	// 1. Resolve paths relative to the data directory
	configPath, cachePath := a.resolvePaths()

	// 2. Config is mandatory in service mode
	config, err := plan.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	a.Config = config
	fmt.Printf("Loaded config from %s (%d drawings)\n", configPath, len(config.Drawings))

	// 3. State tracker backed by the on-disk cache
	a.StateTracker = plan.NewStateTrackerWithCache(cachePath)
	for _, dc := range config.Drawings {
		if dc.Color != "" {
			a.StateTracker.SetColor(dc.ID, dc.Color)
		}
	}

	// 4. Seed geometry from prior exports, extracting rooms for any
	// drawing the cache does not cover
	opts := a.resolveExtractOptions(config)
	for id, drawing := range a.loadExports() {
		a.StateTracker.UpdateDrawing(id, drawing)
		if a.StateTracker.GetState(id) == nil {
			if _, err := a.StateTracker.UpdateExtraction(id, opts); err != nil {
				log.Printf("Warning: initial extraction failed for %s: %v", id, err)
			}
		}
	}

	// 5. MQTT: live drawing updates feed the auto-extractor, results
	// are published back to the broker
	if a.MqttMode {
		autoExtractor := plan.NewAutoExtractor(config, a.StateTracker, a.DataDir, opts)
		autoExtractor.SetExtractedHandler(func(state *plan.DrawingState) {
			if a.Publisher == nil {
				return
			}
			if err := a.Publisher.PublishRooms(state); err != nil {
				log.Printf("Error publishing rooms for %s: %v", state.ID, err)
			}
		})

		mqttClient, err := plan.InitMQTT(config, autoExtractor.OnDrawingPayload)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT service mode requires mqtt.broker in the config")
		}
		mqttClient.SetSaveHandler(autoExtractor.OnSaveEvent)
		a.MQTTClient = mqttClient

		a.Publisher = plan.NewPublisher(mqttClient.GetClient())
		a.Publisher.SetPublishPrefix(config.MQTT.PublishPrefix)
		fmt.Println("MQTT room publisher initialized")
	}

	// 6. HTTP endpoints for rooms, GeoJSON and overview images
	if a.HttpMode {
		server := newHTTPServer(a.StateTracker, config)
		addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
		go func() {
			log.Printf("HTTP server listening on %s", addr)
			if err := http.ListenAndServe(addr, server); err != nil {
				log.Fatalf("HTTP server failed: %v", err)
			}
		}()
	}

	a.printServiceInfo(config)

	// 7. Block until interrupted
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}

// printServiceInfo prints the running service's topics and endpoints
func (a *App) printServiceInfo(config *plan.Config) {
	fmt.Println("\nService Running")
	fmt.Println("===============")
	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		for _, dc := range config.Drawings {
			fmt.Printf("    - %s (%s)\n", dc.Topic, dc.ID)
		}
		prefix := "roomskel"
		if a.Publisher != nil {
			prefix = a.Publisher.TopicPrefix()
		}
		fmt.Printf("  Publishing rooms to: %s/{drawing}/rooms\n", prefix)
		fmt.Printf("  Publishing summaries to: %s/{drawing}/summary\n", prefix)
	}
	if a.HttpMode {
		fmt.Println("\nHTTP endpoints:")
		fmt.Printf("  http://localhost:%d/health\n", a.HttpPort)
		fmt.Printf("  http://localhost:%d/drawings\n", a.HttpPort)
		fmt.Printf("  http://localhost:%d/drawings/{id}/rooms.json\n", a.HttpPort)
		fmt.Printf("  http://localhost:%d/drawings/{id}/rooms.geojson\n", a.HttpPort)
		fmt.Printf("  http://localhost:%d/drawings/{id}/overview.png\n", a.HttpPort)
		fmt.Printf("  http://localhost:%d/drawings/{id}/overview.svg\n", a.HttpPort)
		fmt.Printf("  http://localhost:%d/rooms.geojson\n", a.HttpPort)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
