package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is the application version, set at build time via ldflags
var Version = "dev"

// AppOptions carries parsed command-line options into the application
type AppOptions struct {
	ConfigFile   string
	DataDir      string
	StateCache   string
	OutputFile   string
	SummaryOnly  bool
	ExtractOnly  bool
	RenderOnly   bool
	RenderMasks  bool
	RenderFormat string
	VectorFormat string
	GridSpacing  float64
	Workers      int
	RegionMode   string
	MqttMode     bool
	HttpMode     bool
	HttpPort     int
}

// appRunner is the subset of App the CLI dispatch needs, split out for testing
type appRunner interface {
	ApplyOptions(opts AppOptions)
	RunSummary()
	RunExtract()
	RunRender()
	RunService()
}

// run parses the command line and dispatches to the selected mode
func run(args []string, out io.Writer, app appRunner) error {
	fs := flag.NewFlagSet("roomskel", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to YAML configuration file")
	fs.StringVar(&opts.DataDir, "data-dir", ".", "Directory containing DrawingExport files")
	fs.StringVar(&opts.StateCache, "state-cache", ".rooms-cache.json", "Path to the extraction state cache")
	fs.StringVar(&opts.OutputFile, "output", "overview.png", "Output file for render mode")
	fs.BoolVar(&opts.SummaryOnly, "summary", false, "Print drawing summaries and exit")
	fs.BoolVar(&opts.ExtractOnly, "extract", false, "Extract rooms from drawing exports and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render overview images and exit")
	fs.BoolVar(&opts.RenderMasks, "render-masks", false, "Also dump per-room raster masks when rendering")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster, vector, or both")
	fs.StringVar(&opts.VectorFormat, "vector-format", "svg", "Vector output format: svg or png")
	fs.Float64Var(&opts.GridSpacing, "grid-spacing", 0, "Grid line spacing in drawing units (0 = config default)")
	fs.IntVar(&opts.Workers, "workers", 0, "Concurrent room extractions per drawing (0 = config default)")
	fs.StringVar(&opts.RegionMode, "region-mode", "", "Region recovery mode: auto, arrangement, or raster")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode, re-extracting rooms on drawing updates")
	fs.BoolVar(&opts.HttpMode, "http", false, "Serve rooms and overview images over HTTP")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "roomskel version: %s\n", Version)

	app.ApplyOptions(opts)

	switch {
	case opts.SummaryOnly:
		app.RunSummary()
	case opts.ExtractOnly:
		app.RunExtract()
	case opts.RenderOnly || opts.RenderMasks:
		app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
	default:
		fmt.Fprintln(out, "roomskel service starting...")
		fmt.Fprintln(out, "No mode selected. Available modes:")
		fmt.Fprintln(out, "  --summary       inspect drawing exports")
		fmt.Fprintln(out, "  --extract       extract room polygons and skeletons")
		fmt.Fprintln(out, "  --render        render overview images")
		fmt.Fprintln(out, "  --mqtt / --http run as a service")
		fmt.Fprintln(out, "Use --help for all options")
	}

	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
}
