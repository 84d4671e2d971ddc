package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunSummary()                  { m.called["RunSummary"] = true }
func (m *mockApp) RunExtract()                  { m.called["RunExtract"] = true }
func (m *mockApp) RunRender()                   { m.called["RunRender"] = true }
func (m *mockApp) RunService()                  { m.called["RunService"] = true }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Summary",
			args:           []string{"--summary", "--data-dir", "/tmp/exports"},
			expectedCalled: "RunSummary",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.DataDir != "/tmp/exports" {
					t.Errorf("expected DataDir /tmp/exports, got %s", opts.DataDir)
				}
				if !opts.SummaryOnly {
					t.Error("expected SummaryOnly true")
				}
			},
		},
		{
			name:           "Extract",
			args:           []string{"--extract", "--state-cache", "test.json", "--workers", "2"},
			expectedCalled: "RunExtract",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.StateCache != "test.json" {
					t.Errorf("expected StateCache test.json, got %s", opts.StateCache)
				}
				if opts.Workers != 2 {
					t.Errorf("expected Workers 2, got %d", opts.Workers)
				}
				if !opts.ExtractOnly {
					t.Error("expected ExtractOnly true")
				}
			},
		},
		{
			name:           "ExtractRegionMode",
			args:           []string{"--extract", "--region-mode", "raster"},
			expectedCalled: "RunExtract",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.RegionMode != "raster" {
					t.Errorf("expected RegionMode raster, got %s", opts.RegionMode)
				}
			},
		},
		{
			name:           "Render",
			args:           []string{"--render", "--output", "test.png", "--format", "both"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.OutputFile != "test.png" {
					t.Errorf("expected OutputFile test.png, got %s", opts.OutputFile)
				}
				if opts.RenderFormat != "both" {
					t.Errorf("expected RenderFormat both, got %s", opts.RenderFormat)
				}
				if !opts.RenderOnly {
					t.Error("expected RenderOnly true")
				}
			},
		},
		{
			name:           "RenderMasks",
			args:           []string{"--render-masks"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.RenderMasks {
					t.Error("expected RenderMasks true")
				}
			},
		},
		{
			name:           "VectorRendering",
			args:           []string{"--render", "--format", "vector", "--vector-format", "png", "--grid-spacing", "0.5"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.RenderFormat != "vector" {
					t.Errorf("expected RenderFormat vector, got %s", opts.RenderFormat)
				}
				if opts.VectorFormat != "png" {
					t.Errorf("expected VectorFormat png, got %s", opts.VectorFormat)
				}
				if opts.GridSpacing != 0.5 {
					t.Errorf("expected GridSpacing 0.5, got %f", opts.GridSpacing)
				}
			},
		},
		{
			name:           "MqttMode",
			args:           []string{"--mqtt", "--http-port", "9090"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.MqttMode {
					t.Error("expected MqttMode true")
				}
				if opts.HttpPort != 9090 {
					t.Errorf("expected HttpPort 9090, got %d", opts.HttpPort)
				}
			},
		},
		{
			name:           "HttpMode",
			args:           []string{"--http"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.HttpMode {
					t.Error("expected HttpMode true")
				}
				if opts.HttpPort != 8080 {
					t.Errorf("expected default HttpPort 8080, got %d", opts.HttpPort)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called", tt.expectedCalled)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if err == nil {
		t.Error("expected error from --help, got nil")
	}
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected flag.ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage of roomskel") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
	if len(app.called) != 0 {
		t.Errorf("expected no app methods on --help, called: %v", app.called)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	if err := run([]string{"--no-such-flag"}, &out, app); err == nil {
		t.Error("expected error from unknown flag, got nil")
	}
	if len(app.called) != 0 {
		t.Errorf("expected no app methods on parse error, called: %v", app.called)
	}
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{}, &out, app)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "roomskel version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}

	if !strings.Contains(out.String(), "roomskel service starting...") {
		t.Errorf("expected output to contain service starting message, got: %s", out.String())
	}

	for _, mode := range []string{"RunSummary", "RunExtract", "RunRender", "RunService"} {
		if app.called[mode] {
			t.Errorf("expected %s not to run without a mode flag", mode)
		}
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
