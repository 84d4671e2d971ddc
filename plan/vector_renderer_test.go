package plan

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/tdewolff/canvas"
)

func TestVectorOverview_RenderToSVG(t *testing.T) {
	r := NewVectorOverview(overviewDrawing(), overviewState())

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG failed: %v", err)
	}

	if buf.Len() == 0 {
		t.Fatal("Expected non-empty SVG output")
	}
	if !bytes.Contains(buf.Bytes(), []byte("<svg")) {
		t.Error("Expected output to contain an <svg element")
	}
	if !bytes.Contains(buf.Bytes(), []byte("path")) {
		t.Error("Expected output to contain path elements")
	}

	t.Logf("SVG output: %d bytes", buf.Len())
}

func TestVectorOverview_RenderToPNG(t *testing.T) {
	r := NewVectorOverview(overviewDrawing(), overviewState())

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG failed: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Expected a decodable PNG: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		t.Fatalf("Expected positive image dimensions, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	// A 10x6 drawing renders wider than tall
	if bounds.Dx() <= bounds.Dy() {
		t.Errorf("Expected landscape output, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	t.Logf("PNG output: %dx%d pixels", bounds.Dx(), bounds.Dy())
}

func TestVectorOverview_PNGWithCustomResolution(t *testing.T) {
	drawing := overviewDrawing()

	standard := NewVectorOverview(drawing, nil)
	var stdBuf bytes.Buffer
	if err := standard.RenderToPNG(&stdBuf); err != nil {
		t.Fatalf("RenderToPNG failed: %v", err)
	}
	stdImg, err := png.Decode(&stdBuf)
	if err != nil {
		t.Fatalf("Expected a decodable PNG: %v", err)
	}

	coarse := NewVectorOverview(drawing, nil)
	coarse.Resolution = canvas.DPMM(10)
	var coarseBuf bytes.Buffer
	if err := coarse.RenderToPNG(&coarseBuf); err != nil {
		t.Fatalf("RenderToPNG at reduced resolution failed: %v", err)
	}
	coarseImg, err := png.Decode(&coarseBuf)
	if err != nil {
		t.Fatalf("Expected a decodable PNG: %v", err)
	}

	if coarseImg.Bounds().Dx() >= stdImg.Bounds().Dx() {
		t.Errorf("Expected reduced resolution to shrink output: %d vs %d pixels wide",
			coarseImg.Bounds().Dx(), stdImg.Bounds().Dx())
	}

	t.Logf("standard %dx%d, reduced %dx%d",
		stdImg.Bounds().Dx(), stdImg.Bounds().Dy(),
		coarseImg.Bounds().Dx(), coarseImg.Bounds().Dy())
}

func TestVectorOverview_SVGAndPNGConsistency(t *testing.T) {
	r := NewVectorOverview(overviewDrawing(), overviewState())

	var svgBuf bytes.Buffer
	if err := r.RenderToSVG(&svgBuf); err != nil {
		t.Fatalf("RenderToSVG failed: %v", err)
	}

	var pngBuf bytes.Buffer
	if err := r.RenderToPNG(&pngBuf); err != nil {
		t.Fatalf("RenderToPNG failed: %v", err)
	}

	if svgBuf.Len() == 0 {
		t.Error("Expected non-empty SVG output")
	}
	if _, err := png.Decode(&pngBuf); err != nil {
		t.Errorf("Expected a decodable PNG: %v", err)
	}
}

func TestVectorOverview_PNGWithReducedPadding(t *testing.T) {
	drawing := overviewDrawing()

	padded := NewVectorOverview(drawing, nil)
	var paddedBuf bytes.Buffer
	if err := padded.RenderToPNG(&paddedBuf); err != nil {
		t.Fatalf("RenderToPNG failed: %v", err)
	}
	paddedImg, err := png.Decode(&paddedBuf)
	if err != nil {
		t.Fatalf("Expected a decodable PNG: %v", err)
	}

	tight := NewVectorOverview(drawing, nil)
	tight.Padding = 0.2
	var tightBuf bytes.Buffer
	if err := tight.RenderToPNG(&tightBuf); err != nil {
		t.Fatalf("RenderToPNG with reduced padding failed: %v", err)
	}
	tightImg, err := png.Decode(&tightBuf)
	if err != nil {
		t.Fatalf("Expected a decodable PNG: %v", err)
	}

	if tightImg.Bounds().Dx() >= paddedImg.Bounds().Dx() {
		t.Errorf("Expected reduced padding to shrink output: %d vs %d pixels wide",
			tightImg.Bounds().Dx(), paddedImg.Bounds().Dx())
	}
}

func TestVectorOverview_GridRendering(t *testing.T) {
	r := NewVectorOverview(overviewDrawing(), nil)

	var withGrid bytes.Buffer
	if err := r.RenderToSVG(&withGrid); err != nil {
		t.Fatalf("RenderToSVG failed: %v", err)
	}
	// Grid lines are dashed, nothing else is
	if !bytes.Contains(withGrid.Bytes(), []byte("stroke-dasharray")) {
		t.Error("Expected dashed grid lines in SVG output")
	}

	r.GridSpacing = 0
	var noGrid bytes.Buffer
	if err := r.RenderToSVG(&noGrid); err != nil {
		t.Fatalf("RenderToSVG without grid failed: %v", err)
	}
	if bytes.Contains(noGrid.Bytes(), []byte("stroke-dasharray")) {
		t.Error("Expected no dashed lines with grid disabled")
	}
}

func TestVectorOverview_ApplyRenderConfig(t *testing.T) {
	r := NewVectorOverview(overviewDrawing(), nil)

	r.ApplyRenderConfig(RenderConfig{GridSpacing: 2.5, VectorResolution: 20})
	if r.GridSpacing != 2.5 {
		t.Errorf("Expected grid spacing 2.5, got %v", r.GridSpacing)
	}
	if r.Resolution != canvas.DPMM(20) {
		t.Errorf("Expected resolution %v, got %v", canvas.DPMM(20), r.Resolution)
	}

	// Zero values leave the defaults alone
	fresh := NewVectorOverview(overviewDrawing(), nil)
	fresh.ApplyRenderConfig(RenderConfig{})
	if fresh.GridSpacing != 1.0 {
		t.Errorf("Expected default grid spacing 1.0, got %v", fresh.GridSpacing)
	}
	if fresh.Resolution != canvas.DPMM(50) {
		t.Errorf("Expected default resolution, got %v", fresh.Resolution)
	}
}
