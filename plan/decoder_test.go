package plan

import (
	"bytes"
	"compress/zlib"
	"os"
	"path/filepath"
	"testing"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeDrawingDataJSON(t *testing.T) {
	d, err := DecodeDrawingData([]byte(sampleDrawingJSON))
	if err != nil {
		t.Fatalf("DecodeDrawingData() error: %v", err)
	}
	if len(d.Segments) != 6 {
		t.Errorf("segments = %d, want 6", len(d.Segments))
	}
}

func TestDecodeDrawingDataZlib(t *testing.T) {
	d, err := DecodeDrawingData(deflate(t, []byte(sampleDrawingJSON)))
	if err != nil {
		t.Fatalf("DecodeDrawingData() error: %v", err)
	}
	if d.Name != "unit-a" || len(d.Segments) != 6 {
		t.Errorf("decoded drawing: name %q, %d segments", d.Name, len(d.Segments))
	}
}

func TestDecodeDrawingDataSVG(t *testing.T) {
	svg := `<svg id="plan"><g id="walls"><line x1="0" y1="0" x2="10" y2="0"/></g></svg>`
	d, err := DecodeDrawingData([]byte(svg))
	if err != nil {
		t.Fatalf("DecodeDrawingData() error: %v", err)
	}
	if len(d.Segments) != 1 || d.Segments[0].Kind != KindWall {
		t.Errorf("svg drawing: %+v", d.Segments)
	}
}

func TestDecodeDrawingDataErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0x01, 0x02, 0x03, 0x04}},
		{"zlib of garbage", deflate(t, []byte("not json"))},
		{"truncated zlib", deflate(t, []byte(sampleDrawingJSON))[:8]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDrawingData(tt.data); err == nil {
				t.Errorf("DecodeDrawingData() should fail")
			}
		})
	}
}

func TestIsSVG(t *testing.T) {
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"plain svg", "<svg></svg>", true},
		{"xml prolog", "<?xml version=\"1.0\"?><svg/>", true},
		{"bom and whitespace", "\xEF\xBB\xBF  \n<svg/>", true},
		{"json", `{"segments": []}`, false},
		{"html", "<html></html>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSVG([]byte(tt.data)); got != tt.want {
				t.Errorf("IsSVG() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeDrawingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drawing.bin")
	if err := os.WriteFile(path, deflate(t, []byte(sampleDrawingJSON)), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := DecodeDrawingFile(path)
	if err != nil {
		t.Fatalf("DecodeDrawingFile() error: %v", err)
	}
	if len(d.Segments) != 6 {
		t.Errorf("segments = %d, want 6", len(d.Segments))
	}
}
