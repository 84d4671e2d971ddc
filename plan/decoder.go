package plan

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
)

// DecodeDrawingData decodes drawing data from various formats:
// - SVG export (line/polyline elements tagged by layer)
// - Raw JSON segment list (canonical format)
// - Zlib-compressed JSON (as delivered over MQTT)
func DecodeDrawingData(data []byte) (*Drawing, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	if IsSVG(data) {
		return ParseSVGDrawing(data)
	}

	jsonBytes := data
	if data[0] != '{' {
		// Try zlib-compressed JSON
		inflated, err := inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not SVG, JSON, or zlib-compressed")
		}
		jsonBytes = inflated
	}

	if len(jsonBytes) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}

	return ParseDrawingJSON(jsonBytes)
}

// IsSVG checks whether data looks like an SVG document, tolerating a
// UTF-8 BOM and leading whitespace before the root element.
func IsSVG(data []byte) bool {
	trimmed := bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	trimmed = bytes.TrimLeft(trimmed, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<svg"))
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			// Log error but don't fail since we already have the data
			_ = closeErr
		}
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}

	return decompressed, nil
}

// DecodeDrawingFile reads and decodes a drawing file in any supported format
func DecodeDrawingFile(path string) (*Drawing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeDrawingData(data)
}
