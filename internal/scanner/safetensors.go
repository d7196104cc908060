package scanner

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Safetensors files open with an 8-byte little-endian header length followed
// by a JSON object mapping tensor names to layouts, plus an optional
// "__metadata__" string map.
const maxSafetensorsHeader = 100 << 20

// SafetensorsHeader is the part of the header worth keeping.
type SafetensorsHeader struct {
	TensorCount int
	Metadata    map[string]any
}

// IsSafetensorsPath reports whether the path has the safetensors extension.
func IsSafetensorsPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".safetensors")
}

// ReadSafetensorsHeader parses the header of a safetensors file.
func ReadSafetensorsHeader(path string) (*SafetensorsHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if headerLen == 0 || headerLen > maxSafetensorsHeader {
		return nil, fmt.Errorf("implausible header length %d", headerLen)
	}

	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var header map[string]any
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	out := &SafetensorsHeader{TensorCount: len(header)}
	if meta, ok := header["__metadata__"].(map[string]any); ok {
		out.Metadata = meta
		out.TensorCount--
	}
	return out, nil
}
