package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decode parses a study metadata blob. Gzip compressed blobs, as returned by
// the image store, are decompressed first; plain JSON is accepted as is.
func Decode(blob []byte) (*Tree, error) {
	raw, err := Decompress(blob)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree Tree
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}
	return &tree, nil
}

// Decompress returns blob gunzipped, or blob itself when it is not gzip data.
func Decompress(blob []byte) ([]byte, error) {
	if !bytes.HasPrefix(blob, gzipMagic) {
		return blob, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip metadata: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress metadata: %w", err)
	}
	return raw, nil
}

// Encode serializes tree as gzip compressed JSON, the form Decode reads.
func Encode(tree *Tree) ([]byte, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress metadata: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress metadata: %w", err)
	}
	return buf.Bytes(), nil
}
