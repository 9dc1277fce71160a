// Package codec centralizes how records, indexes and manifests are encoded.
//
// Changing the codec of an existing dataset is a breaking change: JSONL shards and
// curated logs written by one codec must stay readable by the same field names.
package codec

import (
	"bytes"
	"fmt"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Indenter is implemented by codecs that can produce human-readable output.
type Indenter interface {
	MarshalIndent(v any, prefix, indent string) ([]byte, error)
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MarshalLine encodes v as a single JSONL line terminated by '\n'.
// It fails if the encoding contains a raw newline.
func MarshalLine(c Codec, v any) ([]byte, error) {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec %s marshal failed: %w", c.Name(), err)
	}
	if bytes.IndexByte(b, '\n') >= 0 {
		return nil, fmt.Errorf("codec %s produced a multi-line encoding", c.Name())
	}
	return append(b, '\n'), nil
}

// MarshalIndent encodes v with two-space indentation when the codec supports it.
func MarshalIndent(c Codec, v any) ([]byte, error) {
	if c == nil {
		c = Default
	}
	if ind, ok := c.(Indenter); ok {
		return ind.MarshalIndent(v, "", "  ")
	}
	return c.Marshal(v)
}

// MustMarshal is a helper for internal tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
