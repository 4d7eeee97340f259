package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Extension is the file extension of the format, including the dot.
	Extension = ".safetensors"

	prefixSize = 8
	// MaxHeaderSize bounds header allocations; real headers are far smaller.
	MaxHeaderSize = 100 * 1024 * 1024

	metadataKey = "__metadata__"
)

// ErrInvalidHeader reports a length prefix that cannot describe this file.
var ErrInvalidHeader = errors.New("invalid safetensors header")

// Is reports whether path names a safetensors file by extension.
func Is(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Extension)
}

// Header is the decoded length prefix and raw JSON of a file.
type Header struct {
	Raw []byte
}

// DataOffset is where tensor data begins.
func (h Header) DataOffset() int64 {
	return prefixSize + int64(len(h.Raw))
}

// ReadHeader reads the length prefix and header bytes from r.
func ReadHeader(r io.Reader) (Header, error) {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Header{}, fmt.Errorf("%w: read length prefix: %w", ErrInvalidHeader, err)
	}
	n := binary.LittleEndian.Uint64(prefix[:])
	if n == 0 || n > MaxHeaderSize {
		return Header{}, fmt.Errorf("%w: header length %d", ErrInvalidHeader, n)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, fmt.Errorf("%w: read %d header bytes: %w", ErrInvalidHeader, n, err)
	}
	return Header{Raw: raw}, nil
}

// ReadHeaderFile opens path and reads its header.
func ReadHeaderFile(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	return ReadHeader(f)
}

// Fields decodes the header into its top-level entries.
func (h Header) Fields() (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(h.Raw, &fields); err != nil {
		return nil, fmt.Errorf("decode header json: %w", err)
	}
	if fields == nil {
		return nil, errors.New("decode header json: not an object")
	}
	return fields, nil
}

// MetadataString returns __metadata__[key] when the header is valid JSON and
// the value is a string.
func (h Header) MetadataString(key string) (string, bool) {
	fields, err := h.Fields()
	if err != nil {
		return "", false
	}
	raw, ok := fields[metadataKey]
	if !ok {
		return "", false
	}
	var meta map[string]json.RawMessage
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", false
	}
	var value string
	if err := json.Unmarshal(meta[key], &value); err != nil {
		return "", false
	}
	return value, true
}

// WithMetadataString returns a copy of the header with __metadata__[key] set
// to value. Other entries keep their raw encoding.
func (h Header) WithMetadataString(key, value string) (Header, error) {
	fields, err := h.Fields()
	if err != nil {
		return Header{}, err
	}
	meta := map[string]json.RawMessage{}
	if raw, ok := fields[metadataKey]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return Header{}, fmt.Errorf("decode %s: %w", metadataKey, err)
		}
		if meta == nil {
			meta = map[string]json.RawMessage{}
		}
	}
	encodedValue, err := json.Marshal(value)
	if err != nil {
		return Header{}, err
	}
	meta[key] = encodedValue
	encodedMeta, err := json.Marshal(meta)
	if err != nil {
		return Header{}, err
	}
	fields[metadataKey] = encodedMeta
	raw, err := json.Marshal(fields)
	if err != nil {
		return Header{}, err
	}
	return Header{Raw: raw}, nil
}

// Encode writes the length prefix followed by the header bytes.
func (h Header) Encode(w io.Writer) error {
	var prefix [prefixSize]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(h.Raw)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(h.Raw)
	return err
}
