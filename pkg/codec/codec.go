// Package codec converts cached values to and from the byte payloads stored
// in the cache backend.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCodec is returned by New for an unsupported codec name.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Supported codec names.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
	NameCBOR    = "cbor"
)

// New returns the codec registered under name (case-insensitive).
func New[V any](name string) (Codec[V], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON:
		return JSON[V]{}, nil
	case NameMsgpack:
		return Msgpack[V]{}, nil
	case NameCBOR:
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, fmt.Errorf("build cbor codec: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Valid reports whether name selects a supported codec.
func Valid(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON, NameMsgpack, NameCBOR:
		return true
	}
	return false
}
