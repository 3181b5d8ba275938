// Package codec serializes item and field values for backends that store
// raw bytes.
//
// Values handled by collections are loosely typed (strings, numbers, bools,
// nested objects and arrays), so the collection-facing codecs operate on any.
// Decoded objects are always map[string]any regardless of the codec.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
