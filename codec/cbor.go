package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var anyMap = reflect.TypeOf(map[string]any(nil))

// CBOR stores values with fxamacker/cbor. Build it with NewCBOR; the zero
// value has no modes and panics on use.
//
// Canonical codecs sort map keys (RFC 8949 core deterministic encoding), so
// equal hash items always produce equal bytes. Objects decode to
// map[string]any like every other codec here.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[any] = CBOR[any]{}

func NewCBOR[V any](canonical bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if canonical {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	enc, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dec, err := cbor.DecOptions{DefaultMapType: anyMap}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: enc, dec: dec}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
