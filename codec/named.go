package codec

import "fmt"

// Names accepted by ByName.
const (
	NameJSON          = "json"
	NameMsgpack       = "msgpack"
	NameCBOR          = "cbor"
	NameCBORCanonical = "cbor-canonical"
	NameProtobuf      = "protobuf"
)

// ByName returns the value codec registered under name ("" selects JSON).
// maxDecode > 0 wraps the codec in a LimitCodec.
func ByName(name string, maxDecode int) (Codec[any], error) {
	var inner Codec[any]
	switch name {
	case "", NameJSON:
		inner = JSON[any]{}
	case NameMsgpack:
		inner = Msgpack[any]{}
	case NameCBOR, NameCBORCanonical:
		c, err := NewCBOR[any](name == NameCBORCanonical)
		if err != nil {
			return nil, err
		}
		inner = c
	case NameProtobuf:
		inner = Protobuf{}
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	if maxDecode > 0 {
		return LimitCodec[any]{Inner: inner, MaxDecode: maxDecode}, nil
	}
	return inner, nil
}
