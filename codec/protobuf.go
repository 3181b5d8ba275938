package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Protobuf stores loosely typed values as google.protobuf.Value messages.
// Only JSON-shaped values are accepted (nil, bool, numbers, string,
// []any, map[string]any); numbers decode as float64.
type Protobuf struct{}

var _ Codec[any] = Protobuf{}

func (Protobuf) Encode(v any) ([]byte, error) {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(pv)
}

func (Protobuf) Decode(b []byte) (any, error) {
	var pv structpb.Value
	if err := proto.Unmarshal(b, &pv); err != nil {
		return nil, err
	}
	return pv.AsInterface(), nil
}
