package collection

import (
	"fmt"
	"strings"
)

// ItemType tags the value stored under an item.
type ItemType string

const (
	TypeString  ItemType = "STRING"
	TypeNumber  ItemType = "NUMBER"
	TypeBoolean ItemType = "BOOLEAN"
	TypeObject  ItemType = "OBJECT"
	TypeHash    ItemType = "HASH"
)

// ItemTypes lists every item type in declaration order.
var ItemTypes = []ItemType{TypeString, TypeNumber, TypeBoolean, TypeObject, TypeHash}

func (t ItemType) Valid() bool {
	for _, it := range ItemTypes {
		if t == it {
			return true
		}
	}
	return false
}

// ParseItemType accepts type names case-insensitively.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(strings.ToUpper(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown item type %q", s)
	}
	return t, nil
}

// InferType picks the item type for an untyped value.
func InferType(v any) ItemType {
	switch v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return TypeNumber
	default:
		return TypeObject
	}
}

// MutationType tags a mutation event.
type MutationType string

const (
	// MutationGet is never emitted by a backend; the routing layer uses it
	// for the current-value event primed into field subscriptions.
	MutationGet       MutationType = "GET"
	MutationSet       MutationType = "SET"
	MutationIncrement MutationType = "INCREMENT"
	MutationDelete    MutationType = "DELETE"
)

// Mutation describes one committed change to an item.
//
// Item-level mutations leave FieldID empty and carry the new item value
// (nil for DELETE). Field mutations set FieldID and FieldValue; ItemType
// is then TypeHash.
type Mutation struct {
	Type       MutationType `json:"t"`
	ItemID     string       `json:"id"`
	ItemType   ItemType     `json:"it,omitempty"`
	Value      any          `json:"v,omitempty"`
	FieldID    string       `json:"f,omitempty"`
	FieldValue any          `json:"fv,omitempty"`
	Revision   uint64       `json:"r"`
}

func (m Mutation) IsField() bool { return m.FieldID != "" }

// ForField projects m onto fieldID. Field mutations match only their own
// field. Item-level mutations affect every field: a DELETE removes it, a
// SET of a hash item carries the field's new value, and a SET of any
// other type leaves the field absent.
func (m Mutation) ForField(fieldID string) (Mutation, bool) {
	if m.IsField() {
		return m, m.FieldID == fieldID
	}
	out := Mutation{
		Type:     m.Type,
		ItemID:   m.ItemID,
		ItemType: TypeHash,
		FieldID:  fieldID,
		Revision: m.Revision,
	}
	switch m.Type {
	case MutationDelete:
		return out, true
	case MutationSet:
		if fields, ok := m.Value.(map[string]any); ok && m.ItemType == TypeHash {
			out.FieldValue = fields[fieldID]
			return out, true
		}
		out.Type = MutationDelete
		return out, true
	default:
		return Mutation{}, false
	}
}
