package collcache

import "github.com/unkn0wn-root/collcache/collection"

type Item struct {
	ItemID    string              `json:"itemID"`
	ItemType  collection.ItemType `json:"itemType"`
	ItemValue any                 `json:"itemValue"`
}

type HashItemField struct {
	ItemID     string `json:"itemID"`
	FieldID    string `json:"fieldID"`
	FieldValue any    `json:"fieldValue"`
}

// ItemMutation is one event of an item subscription. Field-level changes
// of a hash item arrive as a HASH item holding only the changed field.
type ItemMutation struct {
	MutationType collection.MutationType `json:"mutationType"`
	Item         Item                    `json:"item"`
	Revision     uint64                  `json:"revision"`
}

// HashItemFieldMutation is one event of a field subscription. The first
// event is always a GET with the value read right after subscribing
// (Revision 0).
type HashItemFieldMutation struct {
	MutationType collection.MutationType `json:"mutationType"`
	Field        HashItemField           `json:"field"`
	Revision     uint64                  `json:"revision"`
}

// Inputs. An empty CollectionID selects the default collection.

type ItemRef struct {
	CollectionID string `json:"collectionID"`
	ItemID       string `json:"itemID"`
}

type FieldRef struct {
	CollectionID string `json:"collectionID"`
	ItemID       string `json:"itemID"`
	FieldID      string `json:"fieldID"`
}

type SetItemInput struct {
	CollectionID string   `json:"collectionID"`
	ItemID       string   `json:"itemID"`
	ItemType     string   `json:"itemType"` // empty => inferred from ItemValue
	ItemValue    any      `json:"itemValue"`
	ItemTTL      *float64 `json:"itemTTL"` // seconds
}

type IncrementItemInput struct {
	CollectionID string   `json:"collectionID"`
	ItemID       string   `json:"itemID"`
	ItemTTL      *float64 `json:"itemTTL"`
	Increment    *float64 `json:"increment"` // nil => 1
}

type SetHashItemFieldInput struct {
	CollectionID string   `json:"collectionID"`
	ItemID       string   `json:"itemID"`
	FieldID      string   `json:"fieldID"`
	FieldValue   any      `json:"fieldValue"`
	ItemTTL      *float64 `json:"itemTTL"`
}

type IncrementHashItemFieldInput struct {
	CollectionID string   `json:"collectionID"`
	ItemID       string   `json:"itemID"`
	FieldID      string   `json:"fieldID"`
	ItemTTL      *float64 `json:"itemTTL"`
	Increment    *float64 `json:"increment"`
}

func (in ItemRef) collectionID() string                         { return in.CollectionID }
func (in FieldRef) collectionID() string                        { return in.CollectionID }
func (in SetItemInput) collectionID() string                    { return in.CollectionID }
func (in IncrementItemInput) collectionID() string              { return in.CollectionID }
func (in SetHashItemFieldInput) collectionID() string           { return in.CollectionID }
func (in IncrementHashItemFieldInput) collectionID() string     { return in.CollectionID }
func (in ItemRef) withCollectionID(id string) ItemRef           { in.CollectionID = id; return in }
func (in FieldRef) withCollectionID(id string) FieldRef         { in.CollectionID = id; return in }
func (in SetItemInput) withCollectionID(id string) SetItemInput { in.CollectionID = id; return in }
func (in IncrementItemInput) withCollectionID(id string) IncrementItemInput {
	in.CollectionID = id
	return in
}
func (in SetHashItemFieldInput) withCollectionID(id string) SetHashItemFieldInput {
	in.CollectionID = id
	return in
}
func (in IncrementHashItemFieldInput) withCollectionID(id string) IncrementHashItemFieldInput {
	in.CollectionID = id
	return in
}

func (in ItemRef) check() error  { return requireID("itemID", in.ItemID) }
func (in FieldRef) check() error { return requireIDs(in.ItemID, in.FieldID) }
func (in SetItemInput) check() error {
	if err := requireID("itemID", in.ItemID); err != nil {
		return err
	}
	if in.ItemType != "" {
		if _, err := collection.ParseItemType(in.ItemType); err != nil {
			return &ValidationError{Field: "itemType", Reason: err.Error()}
		}
	}
	return nil
}
func (in IncrementItemInput) check() error          { return requireID("itemID", in.ItemID) }
func (in SetHashItemFieldInput) check() error       { return requireIDs(in.ItemID, in.FieldID) }
func (in IncrementHashItemFieldInput) check() error { return requireIDs(in.ItemID, in.FieldID) }

func requireID(field, v string) error {
	if v == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	return nil
}

func requireIDs(itemID, fieldID string) error {
	if err := requireID("itemID", itemID); err != nil {
		return err
	}
	return requireID("fieldID", fieldID)
}

func increment(by *float64) float64 {
	if by == nil {
		return 1
	}
	return *by
}
