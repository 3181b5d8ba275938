package collcache

import (
	"fmt"
	"strings"
)

// ConfigurationError is fatal at startup: the process never serves.
type ConfigurationError struct {
	Collection string // empty when not about one collection
	Reason     string
	Err        error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("collcache: configuration")
	if e.Collection != "" {
		fmt.Fprintf(&b, ": collection %q", e.Collection)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError rejects a single request during sanitization.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError aborts a hash-field batch that contradicts itself.
// FieldID is empty for a TTL conflict.
type ConflictError struct {
	CollectionID string
	ItemID       string
	FieldID      string
}

func (e *ConflictError) Error() string {
	if e.FieldID == "" {
		return fmt.Sprintf("conflicting itemTTL on collectionID %q and itemID %q", e.CollectionID, e.ItemID)
	}
	return fmt.Sprintf("conflicting value on collectionID %q itemID %q fieldID %q", e.CollectionID, e.ItemID, e.FieldID)
}

// BackendError wraps a failure returned by a collection backend.
type BackendError struct {
	Op           string
	CollectionID string
	Err          error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s on collection %q: %v", e.Op, e.CollectionID, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// EntryError is one failed entry of a best-effort bulk call.
type EntryError struct {
	Index        int
	CollectionID string
	ItemID       string
	Err          error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d (collectionID %q, itemID %q): %v", e.Index, e.CollectionID, e.ItemID, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// AggregateError lists every failed entry of a best-effort bulk call.
// Entries not listed were applied.
type AggregateError struct {
	Op      string
	Total   int
	Entries []*EntryError
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d entries failed", e.Op, len(e.Entries), e.Total)
	for _, en := range e.Entries {
		b.WriteString("; ")
		b.WriteString(en.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Entries))
	for _, en := range e.Entries {
		errs = append(errs, en)
	}
	return errs
}

// NotFoundError is returned by Registry.Get for an unregistered id.
type NotFoundError struct {
	CollectionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("collection %q not registered", e.CollectionID)
}
