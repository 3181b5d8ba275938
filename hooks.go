package collcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on request paths.
type Hooks interface {
	// One entry of a best-effort bulk call failed; the batch went on.
	// op ∈ {"bulkSetItem", "bulkDeleteItem"}
	BulkEntryFailed(op string, index int, collectionID, itemID string, err error)

	// A hash-field batch was rejected before dispatch.
	// fieldID is empty for a TTL conflict.
	BatchConflict(collectionID, itemID, fieldID string)

	// fieldID is empty for item subscriptions.
	SubscriptionOpened(id, collectionID, itemID, fieldID string)
	// err is nil when the subscriber cancelled.
	SubscriptionClosed(id string, err error)

	// A worker process ended. err is nil on a clean exit.
	WorkerExited(worker, pid int, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) BulkEntryFailed(string, int, string, string, error) {}
func (NopHooks) BatchConflict(string, string, string)               {}
func (NopHooks) SubscriptionOpened(string, string, string, string)  {}
func (NopHooks) SubscriptionClosed(string, error)                   {}
func (NopHooks) WorkerExited(int, int, error)                       {}
