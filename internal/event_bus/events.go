package event_bus

// Event types published on the application bus.
const (
	CollectionChangedType EventType = "collection.changed"
	IdentityChangedType   EventType = "identity.changed"
)

// CollectionChanged is published every time a synchronized collection applies
// a mutation (bulk-fetch apply, change event, optimistic delete or rollback).
// The live view streams these to the browser so it can re-render.
type CollectionChanged struct {
	Table     string
	FilterKey string
	// Kind is the applied operation: INSERT, UPDATE, DELETE, or REFRESH for
	// a whole-collection bulk-fetch apply.
	Kind     string
	EntityID string
}

// IdentityChanged mirrors sign-in/sign-out transitions of the session holder.
type IdentityChanged struct {
	IdentityID string
	SignedIn   bool
}
