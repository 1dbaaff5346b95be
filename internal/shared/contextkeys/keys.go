package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "refguard context key " + string(c)
}

// RequestIDKey is the key for the request ID in context.Context
const RequestIDKey = contextKey("requestID")

// OperatorIDKey is the key for the authenticated operator in context.Context
const OperatorIDKey = contextKey("operatorID")

// CollectionKey is the key for the collection a migration or probe targets
const CollectionKey = contextKey("collection")

// MigrationIDKey is the key for the active migration run in context.Context
const MigrationIDKey = contextKey("migrationID")

// ComponentKey is the key for the emitting component in context.Context
const ComponentKey = contextKey("component")

// OperationKey is the key for the logical operation in context.Context
const OperationKey = contextKey("operation")
