package graph

import "context"

// Store opens sessions against the property-graph database. The production
// implementation is Neo4jStore; tests substitute a fake.
type Store interface {
	// Session opens a write session. Sessions are scoped to one batch and
	// must be closed on all exit paths.
	Session(ctx context.Context) (Session, error)
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Session executes one parameterised query inside a write transaction and
// returns the integer value of the first column of its single result record.
type Session interface {
	ExecuteWrite(ctx context.Context, query string, params map[string]any) (int64, error)
	Close(ctx context.Context) error
}
