package gateway

import "context"

// Gateway performs single logical read/write/procedure calls against the
// hosted store with bounded latency.
//
// All operations return typed errors (see Kind). Network and timeout
// failures on reads are retried up to the configured bound with backoff;
// permission, notFound and validation failures are surfaced immediately.
// Beyond that built-in bound, retry decisions belong to callers, not the
// gateway.
type Gateway interface {
	// Query fetches the rows matching the request filter.
	Query(ctx context.Context, req ReadRequest) ([]Row, error)

	// Mutate performs exactly one remote write and returns the affected row.
	// Writes are never retried by the gateway: the caller cannot know
	// whether a timed-out write was applied.
	Mutate(ctx context.Context, req WriteRequest) (Row, error)

	// Call invokes a remote procedure, racing it against the request's hard
	// timeout. A result arriving after the deadline is discarded.
	Call(ctx context.Context, req ProcedureRequest) (Row, error)
}
