// Package realtime keeps caches fresh when data changes outside the current
// session: another user, another tab, a server-side job.
//
// A subscription moves through Unregistered -> Registering -> Active ->
// Unregistering -> Unregistered. While Active, a matching ChangeEvent
// invalidates the declared cache key prefixes; nothing is refetched
// synchronously - the next query-binding access fetches fresh data.
//
// Channels follow the "{entity}-{scope}-{actingUserID}" naming scheme and
// filters are OR-combinations of column-equality clauses, typically matching
// the acting user as sender, receiver or owner.
//
// Registration failure is a degraded mode, not a fatal error: after bounded
// attempts the handle reports Degraded and the dependent consumer relies on
// staleness-based refetching alone.
//
// Transports are pluggable. MemoryNotifier serves tests and single-process
// setups; the internal redis transport carries events between processes.
package realtime
