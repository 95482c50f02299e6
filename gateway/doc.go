// Package gateway issues typed read, write and procedure calls against the
// hosted data store.
//
// # Requests
//
// Each operation kind has its own request variant so malformed calls are
// rejected before they reach the network:
//
//   - ReadRequest: entity + column-equality filter (AND of Eq clauses plus
//     one optional OR-combination)
//   - WriteRequest: insert, update or delete with payload and match filter
//   - ProcedureRequest: named server-side procedure with a hard per-call
//     timeout
//
// Requests validate themselves with ozzo-validation; a failed validation
// surfaces as a gateway error of kind "validation" with field detail.
//
// # Error taxonomy
//
// Every failure carries a Kind: network, timeout, permission, not_found,
// validation, config or unknown. The gateway auto-retries network and
// timeout failures on reads up to a configured bound with backoff; all other
// kinds, and all writes, are surfaced immediately and retry decisions belong
// to the caller.
//
// # HTTP implementation
//
// NewHTTP speaks a REST dialect against the hosted store: GET/POST/PATCH/
// DELETE on /rest/v1/{entity} and POST on /rest/v1/rpc/{name}, authenticated
// with an access key header. Responses use the envelope
//
//	{ "data": [...], "error": { "kind": "...", "message": "..." } }
//
// Endpoint and access key come from the environment (see LoadHTTPConfig);
// when either is missing every call fails with a config-kind error rather
// than an opaque transport failure.
package gateway
