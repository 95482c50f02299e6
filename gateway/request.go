package gateway

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Row is a single remote record as returned by the hosted store.
type Row map[string]any

// Op enumerates write operations.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// entityName restricts entity names to identifier-ish strings so a malformed
// call is rejected before it reaches the network.
var entityName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Clause is a single column-equality predicate.
type Clause struct {
	Column string
	Value  any
}

// Filter describes the rows a request addresses: Eq clauses are combined
// with AND, Or clauses form one OR-combination of equalities (e.g. matching
// the acting user as sender or receiver).
type Filter struct {
	Eq []Clause
	Or []Clause
}

// Validate checks every clause names a column.
func (f Filter) Validate() error {
	for _, c := range append(append([]Clause(nil), f.Eq...), f.Or...) {
		if err := validation.Validate(c.Column,
			validation.Required,
			validation.Match(entityName),
		); err != nil {
			return &Error{Kind: KindValidation, Message: "invalid filter column", Field: c.Column, Err: err}
		}
	}
	return nil
}

// ReadRequest fetches rows from one entity.
type ReadRequest struct {
	Entity string
	Filter Filter
	Limit  int
}

// Validate rejects malformed read requests.
func (r ReadRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Entity, validation.Required, validation.Match(entityName)),
		validation.Field(&r.Limit, validation.Min(0)),
	); err != nil {
		return wrapValidation(err)
	}
	return r.Filter.Validate()
}

// WriteRequest performs exactly one remote write. The remote store enforces
// atomicity per call; the gateway never partially applies a write.
type WriteRequest struct {
	Entity  string
	Op      Op
	Payload Row
	Match   Filter
}

// Validate rejects malformed write requests: inserts and updates need a
// payload, updates and deletes need a match filter.
func (r WriteRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Entity, validation.Required, validation.Match(entityName)),
		validation.Field(&r.Op, validation.Required, validation.In(OpInsert, OpUpdate, OpDelete)),
		validation.Field(&r.Payload, validation.By(func(any) error {
			if r.Op != OpDelete && len(r.Payload) == 0 {
				return validation.NewError("payload_required", "payload is required for insert and update")
			}
			return nil
		})),
		validation.Field(&r.Match, validation.By(func(any) error {
			if r.Op != OpInsert && len(r.Match.Eq) == 0 && len(r.Match.Or) == 0 {
				return validation.NewError("match_required", "match filter is required for update and delete")
			}
			return nil
		})),
	); err != nil {
		return wrapValidation(err)
	}
	return r.Match.Validate()
}

// ProcedureRequest invokes a server-computed procedure (composite search,
// booking creation with business-rule checks). Timeout is a hard per-call
// bound distinct from the transport default.
type ProcedureRequest struct {
	Name    string
	Args    map[string]any
	Timeout time.Duration
}

// DefaultProcedureTimeout is applied when a ProcedureRequest carries no
// explicit timeout. It must stay at or below the transport timeout.
const DefaultProcedureTimeout = 10 * time.Second

// Validate rejects malformed procedure requests.
func (r ProcedureRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Match(entityName)),
		validation.Field(&r.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return wrapValidation(err)
	}
	return nil
}

// EffectiveTimeout returns the request timeout, defaulted and capped at max.
func (r ProcedureRequest) EffectiveTimeout(max time.Duration) time.Duration {
	t := r.Timeout
	if t <= 0 {
		t = DefaultProcedureTimeout
	}
	if max > 0 && t > max {
		t = max
	}
	return t
}

// wrapValidation converts an ozzo validation result into a typed gateway
// error, keeping the first field name for UI branching.
func wrapValidation(err error) error {
	ge := &Error{Kind: KindValidation, Message: "invalid request", Err: err}
	if fields, ok := err.(validation.Errors); ok {
		for name := range fields {
			ge.Field = name
			break
		}
	}
	return ge
}
