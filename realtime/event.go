package realtime

import (
	"fmt"

	"github.com/goliatone/go-query-sync/gateway"
)

// Action is the kind of row change carried by an event.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ChangeEvent describes one remote row change pushed to subscribers.
type ChangeEvent struct {
	Entity  string      `msgpack:"entity"`
	Action  Action      `msgpack:"action"`
	Row     gateway.Row `msgpack:"row"`
	ActorID string      `msgpack:"actor_id"`
}

// Clause is a single column-equality predicate over the event row.
type Clause struct {
	Column string
	Value  string
}

func (c Clause) matches(row gateway.Row) bool {
	v, ok := row[c.Column]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == c.Value
}

// Filter selects the events a subscription cares about. Any is an
// OR-combination of equality clauses, typically matching the acting user as
// sender, receiver or owner. An empty filter matches every event on the
// channel.
type Filter struct {
	Any []Clause
}

// Eq builds a single-clause filter.
func Eq(column, value string) Filter {
	return Filter{Any: []Clause{{Column: column, Value: value}}}
}

// AnyOf builds an OR-combination filter.
func AnyOf(clauses ...Clause) Filter {
	return Filter{Any: clauses}
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(ev ChangeEvent) bool {
	if len(f.Any) == 0 {
		return true
	}
	for _, c := range f.Any {
		if c.matches(ev.Row) {
			return true
		}
	}
	return false
}

// ChannelName renders the canonical channel naming scheme,
// "{entity}-{scope}-{actingUserID}".
func ChannelName(entity, scope, actorID string) string {
	return entity + "-" + scope + "-" + actorID
}
