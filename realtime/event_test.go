package realtime

import (
	"testing"

	"github.com/goliatone/go-query-sync/gateway"
)

func TestFilter_Matches(t *testing.T) {
	ev := ChangeEvent{
		Entity: "messages",
		Action: ActionInsert,
		Row:    gateway.Row{"sender_id": "u1", "receiver_id": "u2"},
	}

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches all", Filter{}, true},
		{"single clause hit", Eq("sender_id", "u1"), true},
		{"single clause miss", Eq("sender_id", "u9"), false},
		{"or matches second clause", AnyOf(
			Clause{Column: "sender_id", Value: "u9"},
			Clause{Column: "receiver_id", Value: "u2"},
		), true},
		{"or matches neither", AnyOf(
			Clause{Column: "sender_id", Value: "u9"},
			Clause{Column: "receiver_id", Value: "u9"},
		), false},
		{"missing column", Eq("owner_id", "u1"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(ev); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFilter_MatchesNonStringValues(t *testing.T) {
	ev := ChangeEvent{Row: gateway.Row{"booking_id": 42}}

	if !Eq("booking_id", "42").Matches(ev) {
		t.Error("numeric row values should compare by their printed form")
	}
}

func TestChannelName(t *testing.T) {
	got := ChannelName("messages", "conversation", "u1")
	if got != "messages-conversation-u1" {
		t.Errorf("unexpected channel name %q", got)
	}
}
