package storebun

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-query-sync/gateway"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if _, err := store.DB().ExecContext(ctx, `
		CREATE TABLE favorites (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			gym_id TEXT NOT NULL
		)`); err != nil {
		t.Fatal(err)
	}
	if _, err := store.DB().ExecContext(ctx, `
		CREATE TABLE messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			body TEXT
		)`); err != nil {
		t.Fatal(err)
	}

	return store
}

func insertFavorite(t *testing.T, store *Store, id, userID, gymID string) {
	t.Helper()
	_, err := store.Mutate(context.Background(), gateway.WriteRequest{
		Entity:  "favorites",
		Op:      gateway.OpInsert,
		Payload: gateway.Row{"id": id, "user_id": userID, "gym_id": gymID},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStore_InsertAndQuery(t *testing.T) {
	store := openTestStore(t)

	insertFavorite(t, store, "f1", "u1", "g1")
	insertFavorite(t, store, "f2", "u1", "g2")
	insertFavorite(t, store, "f3", "u2", "g1")

	rows, err := store.Query(context.Background(), gateway.ReadRequest{
		Entity: "favorites",
		Filter: gateway.Filter{Eq: []gateway.Clause{{Column: "user_id", Value: "u1"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for u1, got %d", len(rows))
	}
	for _, row := range rows {
		if row["user_id"] != "u1" {
			t.Errorf("row for wrong user leaked: %v", row)
		}
	}
}

func TestStore_QueryLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		insertFavorite(t, store, string(rune('a'+i)), "u1", "g1")
	}

	rows, err := store.Query(context.Background(), gateway.ReadRequest{Entity: "favorites", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(rows))
	}
}

func TestStore_QueryOrFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := []gateway.Row{
		{"id": "m1", "sender_id": "u1", "receiver_id": "u2", "body": "hi"},
		{"id": "m2", "sender_id": "u2", "receiver_id": "u1", "body": "hey"},
		{"id": "m3", "sender_id": "u3", "receiver_id": "u4", "body": "unrelated"},
	}
	for _, row := range seed {
		if _, err := store.Mutate(ctx, gateway.WriteRequest{
			Entity: "messages", Op: gateway.OpInsert, Payload: row,
		}); err != nil {
			t.Fatal(err)
		}
	}

	// All messages where u1 is sender or receiver.
	rows, err := store.Query(ctx, gateway.ReadRequest{
		Entity: "messages",
		Filter: gateway.Filter{Or: []gateway.Clause{
			{Column: "sender_id", Value: "u1"},
			{Column: "receiver_id", Value: "u1"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("expected both sides of u1's conversation, got %d rows", len(rows))
	}
}

func TestStore_Update(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	insertFavorite(t, store, "f1", "u1", "g1")

	_, err := store.Mutate(ctx, gateway.WriteRequest{
		Entity:  "favorites",
		Op:      gateway.OpUpdate,
		Payload: gateway.Row{"gym_id": "g9"},
		Match:   gateway.Filter{Eq: []gateway.Clause{{Column: "id", Value: "f1"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := store.Query(ctx, gateway.ReadRequest{
		Entity: "favorites",
		Filter: gateway.Filter{Eq: []gateway.Clause{{Column: "id", Value: "f1"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["gym_id"] != "g9" {
		t.Errorf("update not applied: %v", rows)
	}
}

func TestStore_UpdateMissingRowIsNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Mutate(context.Background(), gateway.WriteRequest{
		Entity:  "favorites",
		Op:      gateway.OpUpdate,
		Payload: gateway.Row{"gym_id": "g9"},
		Match:   gateway.Filter{Eq: []gateway.Clause{{Column: "id", Value: "missing"}}},
	})
	if !gateway.IsNotFound(err) {
		t.Errorf("expected notFound, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	insertFavorite(t, store, "f1", "u1", "g1")

	_, err := store.Mutate(ctx, gateway.WriteRequest{
		Entity: "favorites",
		Op:     gateway.OpDelete,
		Match:  gateway.Filter{Eq: []gateway.Clause{{Column: "id", Value: "f1"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := store.Query(ctx, gateway.ReadRequest{Entity: "favorites"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows after delete, got %v", rows)
	}
}

func TestStore_CallDispatchesProcedure(t *testing.T) {
	store := openTestStore(t)

	store.RegisterProcedure("count_favorites", func(ctx context.Context, s *Store, args map[string]any) (gateway.Row, error) {
		rows, err := s.Query(ctx, gateway.ReadRequest{
			Entity: "favorites",
			Filter: gateway.Filter{Eq: []gateway.Clause{{Column: "user_id", Value: args["user_id"]}}},
		})
		if err != nil {
			return nil, err
		}
		return gateway.Row{"count": len(rows)}, nil
	})

	insertFavorite(t, store, "f1", "u1", "g1")
	insertFavorite(t, store, "f2", "u1", "g2")

	row, err := store.Call(context.Background(), gateway.ProcedureRequest{
		Name: "count_favorites",
		Args: map[string]any{"user_id": "u1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if row["count"] != 2 {
		t.Errorf("expected count 2, got %v", row)
	}
}

func TestStore_CallUnknownProcedure(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Call(context.Background(), gateway.ProcedureRequest{Name: "nope"})
	if !gateway.IsNotFound(err) {
		t.Errorf("expected notFound for an unregistered procedure, got %v", err)
	}
}

func TestStore_CallEnforcesTimeout(t *testing.T) {
	store := openTestStore(t)

	store.RegisterProcedure("slow", func(ctx context.Context, s *Store, args map[string]any) (gateway.Row, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return gateway.Row{}, nil
		}
	})

	start := time.Now()
	_, err := store.Call(context.Background(), gateway.ProcedureRequest{
		Name:    "slow",
		Timeout: 50 * time.Millisecond,
	})

	if gateway.KindOf(err) != gateway.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout not enforced, call took %s", elapsed)
	}
}

func TestStore_CallProcedureErrorPassthrough(t *testing.T) {
	store := openTestStore(t)

	store.RegisterProcedure("rejects", func(ctx context.Context, s *Store, args map[string]any) (gateway.Row, error) {
		return nil, gateway.NewError(gateway.KindValidation, "slot already booked")
	})

	_, err := store.Call(context.Background(), gateway.ProcedureRequest{Name: "rejects"})
	if gateway.KindOf(err) != gateway.KindValidation {
		t.Errorf("expected the procedure's error back, got %v", err)
	}
}
