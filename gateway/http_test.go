package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testHTTPConfig(endpoint string) HTTPConfig {
	return HTTPConfig{
		Endpoint:       endpoint,
		AccessKey:      "test-key",
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}
}

func writeEnvelope(w http.ResponseWriter, rows []Row) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": rows})
}

func TestHTTPConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		cfg  HTTPConfig
	}{
		{"missing endpoint", HTTPConfig{AccessKey: "k"}},
		{"missing access key", HTTPConfig{Endpoint: "http://localhost"}},
		{"procedure timeout above transport", HTTPConfig{
			Endpoint:         "http://localhost",
			AccessKey:        "k",
			Timeout:          time.Second,
			ProcedureTimeout: 2 * time.Second,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if err == nil {
				t.Fatal("expected a config error")
			}
			if KindOf(err) != KindConfig {
				t.Errorf("expected config kind, got %s", KindOf(err))
			}
		})
	}

	valid := testHTTPConfig("http://localhost")
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestHTTP_Query(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("client_id")
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, []Row{{"id": "b1"}, {"id": "b2"}})
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := g.Query(context.Background(), ReadRequest{
		Entity: "bookings",
		Filter: Filter{Eq: []Clause{{Column: "client_id", Value: "u1"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
	}
	if gotPath != "/rest/v1/bookings" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != "eq.u1" {
		t.Errorf("unexpected filter rendering %q", gotQuery)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected authorization header %q", gotAuth)
	}
}

func TestHTTP_QueryRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeEnvelope(w, []Row{{"id": "g1"}})
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := g.Query(context.Background(), ReadRequest{Entity: "gyms"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows))
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestHTTP_QueryDoesNotRetryPermissionErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Query(context.Background(), ReadRequest{Entity: "gyms"})
	if KindOf(err) != KindPermission {
		t.Fatalf("expected permission error, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("permission failures must not retry, saw %d attempts", got)
	}
}

func TestHTTP_MutateIssuesWriteOnce(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Mutate(context.Background(), WriteRequest{
		Entity:  "favorites",
		Op:      OpInsert,
		Payload: Row{"gym_id": "g1"},
	})
	if err == nil {
		t.Fatal("expected the write to fail")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("writes must never retry, saw %d attempts", got)
	}
}

func TestHTTP_MutateInsert(t *testing.T) {
	var gotMethod string
	var gotBody Row
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		writeEnvelope(w, []Row{{"id": "f1", "gym_id": "g1"}})
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	row, err := g.Mutate(context.Background(), WriteRequest{
		Entity:  "favorites",
		Op:      OpInsert,
		Payload: Row{"gym_id": "g1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotBody["gym_id"] != "g1" {
		t.Errorf("payload not forwarded: %v", gotBody)
	}
	if row["id"] != "f1" {
		t.Errorf("expected the stored row back, got %v", row)
	}
}

func TestHTTP_MutateDeleteUsesMatchFilter(t *testing.T) {
	var gotMethod, gotFilter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotFilter = r.URL.Query().Get("id")
		writeEnvelope(w, nil)
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Mutate(context.Background(), WriteRequest{
		Entity: "favorites",
		Op:     OpDelete,
		Match:  Filter{Eq: []Clause{{Column: "id", Value: "f1"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotMethod != http.MethodDelete {
		t.Errorf("expected DELETE, got %s", gotMethod)
	}
	if gotFilter != "eq.f1" {
		t.Errorf("match filter not rendered: %q", gotFilter)
	}
}

func TestHTTP_CallTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = g.Call(context.Background(), ProcedureRequest{
		Name:    "search_gyms",
		Timeout: 50 * time.Millisecond,
	})

	if KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout not enforced, call took %s", elapsed)
	}
}

func TestHTTP_CallReturnsRow(t *testing.T) {
	var gotPath string
	var gotArgs map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotArgs)
		writeEnvelope(w, []Row{{"booking_id": "b9"}})
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	row, err := g.Call(context.Background(), ProcedureRequest{
		Name: "create_booking",
		Args: map[string]any{"gym_id": "g1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/rest/v1/rpc/create_booking" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotArgs["gym_id"] != "g1" {
		t.Errorf("args not forwarded: %v", gotArgs)
	}
	if row["booking_id"] != "b9" {
		t.Errorf("unexpected result row %v", row)
	}
}

func TestHTTP_WireErrorKindPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"kind": "validation", "message": "slot already booked"},
		})
	}))
	defer srv.Close()

	g, err := NewHTTP(testHTTPConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Query(context.Background(), ReadRequest{Entity: "bookings"})
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	var ge *Error
	if !errors.As(err, &ge) || ge.Message != "slot already booked" {
		t.Errorf("server message not preserved: %v", err)
	}
}
