// Package testsupport provides fixture loading and a scripted fake gateway
// shared by package tests.
package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goliatone/go-query-sync/gateway"
)

// LoadFixture loads test data from a fixture file, relative to the test
// package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	if err := json.Unmarshal(LoadFixture(t, path), dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// FixturePath constructs a path to a fixture file under testdata.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// Row builds a gateway.Row from alternating column/value pairs.
func Row(pairs ...any) gateway.Row {
	if len(pairs)%2 != 0 {
		panic("testsupport.Row requires column/value pairs")
	}
	row := make(gateway.Row, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		row[pairs[i].(string)] = pairs[i+1]
	}
	return row
}

// FakeGateway is a scripted gateway.Gateway that records calls.
type FakeGateway struct {
	mu sync.Mutex

	// QueryRows maps entity name to the rows Query returns.
	QueryRows map[string][]gateway.Row

	// QueryErr, MutateErr, CallErr fail the respective operations.
	QueryErr  error
	MutateErr error
	CallErr   error

	// CallRows maps procedure name to the row Call returns.
	CallRows map[string]gateway.Row

	calls map[string]int
}

var _ gateway.Gateway = (*FakeGateway)(nil)

// NewFakeGateway creates an empty fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		QueryRows: make(map[string][]gateway.Row),
		CallRows:  make(map[string]gateway.Row),
		calls:     make(map[string]int),
	}
}

func (f *FakeGateway) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

// Calls reports how many times an operation ran, keyed "Query:entity",
// "Mutate:entity" or "Call:name".
func (f *FakeGateway) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Query implements gateway.Gateway.
func (f *FakeGateway) Query(ctx context.Context, req gateway.ReadRequest) ([]gateway.Row, error) {
	f.record("Query:" + req.Entity)
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Row(nil), f.QueryRows[req.Entity]...), nil
}

// Mutate implements gateway.Gateway by appending inserts to QueryRows.
func (f *FakeGateway) Mutate(ctx context.Context, req gateway.WriteRequest) (gateway.Row, error) {
	f.record("Mutate:" + req.Entity)
	if f.MutateErr != nil {
		return nil, f.MutateErr
	}
	if req.Op == gateway.OpInsert {
		f.mu.Lock()
		f.QueryRows[req.Entity] = append(f.QueryRows[req.Entity], req.Payload)
		f.mu.Unlock()
	}
	return req.Payload, nil
}

// Call implements gateway.Gateway.
func (f *FakeGateway) Call(ctx context.Context, req gateway.ProcedureRequest) (gateway.Row, error) {
	f.record("Call:" + req.Name)
	if f.CallErr != nil {
		return nil, f.CallErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CallRows[req.Name], nil
}
