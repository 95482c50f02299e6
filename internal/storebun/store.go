// Package storebun implements the gateway contract over a bun database.
//
// It exists so integration tests and examples can run the full
// query/mutation/subscription flow against a real relational store without a
// hosted backend: sqlite for local runs, postgres for environments that have
// one. Filters translate to WHERE clauses, procedures dispatch to registered
// Go functions.
package storebun

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-query-sync/gateway"
)

// Procedure is a server-computed operation registered on the store,
// mirroring the hosted store's RPC surface.
type Procedure func(ctx context.Context, s *Store, args map[string]any) (gateway.Row, error)

// Store is a bun-backed Gateway.
type Store struct {
	db *bun.DB

	mu    sync.RWMutex
	procs map[string]Procedure
}

var _ gateway.Gateway = (*Store)(nil)

// OpenSQLite opens (or creates) a sqlite-backed store. Use ":memory:" for
// tests.
func OpenSQLite(path string) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return New(bun.NewDB(sqldb, sqlitedialect.New())), nil
}

// OpenPostgres opens a postgres-backed store.
func OpenPostgres(dsn string) (*Store, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return New(bun.NewDB(sqldb, pgdialect.New())), nil
}

// New wraps an existing bun DB.
func New(db *bun.DB) *Store {
	return &Store{db: db, procs: make(map[string]Procedure)}
}

// DB exposes the underlying bun DB for schema setup.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterProcedure makes a named procedure callable through Call.
func (s *Store) RegisterProcedure(name string, proc Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[name] = proc
}

// Query implements gateway.Gateway.
func (s *Store) Query(ctx context.Context, req gateway.ReadRequest) ([]gateway.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var rows []map[string]any

	q := s.db.NewSelect().Table(req.Entity)
	q = applySelectFilter(q, req.Filter)
	if req.Limit > 0 {
		q = q.Limit(req.Limit)
	}

	if err := q.Scan(ctx, &rows); err != nil {
		return nil, wrapSQL(err, "querying %s", req.Entity)
	}

	out := make([]gateway.Row, len(rows))
	for i, r := range rows {
		out[i] = gateway.Row(r)
	}
	return out, nil
}

// Mutate implements gateway.Gateway. Each call is one statement; the
// database enforces per-statement atomicity.
func (s *Store) Mutate(ctx context.Context, req gateway.WriteRequest) (gateway.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch req.Op {
	case gateway.OpInsert:
		values := map[string]any(req.Payload)
		if _, err := s.db.NewInsert().Model(&values).Table(req.Entity).Exec(ctx); err != nil {
			return nil, wrapSQL(err, "inserting into %s", req.Entity)
		}
		return req.Payload, nil

	case gateway.OpUpdate:
		q := s.db.NewUpdate().Table(req.Entity)
		for column, value := range req.Payload {
			q = q.Set("? = ?", bun.Ident(column), value)
		}
		q = applyUpdateFilter(q, req.Match)

		res, err := q.Exec(ctx)
		if err != nil {
			return nil, wrapSQL(err, "updating %s", req.Entity)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil, gateway.NewError(gateway.KindNotFound, "no %s rows matched", req.Entity)
		}
		return req.Payload, nil

	case gateway.OpDelete:
		q := s.db.NewDelete().Table(req.Entity)
		q = applyDeleteFilter(q, req.Match)

		res, err := q.Exec(ctx)
		if err != nil {
			return nil, wrapSQL(err, "deleting from %s", req.Entity)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil, gateway.NewError(gateway.KindNotFound, "no %s rows matched", req.Entity)
		}
		return gateway.Row{}, nil
	}

	return nil, gateway.NewError(gateway.KindValidation, "unsupported op %q", req.Op)
}

// Call implements gateway.Gateway by dispatching to a registered procedure.
func (s *Store) Call(ctx context.Context, req gateway.ProcedureRequest) (gateway.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	proc, ok := s.procs[req.Name]
	s.mu.RUnlock()

	if !ok {
		return nil, gateway.NewError(gateway.KindNotFound, "procedure %q is not registered", req.Name)
	}

	callCtx, cancel := context.WithTimeout(ctx, req.EffectiveTimeout(0))
	defer cancel()

	type result struct {
		row gateway.Row
		err error
	}
	done := make(chan result, 1)

	go func() {
		row, err := proc(callCtx, s, req.Args)
		done <- result{row, err}
	}()

	select {
	case <-callCtx.Done():
		// The attempt is abandoned from the caller's perspective; a late
		// result is discarded with the buffered channel.
		return nil, gateway.WrapError(gateway.KindTimeout, callCtx.Err(), "procedure %s timed out", req.Name)
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.row, nil
	}
}

func applySelectFilter(q *bun.SelectQuery, f gateway.Filter) *bun.SelectQuery {
	for _, c := range f.Eq {
		q = q.Where("? = ?", bun.Ident(c.Column), c.Value)
	}
	if len(f.Or) > 0 {
		clauses := f.Or
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, c := range clauses {
				q = q.WhereOr("? = ?", bun.Ident(c.Column), c.Value)
			}
			return q
		})
	}
	return q
}

func applyUpdateFilter(q *bun.UpdateQuery, f gateway.Filter) *bun.UpdateQuery {
	for _, c := range f.Eq {
		q = q.Where("? = ?", bun.Ident(c.Column), c.Value)
	}
	if len(f.Or) > 0 {
		clauses := f.Or
		q = q.WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			for _, c := range clauses {
				q = q.WhereOr("? = ?", bun.Ident(c.Column), c.Value)
			}
			return q
		})
	}
	return q
}

func applyDeleteFilter(q *bun.DeleteQuery, f gateway.Filter) *bun.DeleteQuery {
	for _, c := range f.Eq {
		q = q.Where("? = ?", bun.Ident(c.Column), c.Value)
	}
	if len(f.Or) > 0 {
		clauses := f.Or
		q = q.WhereGroup(" AND ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
			for _, c := range clauses {
				q = q.WhereOr("? = ?", bun.Ident(c.Column), c.Value)
			}
			return q
		})
	}
	return q
}

func wrapSQL(err error, format string, args ...any) error {
	kind := gateway.KindUnknown
	if errors.Is(err, sql.ErrNoRows) {
		kind = gateway.KindNotFound
	}
	return gateway.WrapError(kind, err, format, args...)
}
