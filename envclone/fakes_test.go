// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQuerier scripts Querier behavior per statement and records every
// statement it sees.
type fakeQuerier struct {
	execFn     func(sql string, args []any) (pgconn.CommandTag, error)
	queryFn    func(sql string) (pgx.Rows, error)
	queryRowFn func(sql string) pgx.Row

	execs   []string
	queries []string
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if f.execFn != nil {
		return f.execFn(sql, args)
	}
	return pgconn.NewCommandTag("OK 0"), nil
}

func (f *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	if f.queryFn != nil {
		return f.queryFn(sql)
	}
	return &fakeRows{}, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	if f.queryRowFn != nil {
		return f.queryRowFn(sql)
	}
	return &fakeRow{}
}

// forbiddenQuerier panics on any SQL. Used to prove guards fire before any
// statement reaches the database.
type forbiddenQuerier struct{}

func (forbiddenQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("SQL issued past a guard")
}

func (forbiddenQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("SQL issued past a guard")
}

func (forbiddenQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("SQL issued past a guard")
}

// fakeRows is a minimal in-memory pgx.Rows backed by column names and value
// tuples.
type fakeRows struct {
	columns []string
	values  [][]any
	idx     int
	err     error
	closed  bool
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.columns))
	for i, name := range r.columns {
		out[i] = pgconn.FieldDescription{Name: name}
	}
	return out
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.values) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.values) {
		return nil, errors.New("Values called outside row")
	}
	return r.values[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	values, err := r.Values()
	if err != nil {
		return err
	}
	return scanInto(dest, values)
}

// fakeRow scans scripted values into the caller's destinations.
type fakeRow struct {
	values  []any
	scanErr error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return scanInto(dest, r.values)
}

func scanInto(dest, values []any) error {
	for i, d := range dest {
		if i >= len(values) {
			break
		}
		switch target := d.(type) {
		case *int:
			target2, ok := values[i].(int)
			if !ok {
				return errors.New("scan type mismatch")
			}
			*target = target2
		case *int64:
			target2, ok := values[i].(int64)
			if !ok {
				return errors.New("scan type mismatch")
			}
			*target = target2
		case *string:
			target2, ok := values[i].(string)
			if !ok {
				return errors.New("scan type mismatch")
			}
			*target = target2
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}
