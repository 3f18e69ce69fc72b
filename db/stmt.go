package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"

	"github.com/PuffoTrillionarioGonePublic/erldb/codec"
	"github.com/PuffoTrillionarioGonePublic/erldb/rpc"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// Stmt is a handle to one prepared statement on a Conn.
//
// A Stmt is not safe for concurrent use. Its remote calls are serialized
// with every other call on the owning Conn.
type Stmt struct {
	conn  *Conn
	query string
	args  []any

	id      rpc.StmtID
	columns []string
	pending []types.Row
	done    bool
}

// NewStmt returns an unopened statement for query with positional args.
func NewStmt(conn *Conn, query string, args ...any) *Stmt {
	return &Stmt{conn: conn, query: query, args: args}
}

// Query returns the statement text.
func (s *Stmt) Query() string { return s.query }

// IsOpen reports whether the statement is prepared and not yet finalized.
func (s *Stmt) IsOpen() bool { return s.id != nil }

// Open prepares the statement and binds its arguments at positions 1..n in
// order. If any argument fails to encode or bind, the prepared statement is
// finalized before the error is returned.
func (s *Stmt) Open(ctx context.Context) error {
	if s.id != nil {
		return &InvalidStateError{Resource: ResourceStatement, Op: rpc.MethodPrepare, Err: ErrAlreadyOpen}
	}

	params, err := codec.EncodeAll(s.args)
	if err != nil {
		return err
	}

	var id rpc.StmtID
	err = s.conn.do(rpc.MethodPrepare, func(conn rpc.ConnID) (err error) {
		id, err = rpc.Prepare(ctx, s.conn.client, conn, s.query)
		return err
	})
	if err != nil {
		return err
	}
	s.id = id
	s.reset()
	s.conn.metrics.IncStatementPrepared()

	for i, p := range params {
		if err := s.bind(ctx, i+1, p); err != nil {
			return errors.Join(err, s.Close(context.WithoutCancel(ctx)))
		}
	}
	return nil
}

// reset drops the cached columns and the row iteration state.
func (s *Stmt) reset() {
	s.columns = nil
	s.pending = nil
	s.done = false
}

// do runs fn with both ids while holding the connection's call lock.
// Fails with *InvalidStateError, without calling fn, when the statement
// or its connection is closed.
func (s *Stmt) do(method string, fn func(conn rpc.ConnID, stmt rpc.StmtID) error) error {
	if s.id == nil {
		return notOpen(ResourceStatement, method)
	}
	return s.conn.do(method, func(conn rpc.ConnID) error {
		return fn(conn, s.id)
	})
}

func (s *Stmt) bind(ctx context.Context, n int, v types.Value) error {
	err := s.do(rpc.MethodBind, func(conn rpc.ConnID, stmt rpc.StmtID) error {
		return rpc.Bind(ctx, s.conn.client, conn, stmt, n, v)
	})
	if err != nil {
		return fmt.Errorf("bind parameter %d: %w", n, err)
	}
	return nil
}

// Call forwards method through the owning connection with Stmt=<id> added
// to args. The caller's map is not modified.
func (s *Stmt) Call(ctx context.Context, method string, args map[string]any) (json.RawMessage, error) {
	if s.id == nil {
		return nil, notOpen(ResourceStatement, method)
	}
	forwarded := make(map[string]any, len(args)+1)
	maps.Copy(forwarded, args)
	forwarded[rpc.ArgStmt] = s.id
	return s.conn.Call(ctx, method, forwarded)
}

// Close finalizes the statement. The handle is cleared even when the
// remote call fails.
func (s *Stmt) Close(ctx context.Context) error {
	err := s.do(rpc.MethodFinalize, func(conn rpc.ConnID, stmt rpc.StmtID) error {
		return rpc.Finalize(ctx, s.conn.client, conn, stmt)
	})
	if s.id == nil {
		return err
	}
	s.id = nil
	s.reset()
	s.conn.metrics.IncStatementFinalized()
	return err
}

// ColumnNames returns the result column names. The first successful answer
// is cached until the statement is closed.
func (s *Stmt) ColumnNames(ctx context.Context) ([]string, error) {
	if s.id == nil {
		return nil, notOpen(ResourceStatement, rpc.MethodColumnNames)
	}
	if s.columns != nil {
		return s.columns, nil
	}
	var cols []string
	err := s.do(rpc.MethodColumnNames, func(conn rpc.ConnID, stmt rpc.StmtID) (err error) {
		cols, err = rpc.ColumnNames(ctx, s.conn.client, conn, stmt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if cols == nil {
		cols = []string{}
	}
	s.columns = cols
	return cols, nil
}

// ColumnName returns the name of the 0-based column index.
func (s *Stmt) ColumnName(ctx context.Context, index int) (string, error) {
	var name string
	err := s.do(rpc.MethodColumnName, func(conn rpc.ConnID, stmt rpc.StmtID) (err error) {
		name, err = rpc.ColumnName(ctx, s.conn.client, conn, stmt, index)
		return err
	})
	return name, err
}

// ColumnCount returns the number of result columns.
func (s *Stmt) ColumnCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.do(rpc.MethodColumnCount, func(conn rpc.ConnID, stmt rpc.StmtID) (err error) {
		n, err = rpc.ColumnCount(ctx, s.conn.client, conn, stmt)
		return err
	})
	return n, err
}

// BindParameterCount returns the number of positional parameters.
func (s *Stmt) BindParameterCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.do(rpc.MethodBindParameterCount, func(conn rpc.ConnID, stmt rpc.StmtID) (err error) {
		n, err = rpc.BindParameterCount(ctx, s.conn.client, conn, stmt)
		return err
	})
	return n, err
}

// Next returns the next result row, or io.EOF once the server signals the
// end of results. After io.EOF, Next keeps returning io.EOF without calling
// the server. A closed statement fails with *InvalidStateError.
func (s *Stmt) Next(ctx context.Context) (types.Row, error) {
	if s.id == nil {
		return nil, notOpen(ResourceStatement, rpc.MethodStepBy)
	}
	if len(s.pending) > 0 {
		row := s.pending[0]
		s.pending = s.pending[1:]
		return row, nil
	}
	if s.done {
		return nil, io.EOF
	}

	var (
		rows []types.Row
		done bool
	)
	err := s.do(rpc.MethodStepBy, func(conn rpc.ConnID, stmt rpc.StmtID) (err error) {
		rows, done, err = rpc.StepBy(ctx, s.conn.client, conn, stmt, 1)
		return err
	})
	if err != nil {
		return nil, err
	}
	if done {
		s.done = true
		return nil, io.EOF
	}
	s.conn.metrics.AddRowsStepped(len(rows))
	s.pending = rows[1:]
	return rows[0], nil
}

// All returns an iterator over the remaining rows. Iteration stops after the
// first error, which is yielded with a nil row.
func (s *Stmt) All(ctx context.Context) iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		for {
			row, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Collect drains the remaining rows.
func (s *Stmt) Collect(ctx context.Context) ([]types.Row, error) {
	var rows []types.Row
	for row, err := range s.All(ctx) {
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Reset rewinds the statement so it can be stepped again. Bindings are kept.
func (s *Stmt) Reset(ctx context.Context) error {
	err := s.do(rpc.MethodReset, func(conn rpc.ConnID, stmt rpc.StmtID) error {
		return rpc.Reset(ctx, s.conn.client, conn, stmt)
	})
	if err != nil {
		return err
	}
	s.pending = nil
	s.done = false
	return nil
}

// ClearBindings sets every parameter back to null.
func (s *Stmt) ClearBindings(ctx context.Context) error {
	return s.do(rpc.MethodClearBindings, func(conn rpc.ConnID, stmt rpc.StmtID) error {
		return rpc.ClearBindings(ctx, s.conn.client, conn, stmt)
	})
}

// Rebind binds v at 1-based position n on an open statement. Whether the
// server honors a rebind after stepping without a Reset is unverified; call
// Reset first.
func (s *Stmt) Rebind(ctx context.Context, n int, v any) error {
	if n < 1 {
		return fmt.Errorf("db: bind position %d out of range", n)
	}
	tv, err := codec.Encode(v)
	if err != nil {
		return err
	}
	return s.bind(ctx, n, tv)
}
