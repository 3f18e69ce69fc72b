// Package db provides scoped connection and statement handles over the
// erldb RPC protocol.
//
// A Conn owns one server-side connection and injects its id into every
// forwarded call. A Stmt owns one prepared statement and forwards through
// its Conn, so its calls carry both ids. Every forwarded operation on a
// handle that is not open fails with *InvalidStateError before any network
// traffic.
package db

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/PuffoTrillionarioGonePublic/erldb/codec"
	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
	"github.com/PuffoTrillionarioGonePublic/erldb/metrics"
	"github.com/PuffoTrillionarioGonePublic/erldb/rpc"
)

// Caller is the RPC surface a Conn needs. *rpc.Client implements it.
type Caller = rpc.Caller

// Option configures a Conn.
type Option func(*Conn)

// WithCollector sets the metrics collector for handle lifecycle counts.
func WithCollector(m *metrics.Collector) Option {
	return func(c *Conn) {
		c.metrics = m
	}
}

// Conn is a handle to one server-side connection.
//
// Calls on a Conn (and on its statements) are serialized. The server
// handles one request per connection at a time.
type Conn struct {
	client  Caller
	bucket  string
	file    string
	metrics *metrics.Collector

	mu sync.Mutex // serializes forwarded calls and guards id
	id rpc.ConnID
}

// NewConn returns a closed handle for file in bucket.
func NewConn(client Caller, bucket, file string, opts ...Option) *Conn {
	c := &Conn{client: client, bucket: bucket, file: file}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bucket returns the bucket the handle targets.
func (c *Conn) Bucket() string { return c.bucket }

// File returns the database file the handle targets.
func (c *Conn) File() string { return c.file }

// ID returns the server-issued id, or nil when closed.
func (c *Conn) ID() rpc.ConnID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// IsOpen reports whether the handle holds a server-side connection.
func (c *Conn) IsOpen() bool {
	return c.ID() != nil
}

// Open acquires the server-side connection.
// Returns *ResourceError if the handle is already open.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.id != nil {
		return &ResourceError{Resource: ResourceConnection, Bucket: c.bucket, File: c.file}
	}
	id, err := rpc.CreateConnection(ctx, c.client, c.bucket, c.file)
	if err != nil {
		return err
	}
	c.id = id
	c.metrics.IncConnectionOpened()
	return nil
}

// Call forwards method to the server with Conn=<id> added to args.
// The caller's map is not modified.
func (c *Conn) Call(ctx context.Context, method string, args map[string]any) (raw json.RawMessage, err error) {
	err = c.do(method, func(id rpc.ConnID) error {
		forwarded := make(map[string]any, len(args)+1)
		maps.Copy(forwarded, args)
		forwarded[rpc.ArgConn] = id
		raw, err = c.client.Call(ctx, method, forwarded)
		return err
	})
	return raw, err
}

// Close releases the server-side connection. The handle is cleared even
// when the remote call fails; closing a cleared handle is an error.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.id == nil {
		return notOpen(ResourceConnection, rpc.MethodClose)
	}
	err := rpc.CloseConnection(ctx, c.client, c.id)
	c.id = nil
	c.metrics.IncConnectionClosed()
	return err
}

// do runs fn with the connection id while holding the call lock.
// Fails with *InvalidStateError, without calling fn, when the handle is closed.
func (c *Conn) do(method string, fn func(id rpc.ConnID) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id == nil {
		return notOpen(ResourceConnection, method)
	}
	return fn(c.id)
}

// Execute runs query with positional args in one round trip and returns the
// server's result count. Args are encoded with the value codec.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	params, err := codec.EncodeAll(args)
	if err != nil {
		return 0, err
	}
	var n int64
	err = c.do(rpc.MethodExecute, func(id rpc.ConnID) error {
		n, err = rpc.Execute(ctx, c.client, id, query, params)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.metrics.IncExecute()
	return n, nil
}

// Changes returns the rows modified by the most recent statement.
func (c *Conn) Changes(ctx context.Context) (int64, error) {
	var n int64
	err := c.do(rpc.MethodChanges, func(id rpc.ConnID) (err error) {
		n, err = rpc.Changes(ctx, c.client, id)
		return err
	})
	return n, err
}

// LastInsertRowID returns the rowid of the most recent insert.
func (c *Conn) LastInsertRowID(ctx context.Context) (int64, error) {
	var n int64
	err := c.do(rpc.MethodLastInsertRowID, func(id rpc.ConnID) (err error) {
		n, err = rpc.LastInsertRowID(ctx, c.client, id)
		return err
	})
	return n, err
}

// BusyTimeout sets how long the server waits on a locked database.
func (c *Conn) BusyTimeout(ctx context.Context, d time.Duration) error {
	return c.do(rpc.MethodBusyTimeout, func(id rpc.ConnID) error {
		return rpc.BusyTimeout(ctx, c.client, id, d)
	})
}

// Interrupt aborts the operation currently running on the connection.
func (c *Conn) Interrupt(ctx context.Context) error {
	return c.do(rpc.MethodInterrupt, func(id rpc.ConnID) error {
		return rpc.Interrupt(ctx, c.client, id)
	})
}

// Prepare opens a statement for query and binds args.
func (c *Conn) Prepare(ctx context.Context, query string, args ...any) (*Stmt, error) {
	s := NewStmt(c, query, args...)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// WithStmt prepares query, runs fn, and finalizes the statement on every
// exit from fn, including a panic. A finalize error is joined to fn's error.
func (c *Conn) WithStmt(ctx context.Context, query string, args []any, fn func(*Stmt) error) (err error) {
	s, err := c.Prepare(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { err = iox.CloseJoin(ctx, err, s) }()
	return fn(s)
}

// WithConn opens a connection to file in bucket, runs fn, and closes the
// connection on every exit from fn, including a panic. A close error is
// joined to fn's error.
func WithConn(ctx context.Context, client Caller, bucket, file string, fn func(*Conn) error, opts ...Option) (err error) {
	c := NewConn(client, bucket, file, opts...)
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func() { err = iox.CloseJoin(ctx, err, c) }()
	return fn(c)
}
