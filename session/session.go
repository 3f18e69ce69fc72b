// Package session implements the interactive erldb workflow: select a
// database file, run queries against it, and release it.
//
// A Session holds at most one open connection. Use replaces it, Query and
// Exec run against it, Close releases it. There is no package-level state;
// shells and commands each own their Session.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/PuffoTrillionarioGonePublic/erldb/adapter"
	"github.com/PuffoTrillionarioGonePublic/erldb/codec"
	"github.com/PuffoTrillionarioGonePublic/erldb/db"
	"github.com/PuffoTrillionarioGonePublic/erldb/log"
	"github.com/PuffoTrillionarioGonePublic/erldb/metrics"
	"github.com/PuffoTrillionarioGonePublic/erldb/rpc"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// DefaultBucket is used when Use is given no bucket.
const DefaultBucket = "default"

// Result is the outcome of one Query or Exec.
type Result struct {
	// QueryID identifies the query in logs, notifications and exports.
	QueryID string
	Columns []string
	Rows    []types.Row
	// Changes is the server's changes() count after the statement ran.
	Changes int64
	Elapsed time.Duration
}

// Table returns the rows as display strings.
func (r *Result) Table() [][]string {
	out := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = codec.RenderRow(row)
	}
	return out
}

// Session is a single-user workspace over one erldb node.
// Not safe for concurrent use.
type Session struct {
	client  rpc.Caller
	meta    *log.SessionMeta
	logger  *log.Logger
	metrics *metrics.Collector
	adapter adapter.Adapter
	bucket  string

	conn *db.Conn
	now  func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithMeta sets the session identity used in logs and notifications.
func WithMeta(meta *log.SessionMeta) Option {
	return func(s *Session) { s.meta = meta }
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithCollector sets the metrics collector passed to every connection.
func WithCollector(m *metrics.Collector) Option {
	return func(s *Session) { s.metrics = m }
}

// WithAdapter publishes a QueryCompletedEvent after every Query and Exec.
func WithAdapter(a adapter.Adapter) Option {
	return func(s *Session) { s.adapter = a }
}

// WithBucket sets the bucket used when Use is given none.
func WithBucket(bucket string) Option {
	return func(s *Session) { s.bucket = bucket }
}

// New creates a session without an open connection.
func New(client rpc.Caller, opts ...Option) *Session {
	s := &Session{
		client: client,
		logger: log.Nop(),
		bucket: DefaultBucket,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.meta == nil {
		s.meta = log.NewSessionMeta("")
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.meta.SessionID }

// Conn returns the current connection, or nil if none is open.
func (s *Session) Conn() *db.Conn { return s.conn }

// Use closes the current connection, if any, and opens file in bucket.
// An empty bucket selects the session's default bucket. A failure to close
// the previous connection is logged and does not prevent the switch.
func (s *Session) Use(ctx context.Context, file, bucket string) error {
	if bucket == "" {
		bucket = s.bucket
	}
	if s.conn != nil {
		if err := s.conn.Close(ctx); err != nil {
			s.logger.Warn("close previous connection failed", map[string]any{
				"bucket": s.conn.Bucket(),
				"file":   s.conn.File(),
				"error":  err.Error(),
			})
		}
		s.conn = nil
	}

	c := db.NewConn(s.client, bucket, file, db.WithCollector(s.metrics))
	if err := c.Open(ctx); err != nil {
		return err
	}
	s.conn = c
	s.logger.Info("using database", map[string]any{"bucket": bucket, "file": file})
	return nil
}

// Query runs query with positional args in a scoped statement and returns
// its columns, rows and the changes count.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	conn, err := s.current("query")
	if err != nil {
		return nil, err
	}

	res := &Result{QueryID: uuid.NewString()}
	start := s.now()
	err = conn.WithStmt(ctx, query, args, func(st *db.Stmt) error {
		cols, err := st.ColumnNames(ctx)
		if err != nil {
			return err
		}
		res.Columns = cols
		res.Rows, err = st.Collect(ctx)
		return err
	})
	if err == nil {
		res.Changes, err = conn.Changes(ctx)
	}
	res.Elapsed = s.now().Sub(start)

	s.complete(ctx, conn, query, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Exec runs query with positional args in one round trip, for statements
// that return no rows.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (*Result, error) {
	conn, err := s.current("exec")
	if err != nil {
		return nil, err
	}

	res := &Result{QueryID: uuid.NewString()}
	start := s.now()
	_, err = conn.Execute(ctx, query, args...)
	if err == nil {
		res.Changes, err = conn.Changes(ctx)
	}
	res.Elapsed = s.now().Sub(start)

	s.complete(ctx, conn, query, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Files lists the database files of bucket (the default bucket if empty).
func (s *Session) Files(ctx context.Context, bucket string) ([]string, error) {
	if bucket == "" {
		bucket = s.bucket
	}
	return rpc.ListFiles(ctx, s.client, bucket)
}

// ServerVersion returns the server's storage engine version.
func (s *Session) ServerVersion(ctx context.Context) (string, error) {
	return rpc.LibVersion(ctx, s.client)
}

// Close releases the current connection. Closing a session without an open
// connection is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(ctx)
	s.conn = nil
	return err
}

func (s *Session) current(op string) (*db.Conn, error) {
	if s.conn == nil {
		return nil, &db.InvalidStateError{Resource: db.ResourceConnection, Op: op, Err: db.ErrNotOpen}
	}
	return s.conn, nil
}

// complete logs the outcome and publishes the notification.
func (s *Session) complete(ctx context.Context, conn *db.Conn, query string, res *Result, err error) {
	event := adapter.NewQueryCompletedEvent(s.meta.SessionID, res.QueryID, s.now(), res.Elapsed)
	event.Endpoint = s.meta.Endpoint
	event.Bucket = conn.Bucket()
	event.File = conn.File()
	event.Query = query
	event.Outcome = Outcome(err)

	fields := map[string]any{
		"query_id":    res.QueryID,
		"file":        conn.File(),
		"outcome":     event.Outcome,
		"duration_ms": event.DurationMs,
	}
	if err != nil {
		event.Error = err.Error()
		fields["error"] = err.Error()
		s.logger.Warn("query failed", fields)
	} else {
		event.Columns = res.Columns
		event.RowCount = len(res.Rows)
		event.Changes = res.Changes
		fields["rows"] = len(res.Rows)
		fields["changes"] = res.Changes
		s.logger.Debug("query completed", fields)
	}

	if s.adapter == nil {
		return
	}
	if perr := s.adapter.Publish(context.WithoutCancel(ctx), event); perr != nil {
		s.logger.Warn("publish query_completed failed", map[string]any{
			"query_id": res.QueryID,
			"error":    perr.Error(),
		})
	}
}

// Outcome classifies err into an adapter outcome.
func Outcome(err error) string {
	switch {
	case err == nil:
		return adapter.OutcomeSuccess
	case rpc.IsRemote(err):
		return adapter.OutcomeRemoteError
	case rpc.IsTransport(err):
		return adapter.OutcomeTransportError
	default:
		return adapter.OutcomeClientError
	}
}

