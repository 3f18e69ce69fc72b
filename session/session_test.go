package session

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/PuffoTrillionarioGonePublic/erldb/adapter"
	"github.com/PuffoTrillionarioGonePublic/erldb/db"
	"github.com/PuffoTrillionarioGonePublic/erldb/internal/erldbtest"
	"github.com/PuffoTrillionarioGonePublic/erldb/log"
	"github.com/PuffoTrillionarioGonePublic/erldb/metrics"
	"github.com/PuffoTrillionarioGonePublic/erldb/rpc"
)

type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.QueryCompletedEvent
	err    error
}

func (r *recordingAdapter) Publish(_ context.Context, e *adapter.QueryCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingAdapter) Close() error { return nil }

func newSession(t *testing.T, opts ...Option) (*Session, *erldbtest.Server) {
	t.Helper()
	srv := erldbtest.New(t)
	client, err := rpc.New(rpc.Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return New(client, opts...), srv
}

func TestSession_QueryWithoutUse(t *testing.T) {
	s, srv := newSession(t)

	_, err := s.Query(t.Context(), "SELECT 1")
	if !errors.Is(err, db.ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if len(srv.Calls()) != 0 {
		t.Errorf("expected no calls, got %v", srv.Methods())
	}
}

func TestSession_UseQueryClose(t *testing.T) {
	s, srv := newSession(t)
	ctx := t.Context()

	if err := s.Use(ctx, "users.db", ""); err != nil {
		t.Fatalf("use: %v", err)
	}
	res, err := s.Query(ctx, "SELECT ?, ?", 1, "a")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !slices.Equal(res.Columns, []string{"?", "?"}) {
		t.Errorf("unexpected columns %v", res.Columns)
	}
	table := res.Table()
	if len(table) != 1 || !slices.Equal(table[0], []string{"1", "a"}) {
		t.Errorf("unexpected table %v", table)
	}
	if res.QueryID == "" {
		t.Error("expected query id")
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.Conn() != nil {
		t.Error("connection should be released")
	}
	if srv.OpenConnections() != 0 || srv.OpenStatements() != 0 {
		t.Errorf("leaked handles: %d conns, %d stmts", srv.OpenConnections(), srv.OpenStatements())
	}

	create := srv.Calls()[0]
	if create.Args[rpc.ArgBucket] != DefaultBucket || create.Args[rpc.ArgFile] != "users.db" {
		t.Errorf("unexpected create args %v", create.Args)
	}
}

func TestSession_UseReplacesConnection(t *testing.T) {
	s, srv := newSession(t, WithBucket("b1"))
	ctx := t.Context()

	if err := s.Use(ctx, "a.db", ""); err != nil {
		t.Fatalf("use a: %v", err)
	}
	if err := s.Use(ctx, "b.db", "b2"); err != nil {
		t.Fatalf("use b: %v", err)
	}

	want := []string{rpc.MethodCreateConnection, rpc.MethodClose, rpc.MethodCreateConnection}
	if got := srv.Methods(); !slices.Equal(got, want) {
		t.Errorf("calls: got %v, want %v", got, want)
	}
	if s.Conn().File() != "b.db" || s.Conn().Bucket() != "b2" {
		t.Errorf("unexpected current connection %s/%s", s.Conn().Bucket(), s.Conn().File())
	}
	if srv.OpenConnections() != 1 {
		t.Errorf("expected one open connection, got %d", srv.OpenConnections())
	}
}

func TestSession_UseSurvivesCloseFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogger(log.NewSessionMeta("")).WithOutput(&buf)
	s, srv := newSession(t, WithLogger(logger))
	ctx := t.Context()

	if err := s.Use(ctx, "a.db", ""); err != nil {
		t.Fatalf("use a: %v", err)
	}
	srv.Fail(rpc.MethodClose, http.StatusInternalServerError, "boom")
	if err := s.Use(ctx, "b.db", ""); err != nil {
		t.Fatalf("use b: %v", err)
	}
	if s.Conn().File() != "b.db" {
		t.Errorf("expected b.db, got %s", s.Conn().File())
	}
	if !strings.Contains(buf.String(), "close previous connection failed") {
		t.Errorf("expected warning, got %s", buf.String())
	}
}

func TestSession_ExecReportsChanges(t *testing.T) {
	s, _ := newSession(t)
	ctx := t.Context()

	if err := s.Use(ctx, "users.db", ""); err != nil {
		t.Fatalf("use: %v", err)
	}
	res, err := s.Exec(ctx, "INSERT INTO users VALUES (?)", "ann")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.Changes != 1 {
		t.Errorf("expected 1 change, got %d", res.Changes)
	}
}

func TestSession_PublishesEvents(t *testing.T) {
	rec := &recordingAdapter{}
	meta := &log.SessionMeta{SessionID: "sess-1", Endpoint: "http://node0"}
	coll := metrics.NewCollector(meta.Endpoint, meta.SessionID)
	s, srv := newSession(t, WithAdapter(rec), WithMeta(meta), WithCollector(coll))
	ctx := t.Context()

	if err := s.Use(ctx, "users.db", "main"); err != nil {
		t.Fatalf("use: %v", err)
	}
	if _, err := s.Query(ctx, "SELECT ?", 7); err != nil {
		t.Fatalf("query: %v", err)
	}
	srv.Fail(rpc.MethodPrepare, http.StatusInternalServerError, "no such table")
	if _, err := s.Query(ctx, "SELECT * FROM missing"); err == nil {
		t.Fatal("expected error")
	}

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	ok, failed := rec.events[0], rec.events[1]
	if ok.EventType != adapter.EventQueryCompleted || ok.Outcome != adapter.OutcomeSuccess {
		t.Errorf("unexpected success event %+v", ok)
	}
	if ok.SessionID != "sess-1" || ok.Endpoint != "http://node0" || ok.Bucket != "main" || ok.File != "users.db" {
		t.Errorf("unexpected identity %+v", ok)
	}
	if ok.RowCount != 1 || len(ok.Columns) != 1 {
		t.Errorf("unexpected result shape %+v", ok)
	}
	if failed.Outcome != adapter.OutcomeRemoteError || failed.Error == "" {
		t.Errorf("unexpected failure event %+v", failed)
	}

	snap := coll.Snapshot()
	if snap.RemoteErrors != 1 || snap.StatementsPrepared != 1 || snap.RowsStepped != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestSession_PublishFailureDoesNotFailQuery(t *testing.T) {
	rec := &recordingAdapter{err: errors.New("redis down")}
	s, _ := newSession(t, WithAdapter(rec))
	ctx := t.Context()

	if err := s.Use(ctx, "users.db", ""); err != nil {
		t.Fatalf("use: %v", err)
	}
	if _, err := s.Query(ctx, "SELECT 1"); err != nil {
		t.Fatalf("query should succeed: %v", err)
	}
}

func TestSession_FilesAndVersion(t *testing.T) {
	s, srv := newSession(t, WithBucket("main"))
	srv.SetFiles("main", "a.db")

	files, err := s.Files(t.Context(), "")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if !slices.Equal(files, []string{"a.db"}) {
		t.Errorf("unexpected files %v", files)
	}

	v, err := s.ServerVersion(t.Context())
	if err != nil || v != erldbtest.LibVersion {
		t.Errorf("server version = %q, %v", v, err)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, adapter.OutcomeSuccess},
		{&rpc.RemoteCallError{Method: "prepare"}, adapter.OutcomeRemoteError},
		{&rpc.TransportError{Method: "prepare", Err: errors.New("refused")}, adapter.OutcomeTransportError},
		{errors.New("other"), adapter.OutcomeClientError},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestSession_CloseWithoutConnection(t *testing.T) {
	s, _ := newSession(t)
	if err := s.Close(t.Context()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
