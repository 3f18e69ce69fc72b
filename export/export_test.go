package export

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/PuffoTrillionarioGonePublic/erldb/codec"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// sharedFactory returns a StoreFactory that always returns the given store,
// so write and read paths share the same in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testQuery(id string) Query {
	return Query{
		QueryID:   id,
		SessionID: "sess-1",
		Endpoint:  "http://localhost:8080",
		Bucket:    "default",
		File:      "users.db",
		Query:     "SELECT ?, ?, ?",
		Columns:   []string{"a", "b", "c"},
		Changes:   0,
		At:        time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
	}
}

func mustRow(t *testing.T, args ...any) types.Row {
	t.Helper()
	vals, err := codec.EncodeAll(args)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return types.Row(vals)
}

func TestWriteAndReadRows(t *testing.T) {
	c, err := NewClient("", sharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Dataset() != DefaultDataset {
		t.Errorf("expected default dataset, got %s", c.Dataset())
	}

	rows := []types.Row{
		mustRow(t, int64(9007199254740993), "x", []byte("4")),
		mustRow(t, nil, 2.5, ""),
	}
	if err := c.Write(t.Context(), testQuery("q-1"), rows); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := c.ReadRows(t.Context(), "q-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Query.File != "users.db" || got.Query.Query != "SELECT ?, ?, ?" {
		t.Errorf("unexpected query %+v", got.Query)
	}
	if !slices.Equal(got.Query.Columns, []string{"a", "b", "c"}) {
		t.Errorf("unexpected columns %v", got.Query.Columns)
	}
	if !got.Query.At.Equal(testQuery("").At) {
		t.Errorf("unexpected time %v", got.Query.At)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got.Rows))
	}
	for i := range rows {
		if g, w := codec.RenderRow(got.Rows[i]), codec.RenderRow(rows[i]); !slices.Equal(g, w) {
			t.Errorf("row %d: got %v, want %v", i, g, w)
		}
	}
	if n, _ := codec.Native(got.Rows[0][0]); n != int64(9007199254740993) {
		t.Errorf("integer precision lost: %v", n)
	}
}

func TestReadRows_LatestOfManyQueries(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	c, err := NewClient("results", factory)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for i := range 3 {
		id := fmt.Sprintf("q-%d", i)
		if err := c.Write(t.Context(), testQuery(id), []types.Row{mustRow(t, i, i, i)}); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}

	// q-1 is a prefix of q-10; partition matching must be exact.
	if err := c.Write(t.Context(), testQuery("q-10"), nil); err != nil {
		t.Fatalf("write q-10: %v", err)
	}

	got, err := c.ReadRows(t.Context(), "q-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Rows) != 1 || codec.Render(got.Rows[0][0]) != "1" {
		t.Errorf("unexpected rows %v", got.Rows)
	}

	empty, err := c.ReadRows(t.Context(), "q-10")
	if err != nil {
		t.Fatalf("read q-10: %v", err)
	}
	if len(empty.Rows) != 0 {
		t.Errorf("expected no rows, got %d", len(empty.Rows))
	}
}

func TestReadRows_NotFound(t *testing.T) {
	c, err := NewClient("results", sharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.ReadRows(t.Context(), "missing")
	if !errors.Is(err, ErrQueryNotFound) {
		t.Errorf("expected ErrQueryNotFound, got %v", err)
	}
}

func TestWrite_RequiresQueryID(t *testing.T) {
	c, err := NewClient("results", sharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Write(t.Context(), Query{}, nil); err == nil {
		t.Error("expected error")
	}
}

func TestFSClient_WritesPartitions(t *testing.T) {
	root := t.TempDir()
	c, err := NewFSClient("results", root)
	if err != nil {
		t.Fatalf("new fs client: %v", err)
	}
	if err := c.Write(t.Context(), testQuery("q-fs"), []types.Row{mustRow(t, 1, 2, 3)}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := c.ReadRows(t.Context(), "q-fs")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(got.Rows))
	}
}

func TestRecords(t *testing.T) {
	q := testQuery("q-r")
	rec, err := rowRecord(q, 4, mustRow(t, nil, 1))
	if err != nil {
		t.Fatalf("row record: %v", err)
	}
	if rec["record_kind"] != RecordKindRow || rec["seq"] != int64(4) || rec["day"] != "2026-10-18" {
		t.Errorf("unexpected row record %v", rec)
	}
	if rec["values_json"] != `[[0,null],[1,1]]` {
		t.Errorf("unexpected values_json %v", rec["values_json"])
	}

	sum := summaryRecord(q, 7)
	if sum["record_kind"] != RecordKindSummary || sum["row_count"] != 7 {
		t.Errorf("unexpected summary %v", sum)
	}
}
