// Package export writes query results to a Lode dataset and reads them back.
//
// Each export is one dataset snapshot holding a row record per result row
// and a closing summary record, Hive-partitioned by
// bucket/file/day/query_id.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/PuffoTrillionarioGonePublic/erldb/codec"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "erldb"

// Record kinds.
const (
	RecordKindRow     = "row"
	RecordKindSummary = "summary"
)

// PartitionKeys are the Hive layout keys, outermost first.
var PartitionKeys = []string{"bucket", "file", "day", "query_id"}

// ErrQueryNotFound is returned by ReadRows when no export has the query id.
var ErrQueryNotFound = errors.New("export: query not found")

// Query describes one exported result.
type Query struct {
	QueryID   string
	SessionID string
	Endpoint  string
	Bucket    string
	File      string
	Query     string
	Columns   []string
	Changes   int64
	// At is when the query completed. It determines the day partition.
	At time.Time
}

// Day returns the day partition value (UTC, YYYY-MM-DD).
func (q Query) Day() string {
	return q.At.UTC().Format(time.DateOnly)
}

// Exported is a result read back from the dataset.
type Exported struct {
	Query Query
	Rows  []types.Row
}

// Client writes and reads exported results.
type Client struct {
	dataset lode.Dataset
	name    string
}

// NewDataset creates the Lode dataset with the export layout and codec.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(PartitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewClient creates an export client over a store factory.
// Use lode.NewMemoryFactory() in tests.
func NewClient(dataset string, factory lode.StoreFactory) (*Client, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := NewDataset(dataset, factory)
	if err != nil {
		return nil, wrapStorageError(err, "init", dataset)
	}
	return &Client{dataset: ds, name: dataset}, nil
}

// NewFSClient creates an export client with filesystem storage under root.
func NewFSClient(dataset, root string) (*Client, error) {
	return NewClient(dataset, lode.NewFSFactory(root))
}

// Dataset returns the dataset id.
func (c *Client) Dataset() string { return c.name }

// Write stores rows and a summary record for q as one snapshot.
func (c *Client) Write(ctx context.Context, q Query, rows []types.Row) error {
	if q.QueryID == "" {
		return errors.New("export: query id is required")
	}
	if q.At.IsZero() {
		q.At = time.Now()
	}

	records := make([]any, 0, len(rows)+1)
	for i, row := range rows {
		rec, err := rowRecord(q, int64(i), row)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	records = append(records, summaryRecord(q, len(rows)))

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return wrapStorageError(err, "write", c.name+"/"+q.QueryID)
	}
	return nil
}

// ReadRows returns the most recent export of queryID.
func (c *Client) ReadRows(ctx context.Context, queryID string) (*Exported, error) {
	snapshots, err := c.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrapStorageError(err, "list", c.name)
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "query_id", queryID) {
			continue
		}
		data, err := c.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapStorageError(err, "read", fmt.Sprintf("%s/%s", c.name, snap.ID))
		}
		out, found, err := collect(data, queryID)
		if err != nil {
			return nil, err
		}
		if found {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, queryID)
}

// Close releases client resources.
func (c *Client) Close() error {
	return nil
}

func baseRecord(q Query, kind string) map[string]any {
	return map[string]any{
		"record_kind": kind,
		"query_id":    q.QueryID,
		"session_id":  q.SessionID,
		"bucket":      q.Bucket,
		"file":        q.File,
		"day":         q.Day(),
	}
}

func rowRecord(q Query, seq int64, row types.Row) (map[string]any, error) {
	wire := make([][2]any, len(row))
	for i, v := range row {
		wire[i] = codec.Wire(v)
	}
	exact, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("export: encode row %d: %w", seq, err)
	}
	rec := baseRecord(q, RecordKindRow)
	rec["seq"] = seq
	rec["columns"] = q.Columns
	rec["values"] = wire
	// values_json keeps int64 payloads exact through the JSONL codec.
	rec["values_json"] = string(exact)
	return rec, nil
}

func summaryRecord(q Query, rows int) map[string]any {
	rec := baseRecord(q, RecordKindSummary)
	rec["endpoint"] = q.Endpoint
	rec["query"] = q.Query
	rec["columns"] = q.Columns
	rec["row_count"] = rows
	rec["changes"] = q.Changes
	rec["completed_at"] = q.At.UTC().Format(time.RFC3339Nano)
	return rec
}

type seqRow struct {
	seq int64
	row types.Row
}

// collect extracts the rows and summary of queryID from one snapshot.
func collect(data []any, queryID string) (*Exported, bool, error) {
	var (
		summary map[string]any
		rows    []seqRow
	)
	for _, item := range data {
		rec, ok := item.(map[string]any)
		if !ok || toString(rec["query_id"]) != queryID {
			continue
		}
		switch rec["record_kind"] {
		case RecordKindSummary:
			summary = rec
		case RecordKindRow:
			row, err := codec.DecodeRow(json.RawMessage(toString(rec["values_json"])))
			if err != nil {
				return nil, false, fmt.Errorf("export: decode %s row %v: %w", queryID, rec["seq"], err)
			}
			rows = append(rows, seqRow{seq: toInt64(rec["seq"]), row: row})
		}
	}
	if summary == nil {
		return nil, false, nil
	}

	slices.SortFunc(rows, func(a, b seqRow) int { return int(a.seq - b.seq) })
	out := &Exported{
		Query: Query{
			QueryID:   queryID,
			SessionID: toString(summary["session_id"]),
			Endpoint:  toString(summary["endpoint"]),
			Bucket:    toString(summary["bucket"]),
			File:      toString(summary["file"]),
			Query:     toString(summary["query"]),
			Columns:   toStrings(summary["columns"]),
			Changes:   toInt64(summary["changes"]),
		},
		Rows: make([]types.Row, len(rows)),
	}
	if at, err := time.Parse(time.RFC3339Nano, toString(summary["completed_at"])); err == nil {
		out.Query.At = at
	}
	for i, r := range rows {
		out.Rows[i] = r.row
	}
	return out, true, nil
}

// snapshotMatches reports whether any file of snap lies in the key=value
// partition. An empty value matches every snapshot.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		if slices.Contains(strings.Split(f.Path, "/"), segment) {
			return true
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, toString(e))
		}
		return out
	}
	return nil
}
