package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PuffoTrillionarioGonePublic/erldb/codec"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// Remote method names.
const (
	MethodCreateConnection   = "create_connection"
	MethodClose              = "close"
	MethodPrepare            = "prepare"
	MethodBind               = "bind"
	MethodStepBy             = "step_by"
	MethodFinalize           = "finalize"
	MethodColumnNames        = "column_names"
	MethodColumnName         = "column_name"
	MethodColumnCount        = "column_count"
	MethodBindParameterCount = "bind_parameter_count"
	MethodReset              = "reset"
	MethodClearBindings      = "clear_bindings"
	MethodExecute            = "execute"
	MethodChanges            = "changes"
	MethodLastInsertRowID    = "last_insert_rowid"
	MethodBusyTimeout        = "busy_timeout"
	MethodInterrupt          = "interrupt"
	MethodListFiles          = "list_files"
	MethodLibVersion         = "lib_version"
)

// Keyword argument names. All are capitalized except the column index.
const (
	ArgBucket  = "Bucket"
	ArgFile    = "File"
	ArgConn    = "Conn"
	ArgStmt    = "Stmt"
	ArgQuery   = "Query"
	ArgParams  = "Params"
	ArgN       = "N"
	ArgValue   = "Value"
	ArgTimeout = "Timeout"
	ArgIndex   = "index"
)

// Caller is the minimal surface the scoped handles need.
// *Client implements it.
type Caller interface {
	Call(ctx context.Context, method string, args map[string]any) (json.RawMessage, error)
}

// ConnID is an opaque server-issued connection identifier.
type ConnID = json.RawMessage

// StmtID is an opaque server-issued statement identifier.
type StmtID = json.RawMessage

// CreateConnection opens a server-side connection to file in bucket and
// returns its identifier.
func CreateConnection(ctx context.Context, c Caller, bucket, file string) (ConnID, error) {
	raw, err := c.Call(ctx, MethodCreateConnection, map[string]any{ArgBucket: bucket, ArgFile: file})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, fmt.Errorf("rpc: %s returned a null connection id", MethodCreateConnection)
	}
	return raw, nil
}

// CloseConnection releases a server-side connection.
func CloseConnection(ctx context.Context, c Caller, conn ConnID) error {
	_, err := c.Call(ctx, MethodClose, map[string]any{ArgConn: conn})
	return err
}

// Prepare compiles query on conn and returns the statement identifier.
func Prepare(ctx context.Context, c Caller, conn ConnID, query string) (StmtID, error) {
	raw, err := c.Call(ctx, MethodPrepare, map[string]any{ArgConn: conn, ArgQuery: query})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, fmt.Errorf("rpc: %s returned a null statement id", MethodPrepare)
	}
	return raw, nil
}

// Bind sets the 1-based parameter n of stmt to v.
func Bind(ctx context.Context, c Caller, conn ConnID, stmt StmtID, n int, v types.Value) error {
	_, err := c.Call(ctx, MethodBind, stmtArgs(conn, stmt, ArgN, n, ArgValue, codec.Wire(v)))
	return err
}

// StepBy advances stmt by up to n rows. done reports the end marker.
func StepBy(ctx context.Context, c Caller, conn ConnID, stmt StmtID, n int) ([]types.Row, bool, error) {
	raw, err := c.Call(ctx, MethodStepBy, stmtArgs(conn, stmt, ArgN, n))
	if err != nil {
		return nil, false, err
	}
	return DecodeRows(raw)
}

// Finalize releases a prepared statement.
func Finalize(ctx context.Context, c Caller, conn ConnID, stmt StmtID) error {
	_, err := c.Call(ctx, MethodFinalize, stmtArgs(conn, stmt))
	return err
}

// ColumnNames returns the result column names of stmt.
func ColumnNames(ctx context.Context, c Caller, conn ConnID, stmt StmtID) ([]string, error) {
	raw, err := c.Call(ctx, MethodColumnNames, stmtArgs(conn, stmt))
	if err != nil {
		return nil, err
	}
	return DecodeStrings(MethodColumnNames, raw)
}

// ColumnName returns the name of the 0-based column index.
func ColumnName(ctx context.Context, c Caller, conn ConnID, stmt StmtID, index int) (string, error) {
	raw, err := c.Call(ctx, MethodColumnName, stmtArgs(conn, stmt, ArgIndex, index))
	if err != nil {
		return "", err
	}
	return DecodeString(MethodColumnName, raw)
}

// ColumnCount returns the number of result columns of stmt.
func ColumnCount(ctx context.Context, c Caller, conn ConnID, stmt StmtID) (int64, error) {
	raw, err := c.Call(ctx, MethodColumnCount, stmtArgs(conn, stmt))
	if err != nil {
		return 0, err
	}
	return DecodeInt(MethodColumnCount, raw)
}

// BindParameterCount returns the number of bindable parameters of stmt.
func BindParameterCount(ctx context.Context, c Caller, conn ConnID, stmt StmtID) (int64, error) {
	raw, err := c.Call(ctx, MethodBindParameterCount, stmtArgs(conn, stmt))
	if err != nil {
		return 0, err
	}
	return DecodeInt(MethodBindParameterCount, raw)
}

// Reset rewinds stmt so it can be stepped again.
func Reset(ctx context.Context, c Caller, conn ConnID, stmt StmtID) error {
	_, err := c.Call(ctx, MethodReset, stmtArgs(conn, stmt))
	return err
}

// ClearBindings resets every parameter of stmt to null.
func ClearBindings(ctx context.Context, c Caller, conn ConnID, stmt StmtID) error {
	_, err := c.Call(ctx, MethodClearBindings, stmtArgs(conn, stmt))
	return err
}

// Execute runs query on conn with positional params and returns the
// server's result count.
func Execute(ctx context.Context, c Caller, conn ConnID, query string, params []types.Value) (int64, error) {
	raw, err := c.Call(ctx, MethodExecute, map[string]any{
		ArgConn:   conn,
		ArgQuery:  query,
		ArgParams: codec.WireAll(params),
	})
	if err != nil {
		return 0, err
	}
	if isNull(raw) {
		return 0, nil
	}
	return DecodeInt(MethodExecute, raw)
}

// Changes returns the number of rows modified by the last statement on conn.
func Changes(ctx context.Context, c Caller, conn ConnID) (int64, error) {
	raw, err := c.Call(ctx, MethodChanges, map[string]any{ArgConn: conn})
	if err != nil {
		return 0, err
	}
	return DecodeInt(MethodChanges, raw)
}

// LastInsertRowID returns the rowid of the most recent insert on conn.
func LastInsertRowID(ctx context.Context, c Caller, conn ConnID) (int64, error) {
	raw, err := c.Call(ctx, MethodLastInsertRowID, map[string]any{ArgConn: conn})
	if err != nil {
		return 0, err
	}
	return DecodeInt(MethodLastInsertRowID, raw)
}

// BusyTimeout sets the server-side lock wait of conn.
func BusyTimeout(ctx context.Context, c Caller, conn ConnID, timeout time.Duration) error {
	_, err := c.Call(ctx, MethodBusyTimeout, map[string]any{ArgConn: conn, ArgTimeout: timeout.Milliseconds()})
	return err
}

// Interrupt aborts any pending operation on conn.
func Interrupt(ctx context.Context, c Caller, conn ConnID) error {
	_, err := c.Call(ctx, MethodInterrupt, map[string]any{ArgConn: conn})
	return err
}

// ListFiles returns the database files held in bucket.
func ListFiles(ctx context.Context, c Caller, bucket string) ([]string, error) {
	raw, err := c.Call(ctx, MethodListFiles, map[string]any{ArgBucket: bucket})
	if err != nil {
		return nil, err
	}
	return DecodeStrings(MethodListFiles, raw)
}

// LibVersion returns the server's storage engine version string.
func LibVersion(ctx context.Context, c Caller) (string, error) {
	raw, err := c.Call(ctx, MethodLibVersion, nil)
	if err != nil {
		return "", err
	}
	return DecodeString(MethodLibVersion, raw)
}

// DecodeInt decodes an integer result.
func DecodeInt(method string, raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("rpc: decode %s result %s: %w", method, raw, err)
	}
	return n, nil
}

// DecodeString decodes a string result.
func DecodeString(method string, raw json.RawMessage) (string, error) {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("rpc: decode %s result %s: %w", method, raw, err)
	}
	return v, nil
}

// DecodeStrings decodes a list-of-strings result. Null decodes as empty.
func DecodeStrings(method string, raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("rpc: decode %s result %s: %w", method, raw, err)
	}
	return out, nil
}

// DecodeRows decodes a step_by result: a list of rows, each a list of
// tagged values. A null or empty list marks the end of the result set and
// reports done.
func DecodeRows(raw json.RawMessage) (rows []types.Row, done bool, err error) {
	if isNull(raw) {
		return nil, true, nil
	}
	var wire []json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, false, fmt.Errorf("rpc: decode %s result %s: %w", MethodStepBy, raw, err)
	}
	if len(wire) == 0 {
		return nil, true, nil
	}
	rows = make([]types.Row, 0, len(wire))
	for i, w := range wire {
		row, err := codec.DecodeRow(w)
		if err != nil {
			return nil, false, fmt.Errorf("rpc: decode %s row %d: %w", MethodStepBy, i, err)
		}
		rows = append(rows, row)
	}
	return rows, false, nil
}

// stmtArgs builds {Conn, Stmt} plus extra key/value pairs.
func stmtArgs(conn ConnID, stmt StmtID, kv ...any) map[string]any {
	args := map[string]any{ArgConn: conn, ArgStmt: stmt}
	for i := 0; i+1 < len(kv); i += 2 {
		args[kv[i].(string)] = kv[i+1]
	}
	return args
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
