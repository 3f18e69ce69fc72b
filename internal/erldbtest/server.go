// Package erldbtest provides an in-process fake erldb node for tests.
//
// The fake understands enough of the protocol to drive connections and
// statements end to end. SELECT statements echo their bound parameters back
// as a single row; other statements return no rows and report one change.
package erldbtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// LibVersion is the version string reported by lib_version.
const LibVersion = "3.45.1"

// Call is one request received by the fake.
type Call struct {
	Method string
	Args   map[string]any
}

// Int returns the integer argument key, or -1 if absent or not an integer.
func (c Call) Int(key string) int64 {
	n, ok := toInt(c.Args[key])
	if !ok {
		return -1
	}
	return n
}

type failure struct {
	status int
	body   string
}

type statement struct {
	conn    int64
	query   string
	columns []string
	params  []json.RawMessage
	stepped bool
}

// Server is a fake erldb node backed by httptest.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	calls      []Call
	nextConn   int64
	nextStmt   int64
	nextRowID  int64
	conns      map[int64]string
	changes    map[int64]int64
	statements map[int64]*statement
	files      map[string][]string
	failures   map[string]failure
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		conns:      make(map[int64]string),
		changes:    make(map[int64]int64),
		statements: make(map[int64]*statement),
		files:      make(map[string][]string),
		failures:   make(map[string]failure),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetFiles sets the files reported by list_files for bucket.
func (s *Server) SetFiles(bucket string, files ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[bucket] = files
}

// Fail makes every later call to method respond with status and the raw body.
func (s *Server) Fail(method string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = failure{status: status, body: body}
}

// Calls returns a copy of the received calls in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Methods returns the method names of the received calls in arrival order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Method
	}
	return out
}

// OpenConnections returns the number of connections not yet closed.
func (s *Server) OpenConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// OpenStatements returns the number of statements not yet finalized.
func (s *Server) OpenStatements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statements)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	method := r.URL.Query().Get("target")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	args := map[string]any{}
	if len(body) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})

	if f, ok := s.failures[method]; ok {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
		return
	}

	result, err := s.dispatch(method, args)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": result})
}

func (s *Server) dispatch(method string, args map[string]any) (any, error) {
	switch method {
	case "create_connection":
		file, _ := args["File"].(string)
		if file == "" {
			return nil, fmt.Errorf("missing File")
		}
		s.nextConn++
		s.conns[s.nextConn] = file
		return s.nextConn, nil
	case "close":
		id, err := s.conn(args)
		if err != nil {
			return nil, err
		}
		delete(s.conns, id)
		for sid, st := range s.statements {
			if st.conn == id {
				delete(s.statements, sid)
			}
		}
		return "ok", nil
	case "prepare":
		id, err := s.conn(args)
		if err != nil {
			return nil, err
		}
		query, _ := args["Query"].(string)
		s.nextStmt++
		n := strings.Count(query, "?")
		st := &statement{conn: id, query: query, params: make([]json.RawMessage, n)}
		if isSelect(query) {
			st.columns = make([]string, n)
			for i := range st.columns {
				st.columns[i] = "?"
			}
		}
		s.statements[s.nextStmt] = st
		return s.nextStmt, nil
	case "bind":
		st, err := s.stmt(args)
		if err != nil {
			return nil, err
		}
		n, ok := toInt(args["N"])
		if !ok || n < 1 || int(n) > len(st.params) {
			return nil, fmt.Errorf("bind index %v out of range", args["N"])
		}
		raw, err := json.Marshal(args["Value"])
		if err != nil {
			return nil, err
		}
		st.params[n-1] = raw
		return "ok", nil
	case "step_by", "step":
		st, err := s.stmt(args)
		if err != nil {
			return nil, err
		}
		if !isSelect(st.query) {
			if !st.stepped {
				s.changes[st.conn] = 1
				s.nextRowID++
			}
			st.stepped = true
			return nil, nil
		}
		if st.stepped {
			return nil, nil
		}
		st.stepped = true
		row := make([]json.RawMessage, len(st.params))
		for i, p := range st.params {
			if p == nil {
				p = json.RawMessage(`[0,null]`)
			}
			row[i] = p
		}
		s.changes[st.conn] = 0
		return []any{row}, nil
	case "finalize":
		if _, err := s.stmt(args); err != nil {
			return nil, err
		}
		id, _ := toInt(args["Stmt"])
		delete(s.statements, id)
		return "ok", nil
	case "reset":
		st, err := s.stmt(args)
		if err != nil {
			return nil, err
		}
		st.stepped = false
		return "ok", nil
	case "clear_bindings":
		st, err := s.stmt(args)
		if err != nil {
			return nil, err
		}
		clear(st.params)
		return "ok", nil
	case "column_names":
		st, err := s.stmt(args)
		if err != nil {
			return nil, err
		}
		if st.columns == nil {
			return []string{}, nil
		}
		return st.columns, nil
	case "column_name":
		st, err := s.stmt(args)
		if err != nil {
			return nil, err
		}
		i, ok := toInt(args["index"])
		if !ok || i < 0 || int(i) >= len(st.columns) {
			return nil, fmt.Errorf("column index %v out of range", args["index"])
		}
		return st.columns[i], nil
	case "column_count":
		st, err := s.stmt(args)
		if err != nil {
			return nil, err
		}
		return len(st.columns), nil
	case "bind_parameter_count":
		st, err := s.stmt(args)
		if err != nil {
			return nil, err
		}
		return len(st.params), nil
	case "execute":
		id, err := s.conn(args)
		if err != nil {
			return nil, err
		}
		if _, ok := args["Params"].([]any); !ok && args["Params"] != nil {
			return nil, fmt.Errorf("Params must be a list")
		}
		s.changes[id] = 1
		s.nextRowID++
		return 0, nil
	case "changes":
		id, err := s.conn(args)
		if err != nil {
			return nil, err
		}
		return s.changes[id], nil
	case "last_insert_rowid":
		if _, err := s.conn(args); err != nil {
			return nil, err
		}
		return s.nextRowID, nil
	case "busy_timeout", "interrupt":
		if _, err := s.conn(args); err != nil {
			return nil, err
		}
		return "ok", nil
	case "list_files":
		bucket, _ := args["Bucket"].(string)
		files := s.files[bucket]
		if files == nil {
			files = []string{}
		}
		return files, nil
	case "lib_version":
		return LibVersion, nil
	default:
		return nil, fmt.Errorf("unknown target %q", method)
	}
}

func (s *Server) conn(args map[string]any) (int64, error) {
	id, ok := toInt(args["Conn"])
	if !ok {
		return 0, fmt.Errorf("missing Conn")
	}
	if _, ok := s.conns[id]; !ok {
		return 0, fmt.Errorf("unknown connection %d", id)
	}
	return id, nil
}

func (s *Server) stmt(args map[string]any) (*statement, error) {
	conn, err := s.conn(args)
	if err != nil {
		return nil, err
	}
	id, ok := toInt(args["Stmt"])
	if !ok {
		return nil, fmt.Errorf("missing Stmt")
	}
	st, ok := s.statements[id]
	if !ok || st.conn != conn {
		return nil, fmt.Errorf("unknown statement %d", id)
	}
	return st, nil
}

func isSelect(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT")
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
