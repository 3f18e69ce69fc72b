// Package metrics provides client-side call and handle metrics.
//
// The Collector accumulates counters for one client process. It is a leaf
// package with no internal dependencies so that rpc, db and session can all
// record into it.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// RPC
	CallsTotal      int64
	CallsByMethod   map[string]int64
	TransportErrors int64
	RemoteErrors    int64

	// Handles
	ConnectionsOpened   int64
	ConnectionsClosed   int64
	StatementsPrepared  int64
	StatementsFinalized int64

	// Data
	RowsStepped int64
	Executes    int64

	// Dimensions (informational, set at construction)
	Endpoint  string
	SessionID string
}

// Collector accumulates client metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	callsTotal      int64
	callsByMethod   map[string]int64
	transportErrors int64
	remoteErrors    int64

	connectionsOpened   int64
	connectionsClosed   int64
	statementsPrepared  int64
	statementsFinalized int64

	rowsStepped int64
	executes    int64

	endpoint  string
	sessionID string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(endpoint, sessionID string) *Collector {
	return &Collector{
		callsByMethod: make(map[string]int64),
		endpoint:      endpoint,
		sessionID:     sessionID,
	}
}

// --- RPC ---

// IncCall records one remote call attempt for method.
func (c *Collector) IncCall(method string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsTotal++
	c.callsByMethod[method]++
	c.mu.Unlock()
}

// IncTransportError records a call that never produced a response.
func (c *Collector) IncTransportError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transportErrors++
	c.mu.Unlock()
}

// IncRemoteError records a response whose envelope signalled failure.
func (c *Collector) IncRemoteError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.remoteErrors++
	c.mu.Unlock()
}

// --- Handles ---

// IncConnectionOpened records a successful create_connection.
func (c *Collector) IncConnectionOpened() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connectionsOpened++
	c.mu.Unlock()
}

// IncConnectionClosed records a connection release.
func (c *Collector) IncConnectionClosed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connectionsClosed++
	c.mu.Unlock()
}

// IncStatementPrepared records a successful prepare.
func (c *Collector) IncStatementPrepared() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.statementsPrepared++
	c.mu.Unlock()
}

// IncStatementFinalized records a statement release.
func (c *Collector) IncStatementFinalized() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.statementsFinalized++
	c.mu.Unlock()
}

// --- Data ---

// AddRowsStepped records n rows received from step calls.
func (c *Collector) AddRowsStepped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.rowsStepped += int64(n)
	c.mu.Unlock()
}

// IncExecute records one execute call.
func (c *Collector) IncExecute() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.executes++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byMethod := make(map[string]int64, len(c.callsByMethod))
	for k, v := range c.callsByMethod {
		byMethod[k] = v
	}

	return Snapshot{
		CallsTotal:      c.callsTotal,
		CallsByMethod:   byMethod,
		TransportErrors: c.transportErrors,
		RemoteErrors:    c.remoteErrors,

		ConnectionsOpened:   c.connectionsOpened,
		ConnectionsClosed:   c.connectionsClosed,
		StatementsPrepared:  c.statementsPrepared,
		StatementsFinalized: c.statementsFinalized,

		RowsStepped: c.rowsStepped,
		Executes:    c.executes,

		Endpoint:  c.endpoint,
		SessionID: c.sessionID,
	}
}

// OpenConnections returns connections opened minus closed.
func (s Snapshot) OpenConnections() int64 {
	return s.ConnectionsOpened - s.ConnectionsClosed
}

// OpenStatements returns statements prepared minus finalized.
func (s Snapshot) OpenStatements() int64 {
	return s.StatementsPrepared - s.StatementsFinalized
}
