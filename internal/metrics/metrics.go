// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of the bank server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"atmbank/internal/protocol"
)

// numCodes covers result codes 0..4.
const numCodes = int(protocol.CodeRejected) + 1

// Collector tracks runtime metrics for a bank server.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	requestsTotal     atomic.Int64
	results           [numCodes]atomic.Int64
	logins            atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// ── Request metrics ──────────────────────────────────────────────────

// RequestHandled counts one request and its outcome.
func (c *Collector) RequestHandled(code protocol.ResultCode) {
	if c == nil {
		return
	}
	c.requestsTotal.Add(1)
	if code >= 0 && int(code) < numCodes {
		c.results[code].Add(1)
	}
}

// LoginSucceeded counts a session becoming authenticated.
func (c *Collector) LoginSucceeded() {
	if c == nil {
		return
	}
	c.logins.Add(1)
}

// Requests returns the total number of requests handled.
func (c *Collector) Requests() int64 {
	if c == nil {
		return 0
	}
	return c.requestsTotal.Load()
}

// Results returns how many requests ended with code.
func (c *Collector) Results(code protocol.ResultCode) int64 {
	if c == nil || code < 0 || int(code) >= numCodes {
		return 0
	}
	return c.results[code].Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string           `json:"uptime"`
	ConnectionsActive int64            `json:"connections_active"`
	ConnectionsTotal  int64            `json:"connections_total"`
	BytesIn           int64            `json:"bytes_in"`
	BytesOut          int64            `json:"bytes_out"`
	RequestsTotal     int64            `json:"requests_total"`
	Results           map[string]int64 `json:"results"`
	Logins            int64            `json:"logins"`
	ErrorsTotal       int64            `json:"errors_total"`
	LastError         string           `json:"last_error,omitempty"`
	LastErrorMessage  string           `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		RequestsTotal:     c.requestsTotal.Load(),
		Results:           make(map[string]int64, numCodes),
		Logins:            c.logins.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	for i := 0; i < numCodes; i++ {
		s.Results[protocol.ResultCode(i).String()] = c.results[i].Load()
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
