package metrics

import (
	"encoding/json"
	"testing"

	"atmbank/internal/protocol"
)

func TestCollector_Connections(t *testing.T) {
	c := New()

	c.ConnectionOpened()
	c.ConnectionOpened()
	if c.ActiveConnections() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveConnections())
	}
	if c.TotalConnections() != 2 {
		t.Errorf("total = %d, want 2", c.TotalConnections())
	}

	c.ConnectionClosed()
	if c.ActiveConnections() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveConnections())
	}
	if c.TotalConnections() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalConnections())
	}
}

func TestCollector_Requests(t *testing.T) {
	c := New()

	c.RequestHandled(protocol.CodeOK)
	c.RequestHandled(protocol.CodeOK)
	c.RequestHandled(protocol.CodeOverdraft)
	c.RequestHandled(protocol.ResultCode(42))

	if c.Requests() != 4 {
		t.Errorf("requests = %d, want 4", c.Requests())
	}
	if c.Results(protocol.CodeOK) != 2 {
		t.Errorf("ok = %d, want 2", c.Results(protocol.CodeOK))
	}
	if c.Results(protocol.CodeOverdraft) != 1 {
		t.Errorf("overdraft = %d, want 1", c.Results(protocol.CodeOverdraft))
	}
	if c.Results(protocol.ResultCode(42)) != 0 {
		t.Error("out-of-range code should read as 0")
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	c.BytesReceived(100)
	c.BytesSent(50)
	c.LoginSucceeded()
	c.RequestHandled(protocol.CodeInvalidLogin)
	c.RecordError("test")

	snap := c.Snapshot()
	if snap.ConnectionsActive != 1 {
		t.Errorf("snap active = %d", snap.ConnectionsActive)
	}
	if snap.BytesIn != 100 || snap.BytesOut != 50 {
		t.Errorf("snap bytes = %d/%d", snap.BytesIn, snap.BytesOut)
	}
	if snap.Logins != 1 {
		t.Errorf("snap logins = %d", snap.Logins)
	}
	if snap.Results["invalid-login"] != 1 || snap.Results["ok"] != 0 {
		t.Errorf("snap results = %v", snap.Results)
	}
	if snap.ErrorsTotal != 1 {
		t.Errorf("snap errors = %d", snap.ErrorsTotal)
	}
	if snap.LastErrorMessage != "test" {
		t.Errorf("snap error msg = %q", snap.LastErrorMessage)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	c.RequestHandled(protocol.CodeRejected)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.ConnectionsActive != 1 {
		t.Errorf("JSON active = %d", snap.ConnectionsActive)
	}
	if snap.Results["rejected"] != 1 {
		t.Errorf("JSON results = %v", snap.Results)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.RequestHandled(protocol.CodeOK)
	c.LoginSucceeded()
	c.RecordError("test")

	if c.ActiveConnections() != 0 || c.Requests() != 0 || c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}

	snap := c.Snapshot()
	if snap.ConnectionsActive != 0 {
		t.Error("nil snapshot should be zero")
	}

	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
