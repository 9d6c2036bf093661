package util

import (
	"fmt"
	"io"
	"net"
	"testing"
)

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 65432, "127.0.0.1:65432"},
		{"::1", 443, "[::1]:443"},
		{"bank.example.com", 80, "bank.example.com:80"},
	}
	for _, tt := range tests {
		if got := FormatAddr(tt.host, tt.port); got != tt.want {
			t.Errorf("FormatAddr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if port < 1 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}

func TestIsHarmless(t *testing.T) {
	if !IsHarmless(nil) {
		t.Error("nil should be harmless")
	}
	if !IsHarmless(io.EOF) {
		t.Error("io.EOF should be harmless")
	}
	if !IsHarmless(net.ErrClosed) {
		t.Error("net.ErrClosed should be harmless")
	}
	if !IsHarmless(&net.OpError{Op: "read", Net: "tcp", Err: net.ErrClosed}) {
		t.Error("OpError wrapping ErrClosed should be harmless")
	}
	if IsHarmless(io.ErrUnexpectedEOF) {
		t.Error("ErrUnexpectedEOF should NOT be harmless")
	}
	if IsHarmless(fmt.Errorf("boom")) {
		t.Error("plain error should NOT be harmless")
	}
}
