package clickhouse

import (
	"net"
	"testing"
)

func TestClickHouseSink_ConnectFailure(t *testing.T) {
	// Reserve a port with no server behind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if _, err := New(addr, "diagnostics_history"); err == nil {
		t.Error("Expected connection error for unreachable ClickHouse, got nil")
	}
}
