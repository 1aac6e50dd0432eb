package ch

import (
	"context"
	"testing"
)

// TestOpen_BadDSN rejects malformed DSNs before dialing
func TestOpen_BadDSN(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := Open(ctx, Config{URL: "://not-a-dsn"}); err == nil {
		t.Fatalf("Open expected error for malformed dsn")
	}
}

// TestNilClient_SafeCalls ensures a zero client fails loudly instead of panicking
func TestNilClient_SafeCalls(t *testing.T) {
	t.Parallel()

	cl := &CH{}
	ctx := context.Background()

	if err := cl.Insert(ctx, "t", [][]any{{1}}); err == nil {
		t.Fatalf("Insert on nil connection expected error")
	}
	if _, err := cl.Query(ctx, "SELECT 1"); err == nil {
		t.Fatalf("Query on nil connection expected error")
	}
	if err := cl.Ping(ctx); err == nil {
		t.Fatalf("Ping on nil connection expected error")
	}
}

// TestInsert_EmptyRows is a no op and must not touch the connection
func TestInsert_EmptyRows(t *testing.T) {
	t.Parallel()

	cl := &CH{}
	if err := cl.Insert(context.Background(), "t", nil); err != nil {
		t.Fatalf("Insert with no rows should be a no op, got %v", err)
	}
}

// TestClose_NoOp on a zero client
func TestClose_NoOp(t *testing.T) {
	t.Parallel()

	cl := &CH{}
	if err := cl.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
