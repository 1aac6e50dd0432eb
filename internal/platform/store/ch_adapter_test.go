package store

import (
	"context"
	"errors"
	"testing"

	"scorekeeper/internal/platform/store/ch"
)

// TestCHAdapter_InsertShape rejects payloads that are not [][]any
func TestCHAdapter_InsertShape(t *testing.T) {
	t.Parallel()

	a := newCHAdapter(&ch.CH{})
	if err := a.Insert(context.Background(), "audit", struct{}{}); err == nil {
		t.Fatalf("Insert expected shape error, got nil")
	}
}

// TestCHAdapter_InsertNilConn surfaces the client error rather than panicking
func TestCHAdapter_InsertNilConn(t *testing.T) {
	t.Parallel()

	a := newCHAdapter(&ch.CH{})
	err := a.Insert(context.Background(), "audit", [][]any{{1, "x"}})
	if err == nil {
		t.Fatalf("Insert on zero client expected error")
	}
}

// TestCHAdapter_PingNil reports an error for a nil inner client
func TestCHAdapter_PingNil(t *testing.T) {
	t.Parallel()

	var a *clickhouseAdapter
	if err := a.Ping(context.Background()); err == nil {
		t.Fatalf("Ping on nil adapter expected error")
	}
}

// fakeChRows exercises the rows adapter delegation
type fakeChRows struct {
	nexts  int
	closed bool
	err    error
}

func (f *fakeChRows) Next() bool             { f.nexts++; return false }
func (f *fakeChRows) Scan(dest ...any) error { return nil }
func (f *fakeChRows) Err() error             { return f.err }
func (f *fakeChRows) Close() error           { f.closed = true; return nil }
func (f *fakeChRows) Columns() []string      { return []string{"alpha", "beta"} }

func TestRowsAdapter_Delegations(t *testing.T) {
	t.Parallel()

	f := &fakeChRows{err: errors.New("tail")}
	x := &rowsAdapter{r: f}

	cols := x.Columns()
	if len(cols) != 2 || cols[0] != "alpha" || cols[1] != "beta" {
		t.Fatalf("Columns mismatch: %#v", cols)
	}
	if x.Next() {
		t.Fatalf("Next should be false on fake")
	}
	var v int
	if err := x.Scan(&v); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if x.Err() == nil {
		t.Fatalf("Err should pass through")
	}
	x.Close()
	if !f.closed {
		t.Fatalf("Close did not delegate to underlying Rows")
	}
}
