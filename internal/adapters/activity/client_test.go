package activity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scorekeeper/internal/services/engine/domain"
)

func ident() domain.Identity {
	return domain.Identity{UserID: 7, ProjectID: 3, Signal: "forum"}
}

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", RetryBase: time.Millisecond})
	c.sleep = func(time.Duration) {}
	return c
}

func TestActiveDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/7/projects/3/signals/forum/days" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != "2026-08-18" {
			t.Errorf("since = %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("auth = %s", got)
		}
		w.Write([]byte(`{"days":["2026-08-20","2026-08-22"]}`))
	}))
	defer srv.Close()

	days, err := newTestClient(srv).ActiveDays(context.Background(), ident(),
		time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2", len(days))
	}
	if got := days[0].Format("2006-01-02"); got != "2026-08-20" {
		t.Fatalf("days[0] = %s", got)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("day"); got != "2026-08-20" {
			t.Errorf("day = %s", got)
		}
		w.Write([]byte(`{"description":"posted twice","entries":[{"at":"2026-08-20T10:00:00Z","text":"hi"}]}`))
	}))
	defer srv.Close()

	act, err := newTestClient(srv).Fetch(context.Background(), ident(),
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if act.Description != "posted twice" {
		t.Fatalf("description = %q", act.Description)
	}
	if len(act.Entries) != 1 || act.Entries[0].Text != "hi" {
		t.Fatalf("entries = %+v", act.Entries)
	}
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"days":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).ActiveDays(context.Background(), ident(), time.Now(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestGet_ClientErrorsDoNotRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).ActiveDays(context.Background(), ident(), time.Now(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want no retries on 404", calls)
	}
}
