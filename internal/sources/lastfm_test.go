package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLastfmSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/player/station/user/alice/recommended" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"playlist": [
				{"_name": "Halo", "artists": [{"_name": "Beyoncé"}]},
				{"_name": "Duet", "artists": [{"_name": "First"}, {"_name": "Second"}]}
			]
		}`))
	}))
	defer server.Close()

	src, err := NewLastfmSource(server.URL, "alice", 0)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if src.Name() != "lastfm:alice" || src.Kind() != "lastfm" {
		t.Fatalf("unexpected identity: %s/%s", src.Name(), src.Kind())
	}

	mix, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if mix.Name != "Recommended by Lastfm" {
		t.Fatalf("unexpected mix name %q", mix.Name)
	}
	if len(mix.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(mix.Requests))
	}
	if mix.Requests[0].Title != "Halo" || mix.Requests[0].Artist != "Beyoncé" {
		t.Fatalf("unexpected first request: %+v", mix.Requests[0])
	}
	if mix.Requests[1].Artist != "First Second" {
		t.Fatalf("expected artists joined with a space, got %q", mix.Requests[1].Artist)
	}
}

func TestLastfmSourceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src, err := NewLastfmSource(server.URL, "alice", 0)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error on bad status")
	}
}

func TestNewLastfmSourceRequiresUsername(t *testing.T) {
	if _, err := NewLastfmSource("", "", 0); err == nil {
		t.Fatalf("expected error for empty username")
	}
}
