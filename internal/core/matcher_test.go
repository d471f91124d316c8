package core

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// hintSearcher serves a canned hint list regardless of term.
type hintSearcher struct {
	hints []IndexedItem
	err   error
}

func (s *hintSearcher) SearchHints(ctx context.Context, term string) ([]IndexedItem, error) {
	return s.hints, s.err
}

func newTestMatcher(t *testing.T, search Searcher, items []IndexedItem) *Matcher {
	t.Helper()
	library := &fakeLibrary{items: items}
	index := NewIndex(library)
	if err := index.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return NewMatcher(search, index, zap.NewNop())
}

func TestResolvePicksFirstHintWithMatchingArtist(t *testing.T) {
	search := &hintSearcher{hints: []IndexedItem{
		{ID: "wrong", Artists: []string{"Somebody Else"}},
		{ID: "right", Artists: []string{"Daft Punk"}},
		{ID: "later", Artists: []string{"Daft Punk"}},
	}}
	matcher := newTestMatcher(t, search, nil)

	item, err := matcher.Resolve(context.Background(), "Around the World", "Daft Punk")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item == nil || item.ID != "right" {
		t.Fatalf("expected first matching hint, got %+v", item)
	}
}

func TestResolveArtistContainmentBothDirections(t *testing.T) {
	// Token contained in artist.
	search := &hintSearcher{hints: []IndexedItem{{ID: "a", Artists: []string{"The Chemical Brothers"}}}}
	matcher := newTestMatcher(t, search, nil)
	item, err := matcher.Resolve(context.Background(), "Galvanize", "Chemical")
	if err != nil || item == nil || item.ID != "a" {
		t.Fatalf("expected token-in-artist match, got %+v err %v", item, err)
	}

	// Artist contained in token.
	search = &hintSearcher{hints: []IndexedItem{{ID: "b", Artists: []string{"Chemical"}}}}
	matcher = newTestMatcher(t, search, nil)
	item, err = matcher.Resolve(context.Background(), "Galvanize", "Chemicals")
	if err != nil || item == nil || item.ID != "b" {
		t.Fatalf("expected artist-in-token match, got %+v err %v", item, err)
	}
}

func TestResolveTokenizesParentheticalArtists(t *testing.T) {
	search := &hintSearcher{hints: []IndexedItem{{ID: "feat", Artists: []string{"Rihanna"}}}}
	matcher := newTestMatcher(t, search, nil)

	item, err := matcher.Resolve(context.Background(), "Umbrella", "Rihanna (feat. Jay-Z)")
	if err != nil || item == nil || item.ID != "feat" {
		t.Fatalf("expected parenthetical tokenization to match, got %+v err %v", item, err)
	}
}

func TestResolveFilenameFallbackUniqueHit(t *testing.T) {
	search := &hintSearcher{}
	matcher := newTestMatcher(t, search, []IndexedItem{
		{ID: "only", Path: "/music/halo.flac", Artists: []string{"Unknown"}},
	})

	item, err := matcher.Resolve(context.Background(), "Halo", "Beyoncé")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item == nil || item.ID != "only" {
		t.Fatalf("expected unique filename fallback hit, got %+v", item)
	}
}

func TestResolveFilenameFallbackAmbiguousIsNoMatch(t *testing.T) {
	search := &hintSearcher{}
	matcher := newTestMatcher(t, search, []IndexedItem{
		{ID: "one", Path: "/music/halo.flac"},
		{ID: "two", Path: "/covers/halo (live).mp3"},
	})

	item, err := matcher.Resolve(context.Background(), "Halo", "Beyoncé")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item != nil {
		t.Fatalf("expected ambiguous fallback to be a no-match, got %+v", item)
	}
}

func TestResolveNoMatchIsNotAnError(t *testing.T) {
	matcher := newTestMatcher(t, &hintSearcher{}, nil)
	item, err := matcher.Resolve(context.Background(), "Nothing", "Nobody")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item != nil {
		t.Fatalf("expected no match")
	}
}

func TestResolveSearchErrorPropagates(t *testing.T) {
	search := &hintSearcher{err: errors.New("search down")}
	matcher := newTestMatcher(t, search, nil)
	if _, err := matcher.Resolve(context.Background(), "Halo", "Beyoncé"); err == nil {
		t.Fatalf("expected search error to propagate")
	}
}
