package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type fakeLibrary struct {
	mu      sync.Mutex
	items   []IndexedItem
	err     error
	rescans int
	deleted []string
}

func (l *fakeLibrary) AudioItems(ctx context.Context) ([]IndexedItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	out := make([]IndexedItem, len(l.items))
	copy(out, l.items)
	return out, nil
}

func (l *fakeLibrary) Rescan(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rescans++
	return nil
}

func (l *fakeLibrary) DeleteItem(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted = append(l.deleted, id)
	return nil
}

func (l *fakeLibrary) add(item IndexedItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, item)
}

// fakeSearcher serves hints for items currently in the backing library,
// matching on title containment in the item path.
type fakeSearcher struct {
	library *fakeLibrary
	err     error
}

func (s *fakeSearcher) SearchHints(ctx context.Context, term string) ([]IndexedItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	items, err := s.library.AudioItems(ctx)
	if err != nil {
		return nil, err
	}
	hits := []IndexedItem{}
	for _, item := range items {
		if containsFold(item.Path, term) {
			hits = append(hits, item)
		}
	}
	return hits, nil
}

type fakePlaylists struct {
	mu       sync.Mutex
	existing []PlaylistInfo
	created  []PlaylistCreateRequest
	nextID   int
}

func (p *fakePlaylists) Playlists(ctx context.Context, ownerUserID string) ([]PlaylistInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlaylistInfo, len(p.existing))
	copy(out, p.existing)
	return out, nil
}

func (p *fakePlaylists) CreatePlaylist(ctx context.Context, req PlaylistCreateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("pl-%d", p.nextID)
	p.created = append(p.created, req)
	p.existing = append(p.existing, PlaylistInfo{ID: id, Name: req.Name})
	return id, nil
}

func (p *fakePlaylists) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.existing[:0]
	for _, pl := range p.existing {
		if pl.ID != id {
			kept = append(kept, pl)
		}
	}
	p.existing = kept
}

// stubAcquirer materializes the requested song into the library when
// succeed is set.
type stubAcquirer struct {
	library *fakeLibrary
	succeed bool
	err     error

	mu    sync.Mutex
	calls []string
}

func (a *stubAcquirer) Acquire(ctx context.Context, title, artist string) (*IndexedItem, error) {
	a.mu.Lock()
	a.calls = append(a.calls, title)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	if !a.succeed {
		return nil, nil
	}
	item := IndexedItem{
		ID:      "acq-" + title,
		Path:    "/music/" + title + ".mp3",
		Artists: []string{artist},
	}
	a.library.add(item)
	return &item, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func newTestReconciler(library *fakeLibrary, playlists *fakePlaylists, acquirer Acquirer) *Reconciler {
	index := NewIndex(library)
	matcher := NewMatcher(&fakeSearcher{library: library}, index, zap.NewNop())
	return NewReconciler(index, matcher, acquirer, library, playlists, zap.NewNop())
}

func TestReconcileAcquiresMissingAndPreservesOrder(t *testing.T) {
	library := &fakeLibrary{items: []IndexedItem{
		{ID: "id-a", Path: "/music/A.mp3", Artists: []string{"X"}},
	}}
	playlists := &fakePlaylists{}
	acquirer := &stubAcquirer{library: library, succeed: true}
	reconciler := newTestReconciler(library, playlists, acquirer)

	mix := MixDescriptor{Name: "Daily", Requests: []SongRequest{
		{Title: "A", Artist: "X"},
		{Title: "B", Artist: "Y"},
	}}
	result, err := reconciler.Reconcile(context.Background(), mix, "user", false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Resolved != 2 || result.Requested != 2 {
		t.Fatalf("expected 2/2, got %d/%d", result.Resolved, result.Requested)
	}
	if len(playlists.created) != 1 {
		t.Fatalf("expected one playlist created")
	}
	ids := playlists.created[0].ItemIDs
	if len(ids) != 2 || ids[0] != "id-a" || ids[1] != "acq-B" {
		t.Fatalf("unexpected item order: %v", ids)
	}
	if len(acquirer.calls) != 1 || acquirer.calls[0] != "B" {
		t.Fatalf("expected acquisition only for B, got %v", acquirer.calls)
	}
	if library.rescans != 1 {
		t.Fatalf("expected one rescan, got %d", library.rescans)
	}
}

func TestReconcileDropsUnacquirableSongs(t *testing.T) {
	library := &fakeLibrary{items: []IndexedItem{
		{ID: "id-a", Path: "/music/A.mp3", Artists: []string{"X"}},
	}}
	playlists := &fakePlaylists{}
	acquirer := &stubAcquirer{library: library, succeed: false}
	reconciler := newTestReconciler(library, playlists, acquirer)

	mix := MixDescriptor{Name: "Daily", Requests: []SongRequest{
		{Title: "A", Artist: "X"},
		{Title: "B", Artist: "Y"},
	}}
	result, err := reconciler.Reconcile(context.Background(), mix, "user", false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Resolved != 1 {
		t.Fatalf("expected 1 resolved, got %d", result.Resolved)
	}
	ids := playlists.created[0].ItemIDs
	if len(ids) != 1 || ids[0] != "id-a" {
		t.Fatalf("unexpected items: %v", ids)
	}
}

func TestReconcileReplacesExistingPlaylist(t *testing.T) {
	library := &fakeLibrary{}
	playlists := &fakePlaylists{existing: []PlaylistInfo{
		{ID: "old-1", Name: "Daily"},
		{ID: "other", Name: "Keep"},
	}}
	reconciler := newTestReconciler(library, playlists, &stubAcquirer{library: library})

	mix := MixDescriptor{Name: "Daily"}
	if _, err := reconciler.Reconcile(context.Background(), mix, "user", false); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(library.deleted) != 1 || library.deleted[0] != "old-1" {
		t.Fatalf("expected old-1 deleted, got %v", library.deleted)
	}
	if len(playlists.created) != 1 || playlists.created[0].Name != "Daily" {
		t.Fatalf("expected Daily recreated")
	}
	if len(playlists.created[0].ItemIDs) != 0 {
		t.Fatalf("expected empty playlist")
	}
}

func TestReconcileTwicePassesLeaveOnePlaylist(t *testing.T) {
	library := &fakeLibrary{}
	playlists := &fakePlaylists{}
	reconciler := newTestReconciler(library, playlists, &stubAcquirer{library: library})

	mix := MixDescriptor{Name: "Daily"}
	for i := 0; i < 2; i++ {
		if _, err := reconciler.Reconcile(context.Background(), mix, "user", false); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
		for _, id := range library.deleted {
			playlists.remove(id)
		}
	}

	count := 0
	for _, pl := range playlists.existing {
		if pl.Name == "Daily" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one Daily playlist, got %d", count)
	}
}

func TestReconcileIdempotentItemList(t *testing.T) {
	library := &fakeLibrary{items: []IndexedItem{
		{ID: "id-a", Path: "/music/A.mp3", Artists: []string{"X"}},
		{ID: "id-b", Path: "/music/B.mp3", Artists: []string{"Y"}},
	}}
	playlists := &fakePlaylists{}
	reconciler := newTestReconciler(library, playlists, &stubAcquirer{library: library})

	mix := MixDescriptor{Name: "Daily", Requests: []SongRequest{
		{Title: "A", Artist: "X"},
		{Title: "B", Artist: "Y"},
	}}
	for i := 0; i < 2; i++ {
		if _, err := reconciler.Reconcile(context.Background(), mix, "user", false); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
		for _, id := range library.deleted {
			playlists.remove(id)
		}
	}

	if len(playlists.created) != 2 {
		t.Fatalf("expected two creation calls, got %d", len(playlists.created))
	}
	first, second := playlists.created[0].ItemIDs, playlists.created[1].ItemIDs
	if len(first) != 2 {
		t.Fatalf("expected both songs resolved, got %v", first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical item lists across passes: %v vs %v", first, second)
	}
}

func TestReconcileSkipsUnresolvableRequests(t *testing.T) {
	library := &fakeLibrary{items: []IndexedItem{
		{ID: "id-a", Path: "/music/A.mp3", Artists: []string{"X"}},
	}}
	playlists := &fakePlaylists{}
	acquirer := &stubAcquirer{library: library, succeed: true}
	reconciler := newTestReconciler(library, playlists, acquirer)

	mix := MixDescriptor{Name: "Daily", Requests: []SongRequest{
		{Title: "A", Artist: "X"},
		{Title: "", Artist: "Y"},
		{Title: "B", Artist: " "},
	}}
	result, err := reconciler.Reconcile(context.Background(), mix, "user", false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Resolved != 1 {
		t.Fatalf("expected 1 resolved, got %d", result.Resolved)
	}
	if len(acquirer.calls) != 0 {
		t.Fatalf("expected no acquisition for unresolvable requests")
	}
}

func TestReconcileRejectsUnnamedMix(t *testing.T) {
	library := &fakeLibrary{}
	reconciler := newTestReconciler(library, &fakePlaylists{}, &stubAcquirer{library: library})

	if _, err := reconciler.Reconcile(context.Background(), MixDescriptor{}, "user", false); err == nil {
		t.Fatalf("expected error for unnamed mix")
	}
}

func TestReconcilePropagatesCancellation(t *testing.T) {
	library := &fakeLibrary{items: []IndexedItem{
		{ID: "id-a", Path: "/music/A.mp3", Artists: []string{"X"}},
	}}
	acquirer := &stubAcquirer{library: library, err: context.Canceled}
	reconciler := newTestReconciler(library, &fakePlaylists{}, acquirer)

	mix := MixDescriptor{Name: "Daily", Requests: []SongRequest{{Title: "Missing", Artist: "Z"}}}
	_, err := reconciler.Reconcile(context.Background(), mix, "user", false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestReconcileIndexRefreshFailure(t *testing.T) {
	library := &fakeLibrary{err: errors.New("library down")}
	reconciler := newTestReconciler(library, &fakePlaylists{}, &stubAcquirer{library: library})

	mix := MixDescriptor{Name: "Daily"}
	if _, err := reconciler.Reconcile(context.Background(), mix, "user", false); err == nil {
		t.Fatalf("expected error when library query fails")
	}
}
