package core

import "context"

// IndexedItem is one audio item known to the library.
type IndexedItem struct {
	ID      string
	Path    string
	Artists []string
}

// PlaylistInfo summarizes an existing playlist.
type PlaylistInfo struct {
	ID   string
	Name string
}

// PlaylistCreateRequest describes a playlist to create.
type PlaylistCreateRequest struct {
	Name        string
	ItemIDs     []string
	OwnerUserID string
	MediaType   string
	Public      bool
}

// Library supplies the audio catalog and rescan/delete operations.
type Library interface {
	AudioItems(ctx context.Context) ([]IndexedItem, error)
	Rescan(ctx context.Context) error
	DeleteItem(ctx context.Context, id string) error
}

// Searcher returns ranked audio search hints for a free-text term.
type Searcher interface {
	SearchHints(ctx context.Context, term string) ([]IndexedItem, error)
}

// PlaylistStore provides playlist operations scoped to a user.
type PlaylistStore interface {
	Playlists(ctx context.Context, ownerUserID string) ([]PlaylistInfo, error)
	CreatePlaylist(ctx context.Context, req PlaylistCreateRequest) (string, error)
}

// LinkedAccounts exposes linked external-service usernames. A missing
// link is reported via ok=false, never an error.
type LinkedAccounts interface {
	LookupLinkedUsername(userID string) (string, bool)
}

// MixSource produces one mix descriptor from an external source.
type MixSource interface {
	Name() string
	Kind() string
	Fetch(ctx context.Context) (MixDescriptor, error)
}

// Acquirer attempts to materialize a missing song and re-resolve it.
type Acquirer interface {
	Acquire(ctx context.Context, title, artist string) (*IndexedItem, error)
}
