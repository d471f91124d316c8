package mixp

// RebuildBody is the payload for mix.rebuild. An empty Source rebuilds
// every configured mix.
type RebuildBody struct {
	Source string `json:"source,omitempty"`
}

// RebuildReply is the reply body for mix.rebuild.
type RebuildReply struct {
	Results []MixResult `json:"results"`
}

// StatusBody is the payload for mix.status.
type StatusBody struct{}

// StatusReply is the reply body for mix.status and the retained state payload.
type StatusReply struct {
	LastRun int64       `json:"lastRun"`
	Results []MixResult `json:"results,omitempty"`
}

// SourcesBody is the payload for mix.sources.
type SourcesBody struct{}

// SourcesReply is the reply body for mix.sources.
type SourcesReply struct {
	Sources []SourceInfo `json:"sources"`
}

// SourceInfo describes one configured mix source.
type SourceInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// MixResult summarizes one reconciliation pass.
type MixResult struct {
	Source     string `json:"source"`
	Playlist   string `json:"playlist,omitempty"`
	PlaylistID string `json:"playlistId,omitempty"`
	Requested  int    `json:"requested"`
	Resolved   int    `json:"resolved"`
	Error      string `json:"error,omitempty"`
	TS         int64  `json:"ts"`
}
