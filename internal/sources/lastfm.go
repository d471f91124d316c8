package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m1ser4ble/mixfollower/internal/core"
)

// DefaultLastfmBaseURL is the public last.fm site.
const DefaultLastfmBaseURL = "https://www.last.fm"

// lastfmPlaylistName is the fixed descriptor name for recommendation mixes.
const lastfmPlaylistName = "Recommended by Lastfm"

// LastfmSource fetches the recommendation station of one last.fm user
// and translates it into a mix descriptor.
type LastfmSource struct {
	baseURL  string
	username string
	http     *http.Client
}

// NewLastfmSource creates a source for one linked username.
func NewLastfmSource(baseURL, username string, timeout time.Duration) (*LastfmSource, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("lastfm username required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultLastfmBaseURL
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &LastfmSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Name identifies the source in logs and results.
func (s *LastfmSource) Name() string { return "lastfm:" + s.username }

// Kind reports the adapter kind.
func (s *LastfmSource) Kind() string { return "lastfm" }

type lastfmStation struct {
	Playlist []lastfmTrack `json:"playlist"`
}

type lastfmTrack struct {
	Name    string         `json:"_name"`
	Artists []lastfmArtist `json:"artists"`
}

type lastfmArtist struct {
	Name string `json:"_name"`
}

// Fetch pulls the user's recommended station and converts its schema
// into the canonical descriptor, joining artist names with a space.
func (s *LastfmSource) Fetch(ctx context.Context) (core.MixDescriptor, error) {
	endpoint := fmt.Sprintf("%s/player/station/user/%s/recommended", s.baseURL, url.PathEscape(s.username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.MixDescriptor{}, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return core.MixDescriptor{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return core.MixDescriptor{}, fmt.Errorf("lastfm error: %s", resp.Status)
	}

	var station lastfmStation
	if err := json.NewDecoder(resp.Body).Decode(&station); err != nil {
		return core.MixDescriptor{}, fmt.Errorf("decode station: %w", err)
	}

	mix := core.MixDescriptor{Name: lastfmPlaylistName}
	for _, track := range station.Playlist {
		names := make([]string, 0, len(track.Artists))
		for _, artist := range track.Artists {
			names = append(names, artist.Name)
		}
		mix.Requests = append(mix.Requests, core.SongRequest{
			Title:  track.Name,
			Artist: strings.Join(names, " "),
		})
	}
	return mix, nil
}
