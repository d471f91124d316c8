// Package jellyfin implements the library, search and playlist ports
// against the Jellyfin REST API.
package jellyfin

import (
	"bytes"
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

// Config configures the Jellyfin client.
type Config struct {
	BaseURL string
	APIKey  string
	UserID  string
	Timeout time.Duration
}

// Client talks to one Jellyfin server.
type Client struct {
	http   *http.Client
	config Config
}

// NewClient validates the config and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("base_url required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api_key required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("user_id required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

type jfItemsResponse struct {
	Items            []jfItem `json:"Items"`
	TotalRecordCount int64    `json:"TotalRecordCount"`
}

type jfItem struct {
	ID      string   `json:"Id"`
	Name    string   `json:"Name"`
	Path    string   `json:"Path"`
	Artists []string `json:"Artists"`
}

type jfSearchHintsResponse struct {
	SearchHints []jfSearchHint `json:"SearchHints"`
}

type jfSearchHint struct {
	ItemID  string   `json:"ItemId"`
	ID      string   `json:"Id"`
	Name    string   `json:"Name"`
	Artists []string `json:"Artists"`
}

type jfPlaylistCreated struct {
	ID string `json:"Id"`
}

// AudioItems returns every audio item known to the server.
func (c *Client) AudioItems(ctx context.Context) ([]core.IndexedItem, error) {
	endpoint := fmt.Sprintf("/Users/%s/Items", url.PathEscape(c.config.UserID))
	params := url.Values{}
	params.Set("IncludeItemTypes", "Audio")
	params.Set("Recursive", "true")
	params.Set("Fields", "Path,Artists")

	var resp jfItemsResponse
	if err := c.doJSON(ctx, "GET", endpoint, params, nil, &resp); err != nil {
		return nil, err
	}

	items := make([]core.IndexedItem, 0, len(resp.Items))
	for _, item := range resp.Items {
		items = append(items, core.IndexedItem{
			ID:      item.ID,
			Path:    item.Path,
			Artists: item.Artists,
		})
	}
	return items, nil
}

// SearchHints queries the server's ranked search for audio items. The
// server's ranking order is preserved.
func (c *Client) SearchHints(ctx context.Context, term string) ([]core.IndexedItem, error) {
	params := url.Values{}
	params.Set("SearchTerm", term)
	params.Set("IncludeItemTypes", "Audio")
	params.Set("UserId", c.config.UserID)

	var resp jfSearchHintsResponse
	if err := c.doJSON(ctx, "GET", "/Search/Hints", params, nil, &resp); err != nil {
		return nil, err
	}

	hints := make([]core.IndexedItem, 0, len(resp.SearchHints))
	for _, hint := range resp.SearchHints {
		id := hint.ItemID
		if id == "" {
			id = hint.ID
		}
		hints = append(hints, core.IndexedItem{
			ID:      id,
			Artists: hint.Artists,
		})
	}
	return hints, nil
}

// Playlists lists the playlists owned by a user.
func (c *Client) Playlists(ctx context.Context, ownerUserID string) ([]core.PlaylistInfo, error) {
	endpoint := fmt.Sprintf("/Users/%s/Items", url.PathEscape(ownerUserID))
	params := url.Values{}
	params.Set("IncludeItemTypes", "Playlist")
	params.Set("Recursive", "true")

	var resp jfItemsResponse
	if err := c.doJSON(ctx, "GET", endpoint, params, nil, &resp); err != nil {
		return nil, err
	}

	playlists := make([]core.PlaylistInfo, 0, len(resp.Items))
	for _, item := range resp.Items {
		playlists = append(playlists, core.PlaylistInfo{ID: item.ID, Name: item.Name})
	}
	return playlists, nil
}

// CreatePlaylist creates a playlist and returns its id.
func (c *Client) CreatePlaylist(ctx context.Context, req core.PlaylistCreateRequest) (string, error) {
	body := map[string]any{
		"Name":      req.Name,
		"Ids":       req.ItemIDs,
		"UserId":    req.OwnerUserID,
		"MediaType": req.MediaType,
		"IsPublic":  req.Public,
	}

	var created jfPlaylistCreated
	if err := c.doJSON(ctx, "POST", "/Playlists", nil, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// DeleteItem deletes an item (and its file location) from the server.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("/Items/%s", url.PathEscape(id))
	return c.doJSON(ctx, "DELETE", endpoint, nil, nil, nil)
}

// Rescan triggers a full library validation scan.
func (c *Client) Rescan(ctx context.Context) error {
	return c.doJSON(ctx, "POST", "/Library/Refresh", nil, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method string, endpoint string, params url.Values, body any, out any) error {
	endpointURL := c.config.BaseURL + endpoint
	if len(params) > 0 {
		endpointURL += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("X-Emby-Token", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("jellyfin error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
