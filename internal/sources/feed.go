package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/m1ser4ble/mixfollower/internal/core"
)

// FeedSource reads an RSS/Atom chart feed whose item titles follow the
// "Artist - Title" convention and turns it into a mix descriptor.
type FeedSource struct {
	name   string
	url    string
	parser *gofeed.Parser
}

// NewFeedSource creates a feed source.
func NewFeedSource(name, feedURL string) (*FeedSource, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("feed name required")
	}
	if strings.TrimSpace(feedURL) == "" {
		return nil, errors.New("feed url required")
	}
	return &FeedSource{name: name, url: feedURL, parser: gofeed.NewParser()}, nil
}

// Name identifies the source in logs and results.
func (s *FeedSource) Name() string { return s.name }

// Kind reports the adapter kind.
func (s *FeedSource) Kind() string { return "feed" }

// Fetch downloads and parses the feed. Items without the expected
// "Artist - Title" shape are skipped; they leave the rest of the feed
// usable.
func (s *FeedSource) Fetch(ctx context.Context) (core.MixDescriptor, error) {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return core.MixDescriptor{}, fmt.Errorf("parse feed %s: %w", s.url, err)
	}

	mix := core.MixDescriptor{Name: s.name}
	for _, item := range feed.Items {
		artist, title, ok := splitFeedTitle(item.Title)
		if !ok {
			continue
		}
		mix.Requests = append(mix.Requests, core.SongRequest{Title: title, Artist: artist})
	}
	return mix, nil
}

func splitFeedTitle(raw string) (artist, title string, ok bool) {
	parts := strings.SplitN(raw, " - ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	artist = strings.TrimSpace(parts[0])
	title = strings.TrimSpace(parts[1])
	if artist == "" || title == "" {
		return "", "", false
	}
	return artist, title, true
}
