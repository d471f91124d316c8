package core

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Matcher resolves a (title, artist) request to at most one library item.
type Matcher struct {
	search Searcher
	index  *Index
	log    *zap.Logger
}

// NewMatcher creates a matcher over the search service and index.
func NewMatcher(search Searcher, index *Index, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{search: search, index: index, log: log}
}

// Resolve maps the request to the best single item, or nil when nothing
// matched. No-match is a normal outcome; only search/index infrastructure
// failures return an error.
func (m *Matcher) Resolve(ctx context.Context, title, artist string) (*IndexedItem, error) {
	tokens := tokenizeArtist(artist)

	hints, err := m.search.SearchHints(ctx, title)
	if err != nil {
		return nil, err
	}

	for _, hint := range hints {
		if artistMatches(hint.Artists, tokens) {
			item := hint
			return &item, nil
		}
	}

	// Filename fallback: a unique hit is accepted without the artist
	// filter, title uniqueness being evidence enough. Multiple hits
	// stay ambiguous and count as no match.
	candidates := m.index.SearchByFilename(title)
	if len(candidates) == 1 {
		item := candidates[0]
		return &item, nil
	}
	if len(candidates) > 1 {
		m.log.Info("ambiguous filename fallback",
			zap.String("title", title),
			zap.String("artist", artist),
			zap.Int("candidates", len(candidates)))
	} else {
		m.log.Debug("no match",
			zap.String("title", title),
			zap.String("artist", artist))
	}
	return nil, nil
}

// tokenizeArtist splits on parentheses and spaces, dropping empties, so
// forms like "Artist (feat. Other)" yield usable tokens.
func tokenizeArtist(artist string) []string {
	return strings.FieldsFunc(artist, func(r rune) bool {
		return r == '(' || r == ')' || r == ' '
	})
}

// artistMatches tests substring containment in both directions: either
// the token appears within an artist string or the artist string within
// the token. The asymmetry absorbs punctuation and aliasing differences.
func artistMatches(artists, tokens []string) bool {
	for _, a := range artists {
		for _, token := range tokens {
			if strings.Contains(a, token) || strings.Contains(token, a) {
				return true
			}
		}
	}
	return false
}
