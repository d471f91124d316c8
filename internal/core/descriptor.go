package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SongRequest is one desired track within a mix.
type SongRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Resolvable reports whether the request carries enough data to match.
func (r SongRequest) Resolvable() bool {
	return strings.TrimSpace(r.Title) != "" && strings.TrimSpace(r.Artist) != ""
}

// MixDescriptor is the canonical {name, songs} document describing a
// target playlist and its desired tracks, in order.
type MixDescriptor struct {
	Name     string        `json:"name"`
	Requests []SongRequest `json:"songs"`
}

// ParseDescriptor decodes and validates a mix descriptor document.
// The songs field is required; a document without it is malformed, even
// though an explicitly empty song list is fine. The distinction matters
// because an accepted descriptor replaces the target playlist.
func ParseDescriptor(data []byte) (MixDescriptor, error) {
	var doc struct {
		Name  string         `json:"name"`
		Songs *[]SongRequest `json:"songs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return MixDescriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	if doc.Songs == nil {
		return MixDescriptor{}, errors.New("descriptor songs required")
	}

	mix := MixDescriptor{Name: doc.Name, Requests: *doc.Songs}
	if err := mix.Validate(); err != nil {
		return MixDescriptor{}, err
	}
	return mix, nil
}

// Validate checks the descriptor invariants.
func (m MixDescriptor) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("descriptor name required")
	}
	return nil
}
