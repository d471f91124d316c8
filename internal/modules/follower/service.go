package follower

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/m1ser4ble/mixfollower/internal/core"
	"github.com/m1ser4ble/mixfollower/internal/mixd"
	"github.com/m1ser4ble/mixfollower/internal/sources"
	"github.com/m1ser4ble/mixfollower/pkg/mixp"
)

// Reconciler is the single operation the service drives per mix.
type Reconciler interface {
	Reconcile(ctx context.Context, mix core.MixDescriptor, ownerUserID string, public bool) (core.ReconcileResult, error)
}

// BoundSource pairs a mix source with the owner and visibility its
// playlists are written with.
type BoundSource struct {
	Source      core.MixSource
	OwnerUserID string
	Public      bool
}

// StaticLinks is a config-backed LinkedAccounts implementation. Absent
// entries mean "no linked account".
type StaticLinks map[string]string

// LookupLinkedUsername returns the linked external username for a user.
func (l StaticLinks) LookupLinkedUsername(userID string) (string, bool) {
	username, ok := l[userID]
	return username, ok
}

// BuildSources assembles the configured mix sources: fetch commands and
// chart feeds owned by the configured user, plus one last.fm
// recommendation source per linked account.
func BuildSources(cfg mixd.Config, linked core.LinkedAccounts) ([]BoundSource, error) {
	bound := []BoundSource{}

	for _, command := range cfg.Follower.FetchCommands {
		src, err := sources.NewCommandSource(command)
		if err != nil {
			return nil, err
		}
		bound = append(bound, BoundSource{Source: src, OwnerUserID: cfg.Jellyfin.UserID, Public: cfg.Follower.Public})
	}

	for _, feed := range cfg.Follower.Feeds {
		src, err := sources.NewFeedSource(feed.Name, feed.URL)
		if err != nil {
			return nil, err
		}
		bound = append(bound, BoundSource{Source: src, OwnerUserID: cfg.Jellyfin.UserID, Public: cfg.Follower.Public})
	}

	if cfg.Lastfm.Enabled {
		for _, link := range cfg.Lastfm.Links {
			username, ok := linked.LookupLinkedUsername(link.UserID)
			if !ok {
				continue
			}
			src, err := sources.NewLastfmSource(cfg.Lastfm.BaseURL, username, 0)
			if err != nil {
				return nil, err
			}
			// Recommendation playlists stay private to their user.
			bound = append(bound, BoundSource{Source: src, OwnerUserID: link.UserID, Public: false})
		}
	}

	return bound, nil
}

// Service runs reconciliation passes over the configured sources and
// remembers the last results.
type Service struct {
	log        *zap.Logger
	reconciler Reconciler
	sources    []BoundSource

	// runMu serializes whole passes so a commanded rebuild and the
	// scheduled run never interleave; mu guards only the recorded state
	// so Status stays readable during a pass.
	runMu   sync.Mutex
	mu      sync.Mutex
	lastRun int64
	results []mixp.MixResult
}

// NewService wires a service.
func NewService(reconciler Reconciler, bound []BoundSource, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, reconciler: reconciler, sources: bound}
}

// RunAll processes every source sequentially. A failing mix is recorded
// and skipped; only cancellation aborts the batch.
func (s *Service) RunAll(ctx context.Context) ([]mixp.MixResult, error) {
	return s.run(ctx, "")
}

// RunSource processes only the named source.
func (s *Service) RunSource(ctx context.Context, name string) ([]mixp.MixResult, error) {
	found := false
	for _, b := range s.sources {
		if b.Source.Name() == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown source %q", name)
	}
	return s.run(ctx, name)
}

func (s *Service) run(ctx context.Context, only string) ([]mixp.MixResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	results := []mixp.MixResult{}
	for _, bound := range s.sources {
		if only != "" && bound.Source.Name() != only {
			continue
		}
		result, err := s.runOne(ctx, bound)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	s.mu.Lock()
	s.lastRun = time.Now().Unix()
	s.results = results
	s.mu.Unlock()
	return results, nil
}

// runOne fetches one descriptor and reconciles it. The returned error
// is non-nil only for cancellation; every other failure is folded into
// the result so the batch keeps going.
func (s *Service) runOne(ctx context.Context, bound BoundSource) (mixp.MixResult, error) {
	result := mixp.MixResult{Source: bound.Source.Name(), TS: time.Now().Unix()}

	mix, err := bound.Source.Fetch(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return mixp.MixResult{}, err
		}
		s.log.Warn("mix source failed",
			zap.String("source", bound.Source.Name()),
			zap.String("kind", bound.Source.Kind()),
			zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}

	result.Playlist = mix.Name
	result.Requested = len(mix.Requests)

	outcome, err := s.reconciler.Reconcile(ctx, mix, bound.OwnerUserID, bound.Public)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return mixp.MixResult{}, err
		}
		s.log.Warn("reconciliation failed",
			zap.String("source", bound.Source.Name()),
			zap.String("playlist", mix.Name),
			zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}

	result.PlaylistID = outcome.PlaylistID
	result.Resolved = outcome.Resolved
	return result, nil
}

// Status reports the last completed run.
func (s *Service) Status() mixp.StatusReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mixp.StatusReply{LastRun: s.lastRun, Results: s.results}
}

// Sources lists the configured source inventory.
func (s *Service) Sources() []mixp.SourceInfo {
	out := make([]mixp.SourceInfo, 0, len(s.sources))
	for _, bound := range s.sources {
		out = append(out, mixp.SourceInfo{Name: bound.Source.Name(), Kind: bound.Source.Kind()})
	}
	return out
}
