package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arunsworld/nursery"
	"go.uber.org/zap"
)

// Reconciler drives a mix descriptor to a persisted playlist: resolve
// every request, acquire the misses, then replace any same-named
// playlist of the owner with the freshly resolved item list.
type Reconciler struct {
	index     *Index
	matcher   *Matcher
	acquirer  Acquirer
	library   Library
	playlists PlaylistStore
	log       *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler wires a reconciler from its collaborators.
func NewReconciler(index *Index, matcher *Matcher, acquirer Acquirer, library Library, playlists PlaylistStore, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		index:     index,
		matcher:   matcher,
		acquirer:  acquirer,
		library:   library,
		playlists: playlists,
		log:       log,
		locks:     map[string]*sync.Mutex{},
	}
}

// ReconcileResult summarizes one completed pass.
type ReconcileResult struct {
	PlaylistID string
	Requested  int
	Resolved   int
}

// Reconcile runs one full pass for the descriptor and returns the new
// playlist's id with resolution counts. Passes for the same
// (owner, name) are serialized; delete-then-create is not transactional
// against concurrent writers.
func (r *Reconciler) Reconcile(ctx context.Context, mix MixDescriptor, ownerUserID string, public bool) (ReconcileResult, error) {
	if err := mix.Validate(); err != nil {
		return ReconcileResult{}, err
	}

	lock := r.lockFor(ownerUserID + "/" + mix.Name)
	lock.Lock()
	defer lock.Unlock()

	if err := r.index.Refresh(ctx); err != nil {
		return ReconcileResult{}, fmt.Errorf("refresh index: %w", err)
	}

	// First pass: find the misses and let acquisition catch up.
	var misses []SongRequest
	for _, req := range mix.Requests {
		if !req.Resolvable() {
			r.log.Warn("unresolvable request skipped",
				zap.String("playlist", mix.Name),
				zap.String("title", req.Title),
				zap.String("artist", req.Artist))
			continue
		}
		item, err := r.matcher.Resolve(ctx, req.Title, req.Artist)
		if err != nil {
			return ReconcileResult{}, err
		}
		if item == nil {
			misses = append(misses, req)
		}
	}

	if err := r.acquireAll(ctx, misses); err != nil {
		return ReconcileResult{}, err
	}

	// Second pass against a rescanned library so anything the
	// acquisition chain materialized on disk becomes visible.
	if err := r.library.Rescan(ctx); err != nil {
		return ReconcileResult{}, fmt.Errorf("library rescan: %w", err)
	}
	if err := r.index.Refresh(ctx); err != nil {
		return ReconcileResult{}, fmt.Errorf("refresh index: %w", err)
	}

	itemIDs := []string{}
	for _, req := range mix.Requests {
		if !req.Resolvable() {
			continue
		}
		item, err := r.matcher.Resolve(ctx, req.Title, req.Artist)
		if err != nil {
			return ReconcileResult{}, err
		}
		if item != nil {
			itemIDs = append(itemIDs, item.ID)
		}
	}

	// Replacement is always delete-then-create; an all-miss mix still
	// clears the stale playlist.
	if err := r.deleteExisting(ctx, mix.Name, ownerUserID); err != nil {
		return ReconcileResult{}, err
	}

	id, err := r.playlists.CreatePlaylist(ctx, PlaylistCreateRequest{
		Name:        mix.Name,
		ItemIDs:     itemIDs,
		OwnerUserID: ownerUserID,
		MediaType:   "Audio",
		Public:      public,
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("create playlist: %w", err)
	}

	r.log.Info("playlist reconciled",
		zap.String("playlist", mix.Name),
		zap.String("playlist_id", id),
		zap.Int("requested", len(mix.Requests)),
		zap.Int("resolved", len(itemIDs)))
	return ReconcileResult{
		PlaylistID: id,
		Requested:  len(mix.Requests),
		Resolved:   len(itemIDs),
	}, nil
}

// acquireAll runs acquisition for the missed requests concurrently and
// joins before returning. Acquisition is best-effort: only cancellation
// aborts the pass.
func (r *Reconciler) acquireAll(ctx context.Context, misses []SongRequest) error {
	if len(misses) == 0 {
		return nil
	}

	jobs := make([]nursery.ConcurrentJob, 0, len(misses))
	for _, miss := range misses {
		req := miss
		jobs = append(jobs, func(ctx context.Context, errCh chan error) {
			if _, err := r.acquirer.Acquire(ctx, req.Title, req.Artist); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					errCh <- err
					return
				}
				r.log.Warn("acquisition failed",
					zap.String("title", req.Title),
					zap.String("artist", req.Artist),
					zap.Error(err))
			}
		})
	}
	return nursery.RunConcurrentlyWithContext(ctx, jobs...)
}

func (r *Reconciler) deleteExisting(ctx context.Context, name, ownerUserID string) error {
	existing, err := r.playlists.Playlists(ctx, ownerUserID)
	if err != nil {
		return fmt.Errorf("list playlists: %w", err)
	}
	for _, pl := range existing {
		if pl.Name != name {
			continue
		}
		if err := r.library.DeleteItem(ctx, pl.ID); err != nil {
			return fmt.Errorf("delete playlist %s: %w", pl.ID, err)
		}
		r.log.Info("stale playlist deleted",
			zap.String("playlist", name),
			zap.String("playlist_id", pl.ID))
	}
	return nil
}

func (r *Reconciler) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}
