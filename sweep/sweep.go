// Package sweep reconciles stored audio files against track rows. Upload
// staging makes orphans rare, but a crash between the staged write and the
// database insert can still leave files behind; the sweep removes any file
// older than a grace period that no row references.
package sweep

import (
	"context"
	"fmt"
	"time"

	"trackvault/logger"
	"trackvault/repository"
	"trackvault/storage"

	"github.com/robfig/cron/v3"
)

// Sweeper removes orphaned files from a Store.
type Sweeper struct {
	store  storage.Store
	tracks repository.TrackRepository
	grace  time.Duration
}

// NewSweeper creates a Sweeper. Files modified within grace are never touched,
// so an upload in flight is safe from the sweep.
func NewSweeper(store storage.Store, tracks repository.TrackRepository, grace time.Duration) *Sweeper {
	return &Sweeper{store: store, tracks: tracks, grace: grace}
}

// Run performs a single reconciliation pass and returns the number of
// objects removed.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	paths, err := s.tracks.ListFilePaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list referenced file paths: %w", err)
	}
	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		referenced[p] = struct{}{}
	}

	objects, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored objects: %w", err)
	}

	cutoff := time.Now().Add(-s.grace)
	removed := 0
	for _, obj := range objects {
		if obj.ModTime.After(cutoff) {
			continue
		}

		if obj.Staged {
			// A staged object past the grace period belongs to a request
			// that never committed.
			if err := s.store.DiscardStaged(ctx, obj.Name); err != nil {
				logger.Warn("failed to discard stale staged object",
					logger.String("object", obj.Name), logger.ErrorField(err))
				continue
			}
			removed++
			continue
		}

		if _, ok := referenced[obj.Name]; ok {
			continue
		}
		if err := s.store.Remove(ctx, obj.Name); err != nil {
			logger.Warn("failed to remove orphaned object",
				logger.String("object", obj.Name), logger.ErrorField(err))
			continue
		}
		logger.Info("removed orphaned object", logger.String("object", obj.Name))
		removed++
	}

	return removed, nil
}

// Schedule runs the sweep on the given cron spec until the returned cron is
// stopped. An empty spec disables scheduling.
func (s *Sweeper) Schedule(spec string) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		removed, err := s.Run(ctx)
		if err != nil {
			logger.Error("orphan sweep failed", logger.ErrorField(err))
			return
		}
		if removed > 0 {
			logger.Info("orphan sweep completed", logger.Int("removed", removed))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}

	c.Start()
	return c, nil
}
