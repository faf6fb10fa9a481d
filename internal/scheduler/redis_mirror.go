package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

const (
	mirrorQueueSize  = 256
	mirrorJobTimeout = 5 * time.Second
)

// Mirror is the write side of a bookmark mirror (see store/redis).
type Mirror interface {
	SaveBookmark(ctx context.Context, r bookmarks.Record) error
	DeleteBookmark(ctx context.Context, id string) error
	SaveTags(ctx context.Context, tags []string) error
	Replace(ctx context.Context, snap bookmarks.Snapshot) (int, error)
}

type mirrorJob struct {
	op  string
	run func(ctx context.Context) error
}

// RedisMirror pushes store changes to a mirror in the background and
// periodically reconciles the whole state. The mirror is best effort:
// failures are logged and repaired by the next reconcile.
type RedisMirror struct {
	mirror   Mirror
	store    *bookmarks.Store
	loop     *bookmarks.Loop
	logger   logger.Logger
	interval time.Duration

	jobs     chan mirrorJob
	subs     []*bookmarks.Subscription
	dirty    atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRedisMirror creates a mirror syncer reconciling every interval.
func NewRedisMirror(
	mirror Mirror,
	store *bookmarks.Store,
	loop *bookmarks.Loop,
	log logger.Logger,
	interval time.Duration,
) *RedisMirror {
	return &RedisMirror{
		mirror:   mirror,
		store:    store,
		loop:     loop,
		logger:   log,
		interval: interval,
		jobs:     make(chan mirrorJob, mirrorQueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to the store, pushes the full state once and starts
// the background worker.
func (rm *RedisMirror) Start(ctx context.Context) error {
	var snap bookmarks.Snapshot
	// Subscribing and snapshotting in one loop turn means no change is missed.
	err := rm.loop.Do(ctx, func() {
		rm.subscribe()
		snap = rm.store.Snapshot()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to store: %w", err)
	}

	if err := rm.sync(ctx, snap); err != nil {
		rm.logger.Warn("initial mirror sync failed", logger.Error(err))
		rm.dirty.Store(true)
	}

	rm.wg.Add(1)
	go rm.run(ctx)
	return nil
}

// Stop unsubscribes, flushes queued changes and waits for the worker.
func (rm *RedisMirror) Stop() {
	rm.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorJobTimeout)
		defer cancel()
		_ = rm.loop.Do(ctx, func() {
			for _, sub := range rm.subs {
				sub.Cancel()
			}
			rm.subs = nil
		})
		close(rm.stopCh)
		rm.wg.Wait()
	})
}

// subscribe runs on the loop.
func (rm *RedisMirror) subscribe() {
	saveBookmark := func(b *bookmarks.Bookmark) {
		r := b.Record()
		rm.enqueue("save_bookmark", func(ctx context.Context) error {
			return rm.mirror.SaveBookmark(ctx, r)
		})
	}
	saveTagged := func(b *bookmarks.Bookmark, _ string) { saveBookmark(b) }
	saveTags := func() {
		tags := rm.store.Tags().Names()
		rm.enqueue("save_tags", func(ctx context.Context) error {
			return rm.mirror.SaveTags(ctx, tags)
		})
	}

	rm.subs = append(rm.subs,
		rm.store.OnBookmarkAdded(saveBookmark),
		rm.store.OnBookmarkTitleChanged(saveBookmark),
		rm.store.OnBookmarkURLChanged(saveBookmark),
		rm.store.OnBookmarkTagAdded(saveTagged),
		rm.store.OnBookmarkTagRemoved(saveTagged),
		rm.store.OnBookmarkRemoved(func(b *bookmarks.Bookmark) {
			id := b.ID()
			rm.enqueue("delete_bookmark", func(ctx context.Context) error {
				return rm.mirror.DeleteBookmark(ctx, id)
			})
		}),
		rm.store.OnTagCreated(func(string) { saveTags() }),
		rm.store.OnTagDeleted(func(bookmarks.TagDeleted) { saveTags() }),
	)
}

// enqueue never blocks the loop. A full queue marks the mirror dirty so
// the next reconcile repairs it.
func (rm *RedisMirror) enqueue(op string, run func(ctx context.Context) error) {
	select {
	case rm.jobs <- mirrorJob{op: op, run: run}:
	default:
		rm.dirty.Store(true)
		rm.logger.Debug("mirror queue full, deferring to reconcile",
			logger.String("op", op))
	}
}

func (rm *RedisMirror) run(ctx context.Context) {
	defer rm.wg.Done()

	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case job := <-rm.jobs:
			rm.exec(ctx, job)
		case <-ticker.C:
			if err := rm.Reconcile(ctx); err != nil {
				rm.logger.Warn("mirror reconcile failed", logger.Error(err))
			}
		case <-rm.stopCh:
			rm.flush(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (rm *RedisMirror) flush(ctx context.Context) {
	for {
		select {
		case job := <-rm.jobs:
			rm.exec(ctx, job)
		default:
			return
		}
	}
}

func (rm *RedisMirror) exec(ctx context.Context, job mirrorJob) {
	jobCtx, cancel := context.WithTimeout(ctx, mirrorJobTimeout)
	defer cancel()

	if err := job.run(jobCtx); err != nil {
		rm.dirty.Store(true)
		rm.logger.Warn("mirror update failed",
			logger.String("op", job.op),
			logger.Error(err))
	}
}

// Reconcile pushes the full store state to the mirror and deletes
// mirrored bookmarks the store no longer has.
//
// The dirty flag is cleared before the snapshot is taken, so a change
// dropped while the sync runs stays marked for the next reconcile.
func (rm *RedisMirror) Reconcile(ctx context.Context) error {
	wasDirty := rm.dirty.Swap(false)

	var snap bookmarks.Snapshot
	if err := rm.loop.Do(ctx, func() { snap = rm.store.Snapshot() }); err != nil {
		if wasDirty {
			rm.dirty.Store(true)
		}
		return fmt.Errorf("failed to snapshot store: %w", err)
	}
	if err := rm.sync(ctx, snap); err != nil {
		rm.dirty.Store(true)
		return err
	}
	return nil
}

func (rm *RedisMirror) sync(ctx context.Context, snap bookmarks.Snapshot) error {
	syncCtx, cancel := context.WithTimeout(ctx, mirrorJobTimeout)
	defer cancel()

	deleted, err := rm.mirror.Replace(syncCtx, snap)
	if err != nil {
		return err
	}

	rm.logger.Info("mirror synced",
		logger.Int("bookmarks", len(snap.Bookmarks)),
		logger.Int("tags", len(snap.Tags)),
		logger.Int("deleted", deleted))
	return nil
}

// Dirty reports whether the mirror may be behind the store until the next
// successful reconcile.
func (rm *RedisMirror) Dirty() bool {
	return rm.dirty.Load()
}
