package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/sources/homepage"
)

// ImportResult summarizes one homepage import.
type ImportResult struct {
	Found  int // bookmarks in the file
	Added  int // bookmarks new to the store
	Pruned int // previously imported bookmarks no longer in the file
}

// HomepageImporter periodically imports a Homepage bookmarks.yaml into
// the store. Categories become tags.
type HomepageImporter struct {
	loader        *homepage.Loader
	mapper        *homepage.Mapper
	store         *bookmarks.Store
	loop          *bookmarks.Loop
	logger        logger.Logger
	interval      time.Duration
	prune         bool
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
}

// NewHomepageImporter creates a new importer. When prune is true,
// bookmarks a previous import added are removed once they leave the file.
func NewHomepageImporter(
	bookmarkFile string,
	store *bookmarks.Store,
	loop *bookmarks.Loop,
	log logger.Logger,
	interval time.Duration,
	prune bool,
	manualTrigger chan struct{},
) *HomepageImporter {
	return &HomepageImporter{
		loader:        homepage.NewLoader(bookmarkFile),
		mapper:        homepage.NewMapper(),
		store:         store,
		loop:          loop,
		logger:        log,
		interval:      interval,
		prune:         prune,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start imports once, then again on every tick or manual trigger until
// Stop is called or ctx ends. A failed first import is logged, not fatal.
func (hi *HomepageImporter) Start(ctx context.Context) {
	if _, err := hi.Import(ctx); err != nil {
		hi.logger.Warn("initial homepage import failed", logger.Error(err))
	}

	ticker := time.NewTicker(hi.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				hi.importLogged(ctx)
			case <-hi.manualTrigger:
				hi.logger.Info("manual homepage import triggered")
				hi.importLogged(ctx)
			case <-hi.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the importer. It is safe to call more than once.
func (hi *HomepageImporter) Stop() {
	hi.stopOnce.Do(func() { close(hi.stopCh) })
}

func (hi *HomepageImporter) importLogged(ctx context.Context) {
	if _, err := hi.Import(ctx); err != nil {
		hi.logger.Error("failed to import homepage bookmarks", logger.Error(err))
	}
}

// Import reads the file and merges it into the store on the loop.
func (hi *HomepageImporter) Import(ctx context.Context) (ImportResult, error) {
	hi.logger.Info("importing homepage bookmarks",
		logger.String("file", hi.loader.Path()))

	config, err := hi.loader.Load()
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to load bookmarks: %w", err)
	}

	mapped, err := hi.mapper.Map(config)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to map bookmarks: %w", err)
	}

	res := ImportResult{Found: len(mapped.Bookmarks)}
	err = hi.loop.Do(ctx, func() {
		for _, tag := range mapped.Tags {
			hi.store.CreateTag(tag)
		}
		res.Added = hi.store.AddBulk(mapped.Bookmarks)
		if hi.prune {
			res.Pruned = hi.pruneMissing(mapped.Bookmarks)
		}
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to apply import: %w", err)
	}

	hi.logger.Info("homepage bookmarks imported",
		logger.Int("found", res.Found),
		logger.Int("added", res.Added),
		logger.Int("pruned", res.Pruned))

	return res, nil
}

// pruneMissing runs on the loop.
func (hi *HomepageImporter) pruneMissing(current []*bookmarks.Bookmark) int {
	keep := make(map[string]struct{}, len(current))
	for _, b := range current {
		keep[b.URL()] = struct{}{}
	}

	pruned := 0
	for _, b := range hi.store.Bookmarks() {
		if !homepage.IsImported(b) {
			continue
		}
		if _, ok := keep[b.URL()]; ok {
			continue
		}
		hi.store.Remove(b)
		pruned++
	}
	return pruned
}
