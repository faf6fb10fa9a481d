package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/storage/kvfile"
)

func newLoopStore(t *testing.T) (*bookmarks.Store, *bookmarks.Loop) {
	t.Helper()
	loop := bookmarks.NewLoop()
	s, err := bookmarks.Create(filepath.Join(t.TempDir(), "bookmarks.db"), kvfile.New(), bookmarks.WithExecutor(loop))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() {
		s.Wait()
		loop.Stop()
	})
	return s, loop
}

func onLoop(t *testing.T, loop *bookmarks.Loop, fn func()) {
	t.Helper()
	if err := loop.Do(context.Background(), fn); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test YAML file: %v", err)
	}
	return path
}

const twoBookmarks = `---
- Developer:
    - Github:
        - href: https://github.com/
    - Go:
        - href: https://go.dev/
`

func TestHomepageImporterImport(t *testing.T) {
	s, loop := newLoopStore(t)
	path := writeYAML(t, twoBookmarks)

	hi := NewHomepageImporter(path, s, loop, logger.Nop(), time.Hour, false, nil)

	res, err := hi.Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Found != 2 || res.Added != 2 {
		t.Errorf("Import() = %+v, want 2 found, 2 added", res)
	}

	var tagged []*bookmarks.Bookmark
	var hasTag bool
	onLoop(t, loop, func() {
		tagged = s.BookmarksWithTag("Developer")
		hasTag = s.TagExists("Developer")
	})
	if !hasTag {
		t.Error("category tag was not created")
	}
	if len(tagged) != 2 {
		t.Errorf("BookmarksWithTag(Developer) = %d bookmarks, want 2", len(tagged))
	}

	// a second import of the same file adds nothing
	res, err = hi.Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Added != 0 {
		t.Errorf("re-import added %d bookmarks, want 0", res.Added)
	}
}

func TestHomepageImporterPrunes(t *testing.T) {
	s, loop := newLoopStore(t)
	path := writeYAML(t, twoBookmarks)

	var manual *bookmarks.Bookmark
	onLoop(t, loop, func() {
		manual = bookmarks.NewBookmark("https://manual.test/", "Manual")
		s.Add(manual)
	})

	hi := NewHomepageImporter(path, s, loop, logger.Nop(), time.Hour, true, nil)
	if _, err := hi.Import(context.Background()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if err := os.WriteFile(path, []byte(`---
- Developer:
    - Go:
        - href: https://go.dev/
`), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := hi.Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", res.Pruned)
	}

	var github, kept *bookmarks.Bookmark
	onLoop(t, loop, func() {
		github = s.BookmarkByURL("https://github.com/")
		kept = s.BookmarkByURL("https://manual.test/")
	})
	if github != nil {
		t.Error("bookmark removed from the file is still in the store")
	}
	if kept != manual {
		t.Error("manually added bookmark was pruned")
	}
}

func TestHomepageImporterMissingFile(t *testing.T) {
	s, loop := newLoopStore(t)
	hi := NewHomepageImporter(filepath.Join(t.TempDir(), "missing.yaml"), s, loop, logger.Nop(), time.Hour, false, nil)

	if _, err := hi.Import(context.Background()); err == nil {
		t.Error("Import() error = nil, want error for a missing file")
	}
}

func TestHomepageImporterManualTrigger(t *testing.T) {
	s, loop := newLoopStore(t)
	path := writeYAML(t, twoBookmarks)
	trigger := make(chan struct{}, 1)

	hi := NewHomepageImporter(path, s, loop, logger.Nop(), time.Hour, false, trigger)
	hi.Start(context.Background())
	defer hi.Stop()

	if err := os.WriteFile(path, []byte(twoBookmarks+`    - Docs:
        - href: https://pkg.go.dev/
`), 0o644); err != nil {
		t.Fatal(err)
	}
	trigger <- struct{}{}

	waitFor(t, func() bool {
		var n int
		onLoop(t, loop, func() { n = s.Len() })
		return n == 3
	})
	hi.Stop()
}

// fakeMirror records mirror calls.
type fakeMirror struct {
	mu       sync.Mutex
	saved    map[string]bookmarks.Record
	deleted  []string
	tags     []string
	replaces int
	fail     bool

	onReplace func() // runs during Replace, outside the lock
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{saved: make(map[string]bookmarks.Record)}
}

func (m *fakeMirror) SaveBookmark(_ context.Context, r bookmarks.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mirror down")
	}
	m.saved[r.ID] = r
	return nil
}

func (m *fakeMirror) DeleteBookmark(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *fakeMirror) SaveTags(_ context.Context, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags = tags
	return nil
}

func (m *fakeMirror) Replace(_ context.Context, snap bookmarks.Snapshot) (int, error) {
	if m.onReplace != nil {
		m.onReplace()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errors.New("mirror down")
	}
	m.replaces++
	m.saved = make(map[string]bookmarks.Record, len(snap.Bookmarks))
	for _, r := range snap.Bookmarks {
		m.saved[r.ID] = r
	}
	m.tags = snap.Tags
	return 0, nil
}

func (m *fakeMirror) state() (map[string]bookmarks.Record, []string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[string]bookmarks.Record, len(m.saved))
	for k, v := range m.saved {
		saved[k] = v
	}
	return saved, append([]string(nil), m.tags...), m.replaces
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRedisMirrorFollowsStore(t *testing.T) {
	s, loop := newLoopStore(t)
	existing := bookmarks.NewBookmark("https://existing.test/", "Existing")
	onLoop(t, loop, func() { s.Add(existing) })

	m := newFakeMirror()
	rm := NewRedisMirror(m, s, loop, logger.Nop(), time.Hour)
	if err := rm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer rm.Stop()

	saved, _, replaces := m.state()
	if replaces != 1 {
		t.Errorf("Start() ran %d full syncs, want 1", replaces)
	}
	if _, ok := saved[existing.ID()]; !ok {
		t.Error("initial sync did not push the existing bookmark")
	}

	added := bookmarks.NewBookmark("https://added.test/", "Added")
	onLoop(t, loop, func() {
		s.Add(added)
		s.CreateTag("later")
		s.Remove(existing)
	})

	waitFor(t, func() bool {
		saved, tags, _ := m.state()
		_, hasAdded := saved[added.ID()]
		_, hasExisting := saved[existing.ID()]
		return hasAdded && !hasExisting && len(tags) == 2
	})

	onLoop(t, loop, func() { added.SetTitle("Renamed") })
	waitFor(t, func() bool {
		saved, _, _ := m.state()
		return saved[added.ID()].Title == "Renamed"
	})
}

func TestRedisMirrorStopUnsubscribes(t *testing.T) {
	s, loop := newLoopStore(t)
	m := newFakeMirror()
	rm := NewRedisMirror(m, s, loop, logger.Nop(), time.Hour)
	if err := rm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rm.Stop()
	rm.Stop()

	after := bookmarks.NewBookmark("https://after.test/", "After")
	onLoop(t, loop, func() { s.Add(after) })

	saved, _, _ := m.state()
	if _, ok := saved[after.ID()]; ok {
		t.Error("bookmark added after Stop() reached the mirror")
	}
}

func TestRedisMirrorReconcileClearsDirty(t *testing.T) {
	s, loop := newLoopStore(t)
	m := newFakeMirror()
	m.fail = true

	rm := NewRedisMirror(m, s, loop, logger.Nop(), time.Hour)
	if err := rm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer rm.Stop()

	if !rm.Dirty() {
		t.Error("Dirty() = false after a failed initial sync")
	}

	m.mu.Lock()
	m.fail = false
	m.mu.Unlock()

	if err := rm.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if rm.Dirty() {
		t.Error("Dirty() = true after a successful reconcile")
	}
}

func TestRedisMirrorReconcileKeepsConcurrentDirtyMark(t *testing.T) {
	s, loop := newLoopStore(t)
	m := newFakeMirror()

	rm := NewRedisMirror(m, s, loop, logger.Nop(), time.Hour)
	// no worker and no buffer: every enqueue is dropped
	rm.jobs = make(chan mirrorJob)
	m.onReplace = func() {
		rm.enqueue("save", func(context.Context) error { return nil })
	}

	if err := rm.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !rm.Dirty() {
		t.Error("Dirty() = false, a change dropped during the sync was forgotten")
	}
}

func TestRedisMirrorFailedReconcileStaysDirty(t *testing.T) {
	s, loop := newLoopStore(t)
	m := newFakeMirror()
	m.fail = true

	rm := NewRedisMirror(m, s, loop, logger.Nop(), time.Hour)
	rm.dirty.Store(true)

	if err := rm.Reconcile(context.Background()); err == nil {
		t.Fatal("Reconcile() error = nil, want mirror failure")
	}
	if !rm.Dirty() {
		t.Error("Dirty() = false after a failed reconcile")
	}
}
