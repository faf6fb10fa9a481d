package bookmarks

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// memCodec keeps snapshots in memory, keyed by path.
type memCodec struct {
	mu    sync.Mutex
	files map[string]Snapshot
	saves int
	fail  error
}

func newMemCodec() *memCodec {
	return &memCodec{files: make(map[string]Snapshot)}
}

func (c *memCodec) Encode(path string, snap Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.files[path] = snap
	c.saves++
	return nil
}

func (c *memCodec) Decode(path string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[path], nil
}

func (c *memCodec) saved(path string) (Snapshot, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[path], c.saves
}

func newTestStore(t *testing.T) (*Store, *memCodec, string) {
	t.Helper()
	codec := newMemCodec()
	path := filepath.Join(t.TempDir(), "bookmarks.db")
	s, err := Create(path, codec)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(s.Wait)
	return s, codec, path
}

func bookmarkAt(url string, timeAdded int64, tags ...string) *Bookmark {
	return FromRecord(Record{URL: url, Title: url, TimeAdded: timeAdded, Tags: tags})
}

func urls(bs []*Bookmark) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.URL()
	}
	return out
}

func TestCreateFirstRun(t *testing.T) {
	s, codec, path := newTestStore(t)

	snap, saves := codec.saved(path)
	if saves != 1 {
		t.Errorf("Create() saves = %d, want 1", saves)
	}
	if len(snap.Bookmarks) != 0 {
		t.Errorf("initial file has %d bookmarks, want 0", len(snap.Bookmarks))
	}
	if !s.TagExists(FavoritesTag) {
		t.Errorf("TagExists(%q) = false, want true", FavoritesTag)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestCreateLoadsExistingFile(t *testing.T) {
	codec := newMemCodec()
	path := filepath.Join(t.TempDir(), "bookmarks.db")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	codec.files[path] = Snapshot{
		Bookmarks: []Record{
			{ID: "1", URL: "https://a.test", Title: "A", TimeAdded: 100},
			{ID: "2", URL: "https://b.test", Title: "B", TimeAdded: 200, Tags: []string{"work"}},
		},
		Tags: []string{FavoritesTag, "work"},
	}

	s, err := Create(path, codec)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, saves := codec.saved(path); saves != 0 {
		t.Errorf("Create() with existing file saved %d times, want 0", saves)
	}
	got := urls(s.Bookmarks())
	want := []string{"https://b.test", "https://a.test"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Bookmarks() = %v, want %v", got, want)
	}
	if !s.TagExists("work") {
		t.Error("TagExists(work) = false after load")
	}
}

func TestCreateFailsWhenFirstSaveFails(t *testing.T) {
	codec := newMemCodec()
	codec.fail = errors.New("disk full")

	_, err := Create(filepath.Join(t.TempDir(), "bookmarks.db"), codec)
	if err == nil {
		t.Fatal("Create() error = nil, want error")
	}
	var saveErr *SaveError
	if !errors.As(err, &saveErr) {
		t.Errorf("Create() error = %v, want *SaveError", err)
	}
}

func TestAddKeepsSortOrder(t *testing.T) {
	s, _, _ := newTestStore(t)

	r := rand.New(rand.NewSource(1))
	seen := make(map[int64]bool)
	for i := 0; i < 200; i++ {
		ts := r.Int63n(1_000_000)
		if seen[ts] {
			continue
		}
		seen[ts] = true
		s.Add(bookmarkAt(fmt.Sprintf("https://example.test/%d", ts), ts))
	}

	list := s.Bookmarks()
	if len(list) != len(seen) {
		t.Fatalf("Bookmarks() len = %d, want %d", len(list), len(seen))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].TimeAdded() < list[i].TimeAdded() {
			t.Fatalf("Bookmarks() not sorted at %d: %d before %d",
				i, list[i-1].TimeAdded(), list[i].TimeAdded())
		}
	}
}

func TestAddDropsSameTimeAdded(t *testing.T) {
	s, _, _ := newTestStore(t)

	added := 0
	s.OnBookmarkAdded(func(*Bookmark) { added++ })

	s.Add(bookmarkAt("https://a.test", 100))
	s.Add(bookmarkAt("https://b.test", 100))

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	if got := s.Bookmarks()[0].URL(); got != "https://a.test" {
		t.Errorf("kept %q, want https://a.test", got)
	}
	if added != 1 {
		t.Errorf("bookmark-added emitted %d times, want 1", added)
	}
}

func TestScenarioFirstRunThenAdds(t *testing.T) {
	s, codec, path := newTestStore(t)

	s.Add(bookmarkAt("https://a.test", 100))
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	s.Add(bookmarkAt("https://b.test", 100))
	if s.Len() != 1 {
		t.Fatalf("Len() after duplicate time = %d, want 1", s.Len())
	}

	s.Add(bookmarkAt("https://b.test", 200))
	got := urls(s.Bookmarks())
	if len(got) != 2 || got[0] != "https://b.test" || got[1] != "https://a.test" {
		t.Fatalf("Bookmarks() = %v, want [https://b.test https://a.test]", got)
	}

	s.Wait()
	snap, _ := codec.saved(path)
	if len(snap.Bookmarks) != 2 {
		t.Errorf("persisted %d bookmarks, want 2", len(snap.Bookmarks))
	}
}

func TestAddBulkDedupsByURL(t *testing.T) {
	s, codec, _ := newTestStore(t)
	s.Add(bookmarkAt("https://existing.test", 50))
	s.Wait()
	_, before := codec.saved(s.Path())

	first := bookmarkAt("https://dup.test", 300)
	n := s.AddBulk([]*Bookmark{
		bookmarkAt("https://one.test", 100),
		first,
		bookmarkAt("https://dup.test", 400),
		bookmarkAt("https://existing.test", 500),
		nil,
	})
	s.Wait()

	if n != 2 {
		t.Errorf("AddBulk() = %d, want 2", n)
	}
	if got := s.BookmarkByURL("https://dup.test"); got != first {
		t.Error("AddBulk() did not keep the first bookmark for a repeated URL")
	}
	if got := urls(s.Bookmarks()); len(got) != 3 ||
		got[0] != "https://dup.test" || got[1] != "https://one.test" || got[2] != "https://existing.test" {
		t.Errorf("Bookmarks() = %v", got)
	}
	if _, after := codec.saved(s.Path()); after-before != 1 {
		t.Errorf("AddBulk() saved %d times, want 1", after-before)
	}
}

func TestAddKeepsIDsUnique(t *testing.T) {
	tests := []struct {
		name string
		add  func(s *Store, b *Bookmark)
	}{
		{name: "Add", add: func(s *Store, b *Bookmark) { s.Add(b) }},
		{name: "AddBulk", add: func(s *Store, b *Bookmark) { s.AddBulk([]*Bookmark{b}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, codec, path := newTestStore(t)

			first := FromRecord(Record{ID: "h1", URL: "https://a.test", TimeAdded: 100})
			s.AddBulk([]*Bookmark{first})
			if err := first.SetURL("https://moved.test"); err != nil {
				t.Fatalf("SetURL() error = %v", err)
			}

			again := FromRecord(Record{ID: "h1", URL: "https://a.test", TimeAdded: 200})
			tt.add(s, again)
			s.Wait()

			if s.Len() != 2 {
				t.Fatalf("Len() = %d, want 2", s.Len())
			}
			if first.ID() != "h1" {
				t.Errorf("stored bookmark id changed to %q", first.ID())
			}
			if again.ID() == "h1" || again.ID() == "" {
				t.Errorf("colliding bookmark id = %q, want a fresh id", again.ID())
			}
			if s.BookmarkByID(again.ID()) != again {
				t.Error("BookmarkByID() does not find the re-identified bookmark")
			}

			if err := s.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			snap, _ := codec.saved(path)
			ids := make(map[string]bool)
			for _, r := range snap.Bookmarks {
				if ids[r.ID] {
					t.Errorf("id %q saved twice", r.ID)
				}
				ids[r.ID] = true
			}
		})
	}
}

func TestAddBulkUniqueIDsWithinBatch(t *testing.T) {
	s, _, _ := newTestStore(t)

	n := s.AddBulk([]*Bookmark{
		FromRecord(Record{ID: "same", URL: "https://a.test", TimeAdded: 1}),
		FromRecord(Record{ID: "same", URL: "https://b.test", TimeAdded: 2}),
	})
	if n != 2 {
		t.Fatalf("AddBulk() = %d, want 2", n)
	}
	bs := s.Bookmarks()
	if bs[0].ID() == bs[1].ID() {
		t.Errorf("both bookmarks share id %q", bs[0].ID())
	}
}

func TestDeleteTagCascades(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.CreateTag("work")
	for i, u := range []string{"https://a.test", "https://b.test", "https://c.test"} {
		s.Add(bookmarkAt(u, int64(100+i), "work"))
	}

	var removed []string
	s.OnBookmarkTagRemoved(func(b *Bookmark, tag string) { removed = append(removed, b.URL()+"#"+tag) })

	s.DeleteTag("work")

	if s.TagExists("work") {
		t.Error("TagExists(work) = true after DeleteTag")
	}
	for _, b := range s.Bookmarks() {
		if b.HasTag("work") {
			t.Errorf("%s still tagged work", b.URL())
		}
	}
	if len(removed) != 3 {
		t.Errorf("bookmark-tag-removed emitted %d times, want 3", len(removed))
	}
}

func TestDeleteTagEventPosition(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.CreateTag("zeta")
	s.CreateTag("alpha")

	var got TagDeleted
	s.OnTagDeleted(func(ev TagDeleted) { got = ev })

	s.DeleteTag("zeta")

	want := TagDeleted{Position: 2, Name: "zeta"}
	if got != want {
		t.Errorf("tag-deleted = %+v, want %+v", got, want)
	}
}

func TestDeleteMissingTagPanics(t *testing.T) {
	s, _, _ := newTestStore(t)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("DeleteTag() on missing tag should have panicked")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrTagNotFound) {
			t.Errorf("panic value = %v, want ErrTagNotFound", r)
		}
	}()
	s.DeleteTag("missing")
}

func TestCreateTagOrderAndDedup(t *testing.T) {
	s, _, _ := newTestStore(t)

	var created []string
	s.OnTagCreated(func(name string) { created = append(created, name) })

	for _, name := range []string{"cherry", "Banana", "apple", "cherry", ""} {
		s.CreateTag(name)
	}

	want := []string{FavoritesTag, "apple", "Banana", "cherry"}
	got := s.Tags().Names()
	if len(got) != len(want) {
		t.Fatalf("Tags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tags() = %v, want %v", got, want)
		}
	}
	if len(created) != 3 {
		t.Errorf("tag-created emitted %d times, want 3", len(created))
	}
}

func TestRemoveEmitsAfterDetach(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Add(bookmarkAt("https://a.test", 100))
	s.Add(bookmarkAt("https://b.test", 200))

	called := false
	s.OnBookmarkRemoved(func(removed *Bookmark) {
		called = true
		for _, b := range s.Bookmarks() {
			if b == removed {
				t.Error("removed bookmark still listed inside bookmark-removed")
			}
		}
		if s.BookmarkByURL(removed.URL()) != nil {
			t.Error("BookmarkByURL() found removed bookmark inside bookmark-removed")
		}
	})

	// A different instance with the same URL identifies the stored one.
	s.Remove(bookmarkAt("https://a.test", 999))

	if !called {
		t.Fatal("bookmark-removed not emitted")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Add(bookmarkAt("https://a.test", 100))

	called := false
	s.OnBookmarkRemoved(func(*Bookmark) { called = true })
	s.Remove(bookmarkAt("https://nope.test", 100))

	if called || s.Len() != 1 {
		t.Errorf("Remove() of unknown URL changed the store (called=%v, len=%d)", called, s.Len())
	}
}

func TestBookmarkEventsForwardedUntilRemoved(t *testing.T) {
	s, _, _ := newTestStore(t)
	b := bookmarkAt("https://a.test", 100)
	s.Add(b)

	var events []string
	s.OnBookmarkTitleChanged(func(*Bookmark) { events = append(events, "title") })
	s.OnBookmarkURLChanged(func(*Bookmark) { events = append(events, "url") })
	s.OnBookmarkTagAdded(func(_ *Bookmark, tag string) { events = append(events, "+"+tag) })
	s.OnBookmarkTagRemoved(func(_ *Bookmark, tag string) { events = append(events, "-"+tag) })

	b.SetTitle("A")
	b.SetTitle("A")
	if err := b.SetURL("https://a2.test"); err != nil {
		t.Fatalf("SetURL() error = %v", err)
	}
	b.AddTag("x")
	b.RemoveTag("x")

	want := []string{"title", "url", "+x", "-x"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}

	s.Remove(b)
	events = nil
	b.SetTitle("after")
	b.AddTag("y")
	if len(events) != 0 {
		t.Errorf("events after Remove() = %v, want none", events)
	}
	if len(s.watches) != 0 {
		t.Errorf("watches = %d after Remove(), want 0", len(s.watches))
	}
	if b.titleChanged.len() != 0 {
		t.Errorf("bookmark still has %d title listeners", b.titleChanged.len())
	}
}

func TestSetURLRejectsDuplicate(t *testing.T) {
	s, _, _ := newTestStore(t)
	a := bookmarkAt("https://a.test", 100)
	s.Add(a)
	s.Add(bookmarkAt("https://b.test", 200))

	if err := a.SetURL("https://b.test"); !errors.Is(err, ErrDuplicateURL) {
		t.Errorf("SetURL() error = %v, want ErrDuplicateURL", err)
	}
	if a.URL() != "https://a.test" {
		t.Errorf("URL() = %q after rejected SetURL", a.URL())
	}

	loose := bookmarkAt("https://b.test", 300)
	if err := loose.SetURL("https://a.test"); err != nil {
		t.Errorf("SetURL() on a bookmark outside the store error = %v", err)
	}
}

func TestBookmarksWithTag(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Add(bookmarkAt("https://a.test", 100, "work"))
	s.Add(bookmarkAt("https://b.test", 200))
	s.Add(bookmarkAt("https://c.test", 300, "work", "home"))
	s.Add(bookmarkAt("https://d.test", 400))

	tests := []struct {
		name string
		tag  string
		want []string
	}{
		{name: "tag", tag: "work", want: []string{"https://c.test", "https://a.test"}},
		{name: "untagged", tag: Untagged, want: []string{"https://d.test", "https://b.test"}},
		{name: "unknown", tag: "none", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := urls(s.BookmarksWithTag(tt.tag))
			if len(got) != len(tt.want) {
				t.Fatalf("BookmarksWithTag(%q) = %v, want %v", tt.tag, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("BookmarksWithTag(%q) = %v, want %v", tt.tag, got, tt.want)
				}
			}
		})
	}
}

func TestListsAreCopies(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Add(bookmarkAt("https://a.test", 100))

	list := s.Bookmarks()
	list[0] = nil
	if s.Bookmarks()[0] == nil {
		t.Error("Bookmarks() exposed the internal slice")
	}
}

func TestSmartBookmarksSortedByTitle(t *testing.T) {
	s, _, _ := newTestStore(t)
	mk := func(url, title string, ts int64) *Bookmark {
		return FromRecord(Record{URL: url, Title: title, TimeAdded: ts})
	}
	s.Add(mk("https://wiki.test/?q=%s", "wikipedia", 100))
	s.Add(mk("https://plain.test", "plain", 200))
	s.Add(mk("https://ddg.test/?q=%s", "DuckDuckGo", 300))
	s.Add(mk("https://arch.test/?q=%s", "Arch Wiki", 400))

	got := s.SmartBookmarks()
	want := []string{"Arch Wiki", "DuckDuckGo", "wikipedia"}
	if len(got) != len(want) {
		t.Fatalf("SmartBookmarks() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Title() != want[i] {
			t.Errorf("SmartBookmarks()[%d] = %q, want %q", i, got[i].Title(), want[i])
		}
	}
}

func TestSaveAsyncReportsError(t *testing.T) {
	s, codec, _ := newTestStore(t)
	codec.mu.Lock()
	codec.fail = errors.New("read-only file system")
	codec.mu.Unlock()

	errCh := make(chan error, 1)
	s.SaveAsync(func(err error) { errCh <- err })
	s.Wait()

	err := <-errCh
	var saveErr *SaveError
	if !errors.As(err, &saveErr) {
		t.Fatalf("SaveAsync() callback error = %v, want *SaveError", err)
	}
	if saveErr.Path != s.Path() {
		t.Errorf("SaveError.Path = %q, want %q", saveErr.Path, s.Path())
	}
}

func TestDefaultSaveCallbackSwallowsError(t *testing.T) {
	s, codec, _ := newTestStore(t)
	codec.mu.Lock()
	codec.fail = errors.New("boom")
	codec.mu.Unlock()

	// Must neither panic nor block.
	s.Add(bookmarkAt("https://a.test", 100))
	s.Wait()
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStaleSnapshotIsNotWritten(t *testing.T) {
	s, codec, path := newTestStore(t)

	newer := Snapshot{Tags: []string{"newer"}}
	older := Snapshot{Tags: []string{"older"}}
	if err := s.write(10, newer); err != nil {
		t.Fatalf("write() error = %v", err)
	}
	if err := s.write(9, older); err != nil {
		t.Fatalf("write() error = %v", err)
	}

	snap, _ := codec.saved(path)
	if len(snap.Tags) != 1 || snap.Tags[0] != "newer" {
		t.Errorf("file holds %v, want the newer snapshot", snap.Tags)
	}
}

func TestLoadSkipsBadEntries(t *testing.T) {
	s, codec, path := newTestStore(t)
	codec.mu.Lock()
	codec.files[path] = Snapshot{
		Bookmarks: []Record{
			{ID: "1", URL: "https://a.test", TimeAdded: 100},
			{ID: "2", URL: "", TimeAdded: 200},
			{ID: "3", URL: "https://a.test", TimeAdded: 300},
			{ID: "1", URL: "https://c.test", TimeAdded: 400},
			{ID: "5", URL: "https://e.test", TimeAdded: 500, Tags: []string{"t"}},
		},
		Tags:    []string{"t", ""},
		Skipped: 2,
	}
	codec.mu.Unlock()

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got := urls(s.Bookmarks())
	if len(got) != 2 || got[0] != "https://e.test" || got[1] != "https://a.test" {
		t.Errorf("Bookmarks() after Load() = %v", got)
	}
	if !s.TagExists("t") {
		t.Error("TagExists(t) = false after Load()")
	}
}

func TestLoadKeepsPartialResultOnError(t *testing.T) {
	codec := &partialCodec{snap: Snapshot{Bookmarks: []Record{{ID: "1", URL: "https://a.test", TimeAdded: 1}}}}
	s := newStore(filepath.Join(t.TempDir(), "bookmarks.db"), codec)

	if err := s.Load(); err == nil {
		t.Error("Load() error = nil, want decode error")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

type partialCodec struct{ snap Snapshot }

func (c *partialCodec) Encode(string, Snapshot) error { return nil }
func (c *partialCodec) Decode(string) (Snapshot, error) {
	return c.snap, errors.New("truncated")
}

func TestSubscriptionCancelTwice(t *testing.T) {
	s, _, _ := newTestStore(t)

	calls := 0
	sub := s.OnBookmarkAdded(func(*Bookmark) { calls++ })
	other := s.OnBookmarkAdded(func(*Bookmark) {})
	sub.Cancel()
	sub.Cancel()

	s.Add(bookmarkAt("https://a.test", 100))
	if calls != 0 {
		t.Errorf("cancelled listener called %d times", calls)
	}
	if s.events.added.len() != 1 {
		t.Errorf("added listeners = %d, want 1", s.events.added.len())
	}
	other.Cancel()
}

func TestExecutorReceivesCallbacks(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	codec := newMemCodec()
	s, err := Create(filepath.Join(t.TempDir(), "bookmarks.db"), codec, WithExecutor(loop))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	done := make(chan error, 1)
	s.SaveAsync(func(err error) { done <- err })
	if err := <-done; err != nil {
		t.Errorf("SaveAsync() error = %v", err)
	}
}
