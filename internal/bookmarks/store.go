package bookmarks

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/collate"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// ErrTagNotFound is the panic value (wrapped) of DeleteTag on an unknown tag.
var ErrTagNotFound = errors.New("tag does not exist")

// Executor runs save callbacks on the context that owns the store.
type Executor interface {
	Post(fn func())
}

// inlineExecutor runs callbacks on the calling goroutine.
type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) { fn() }

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger. Defaults to a no-op logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithExecutor sets where SaveAsync callbacks are delivered.
// Without it callbacks run on the goroutine that performed the save.
func WithExecutor(exec Executor) Option {
	return func(s *Store) { s.exec = exec }
}

// Store owns an ordered sequence of bookmarks and the tag registry, and
// persists both to a single file.
//
// A Store is not safe for concurrent use: every call, including event
// dispatch, must come from one owning goroutine (see Loop). Only persistence
// runs in the background.
type Store struct {
	bookmarks []*Bookmark // most recent first
	tags      *TagRegistry
	collator  *collate.Collator

	events  storeEvents
	watches map[*Bookmark][]*Subscription

	// holdSave suppresses per-change saves while a compound mutation runs.
	holdSave int

	path  string
	codec Codec
	log   logger.Logger
	exec  Executor

	gen     uint64 // last snapshot generation, owner-only
	writeMu sync.Mutex
	written uint64 // last generation written to disk, guarded by writeMu
	pending sync.WaitGroup
}

func newStore(path string, codec Codec, opts ...Option) *Store {
	s := &Store{
		tags:     newTagRegistry(),
		collator: newCollator(),
		watches:  make(map[*Bookmark][]*Subscription),
		path:     path,
		codec:    codec,
		log:      logger.Nop(),
		exec:     inlineExecutor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds a store backed by path. The file is loaded when it exists;
// otherwise an empty one is written first. Load problems are logged and the
// store starts with whatever could be read.
func Create(path string, codec Codec, opts ...Option) (*Store, error) {
	s := newStore(path, codec, opts...)
	s.tags.insert(FavoritesTag)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		s.log.Info("bookmarks file not found, creating it",
			logger.String("path", path))
		if err := s.Save(); err != nil {
			return nil, fmt.Errorf("failed to create bookmarks file: %w", err)
		}
	}

	if err := s.Load(); err != nil {
		s.log.Warn("failed to load bookmarks, continuing with what was read",
			logger.String("path", path),
			logger.Error(err))
	}

	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Len returns the number of bookmarks.
func (s *Store) Len() int { return len(s.bookmarks) }

// search returns the insertion point for b, after bookmarks that compare equal.
func (s *Store) search(b *Bookmark) int {
	return sort.Search(len(s.bookmarks), func(i int) bool {
		return compareBookmarks(s.bookmarks[i], b) > 0
	})
}

// Add inserts b in order. When the bookmark just before the insertion point
// was added at the same time, b is treated as a duplicate and dropped
// without notice.
func (s *Store) Add(b *Bookmark) {
	if b == nil {
		return
	}

	pos := s.search(b)
	if pos > 0 && s.bookmarks[pos-1].timeAdded == b.timeAdded {
		s.log.Debug("bookmark dropped, same time added as its neighbour",
			logger.String("url", b.url),
			logger.Int64("time_added", b.timeAdded))
		return
	}

	if s.BookmarkByID(b.id) != nil {
		s.reassignID(b)
	}

	s.bookmarks = append(s.bookmarks, nil)
	copy(s.bookmarks[pos+1:], s.bookmarks[pos:])
	s.bookmarks[pos] = b

	s.watch(b)
	s.events.added.each(func(fn func(*Bookmark)) { fn(b) })
	s.scheduleSave()
}

// AddBulk inserts every bookmark whose URL is not already in the store
// (nor earlier in bs), sorts once and saves once. It returns the number of
// bookmarks added.
func (s *Store) AddBulk(bs []*Bookmark) int {
	seen := make(map[string]struct{}, len(s.bookmarks)+len(bs))
	ids := make(map[string]struct{}, len(s.bookmarks)+len(bs))
	for _, b := range s.bookmarks {
		seen[b.url] = struct{}{}
		ids[b.id] = struct{}{}
	}

	accepted := make([]*Bookmark, 0, len(bs))
	for _, b := range bs {
		if b == nil {
			continue
		}
		if _, dup := seen[b.url]; dup {
			continue
		}
		if _, dup := ids[b.id]; dup {
			s.reassignID(b)
		}
		seen[b.url] = struct{}{}
		ids[b.id] = struct{}{}
		accepted = append(accepted, b)
	}

	// New bookmarks go in front, last accepted first, then a stable sort.
	merged := make([]*Bookmark, 0, len(accepted)+len(s.bookmarks))
	for i := len(accepted) - 1; i >= 0; i-- {
		merged = append(merged, accepted[i])
	}
	merged = append(merged, s.bookmarks...)
	sort.SliceStable(merged, func(i, j int) bool {
		return compareBookmarks(merged[i], merged[j]) < 0
	})
	s.bookmarks = merged

	for _, b := range accepted {
		s.watch(b)
		s.events.added.each(func(fn func(*Bookmark)) { fn(b) })
	}

	s.scheduleSave()
	return len(accepted)
}

// reassignID gives b a fresh id when another bookmark already holds its
// own. Ids key the persisted entries and must stay unique.
func (s *Store) reassignID(b *Bookmark) {
	old := b.id
	b.id = uuid.NewString()
	s.log.Warn("bookmark id already in use, assigned a new one",
		logger.String("url", b.url),
		logger.String("old_id", old),
		logger.String("id", b.id))
}

// Remove deletes the bookmark with b's URL. The removed-listeners run after
// the bookmark has left the sequence. Unknown URLs are ignored.
func (s *Store) Remove(b *Bookmark) {
	if b == nil {
		return
	}

	idx := s.indexByURL(b.url)
	if idx < 0 {
		return
	}
	target := s.bookmarks[idx]

	next := make([]*Bookmark, 0, len(s.bookmarks)-1)
	next = append(next, s.bookmarks[:idx]...)
	next = append(next, s.bookmarks[idx+1:]...)
	s.bookmarks = next

	s.unwatch(target)
	s.events.removed.each(func(fn func(*Bookmark)) { fn(target) })
	s.scheduleSave()
}

func (s *Store) indexByURL(url string) int {
	for i, b := range s.bookmarks {
		if b.url == url {
			return i
		}
	}
	return -1
}

// BookmarkByURL returns the first bookmark with url, or nil.
func (s *Store) BookmarkByURL(url string) *Bookmark {
	if i := s.indexByURL(url); i >= 0 {
		return s.bookmarks[i]
	}
	return nil
}

// BookmarkByID returns the bookmark with id, or nil.
func (s *Store) BookmarkByID(id string) *Bookmark {
	for _, b := range s.bookmarks {
		if b.id == id {
			return b
		}
	}
	return nil
}

func (s *Store) urlTaken(url string, except *Bookmark) bool {
	for _, b := range s.bookmarks {
		if b != except && b.url == url {
			return true
		}
	}
	return false
}

// CreateTag registers name. It reports whether the tag was new.
func (s *Store) CreateTag(name string) bool {
	if name == "" {
		return false
	}
	if !s.tags.insert(name) {
		return false
	}
	s.events.tagCreated.each(func(fn func(string)) { fn(name) })
	s.scheduleSave()
	return true
}

// DeleteTag unregisters name and strips it from every bookmark.
// Deleting a tag that does not exist is a programming error and panics.
func (s *Store) DeleteTag(name string) {
	pos := s.tags.remove(name)
	if pos < 0 {
		panic(fmt.Errorf("delete tag %q: %w", name, ErrTagNotFound))
	}

	s.holdSave++
	for _, b := range s.bookmarks {
		b.RemoveTag(name)
	}
	s.holdSave--

	s.events.tagDeleted.each(func(fn func(TagDeleted)) {
		fn(TagDeleted{Position: pos, Name: name})
	})
	s.scheduleSave()
}

// TagExists reports whether name is registered.
func (s *Store) TagExists(name string) bool {
	return s.tags.Contains(name)
}

// Tags returns the live tag registry.
func (s *Store) Tags() *TagRegistry { return s.tags }

// Bookmarks returns all bookmarks, most recent first, in a new slice.
func (s *Store) Bookmarks() []*Bookmark {
	out := make([]*Bookmark, len(s.bookmarks))
	copy(out, s.bookmarks)
	return out
}

// BookmarksWithTag returns the bookmarks carrying tag, in store order.
// Passing Untagged selects bookmarks that have no tag at all.
func (s *Store) BookmarksWithTag(tag string) []*Bookmark {
	out := make([]*Bookmark, 0)
	for _, b := range s.bookmarks {
		if tag == Untagged {
			if b.Untagged() {
				out = append(out, b)
			}
			continue
		}
		if b.HasTag(tag) {
			out = append(out, b)
		}
	}
	return out
}

// SmartBookmarks returns the search-template bookmarks ordered by title.
func (s *Store) SmartBookmarks() []*Bookmark {
	out := make([]*Bookmark, 0)
	for _, b := range s.bookmarks {
		if b.IsSmart() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return collateStrings(s.collator, out[i].title, out[j].title) < 0
	})
	return out
}

// watch forwards b's change events to the store listeners.
// A bookmark is watched at most once.
func (s *Store) watch(b *Bookmark) {
	if _, ok := s.watches[b]; ok {
		return
	}
	b.owner = s
	s.watches[b] = []*Subscription{
		b.OnTitleChanged(func(b *Bookmark) {
			s.events.titleChanged.each(func(fn func(*Bookmark)) { fn(b) })
			s.scheduleSave()
		}),
		b.OnURLChanged(func(b *Bookmark) {
			s.events.urlChanged.each(func(fn func(*Bookmark)) { fn(b) })
			s.scheduleSave()
		}),
		b.OnTagAdded(func(b *Bookmark, tag string) {
			s.events.tagAdded.each(func(fn func(*Bookmark, string)) { fn(b, tag) })
			s.scheduleSave()
		}),
		b.OnTagRemoved(func(b *Bookmark, tag string) {
			s.events.tagRemoved.each(func(fn func(*Bookmark, string)) { fn(b, tag) })
			s.scheduleSave()
		}),
	}
}

func (s *Store) unwatch(b *Bookmark) {
	subs, ok := s.watches[b]
	if !ok {
		return
	}
	for _, sub := range subs {
		sub.Cancel()
	}
	delete(s.watches, b)
	b.owner = nil
}

func (s *Store) scheduleSave() {
	if s.holdSave > 0 {
		return
	}
	s.SaveAsync(nil)
}
