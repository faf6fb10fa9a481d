package bookmarks

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SmartPlaceholder marks the query slot of a smart (search) bookmark URL.
const SmartPlaceholder = "%s"

// ErrDuplicateURL is returned by SetURL when another bookmark of the same
// store already uses the URL.
var ErrDuplicateURL = errors.New("bookmark with this url already exists")

// Record is a detached, immutable view of a bookmark.
// It is what persistence codecs read and write.
type Record struct {
	ID        string
	URL       string
	Title     string
	TimeAdded int64 // microseconds since the Unix epoch
	Tags      []string
}

// urlOwner is implemented by the store holding a bookmark.
type urlOwner interface {
	urlTaken(url string, except *Bookmark) bool
}

// Bookmark is a saved URL with a title, a creation time and a tag set.
//
// A bookmark is handed to a Store, which keeps it and forwards its change
// events. Like the store, a bookmark is not safe for concurrent use.
type Bookmark struct {
	id        string
	url       string
	title     string
	timeAdded int64
	tags      map[string]struct{}

	owner urlOwner

	titleChanged listeners[func(*Bookmark)]
	urlChanged   listeners[func(*Bookmark)]
	tagAdded     listeners[func(*Bookmark, string)]
	tagRemoved   listeners[func(*Bookmark, string)]
}

// NewBookmark creates a bookmark with a fresh id and the current time.
func NewBookmark(url, title string, tags ...string) *Bookmark {
	return FromRecord(Record{
		ID:        uuid.NewString(),
		URL:       url,
		Title:     title,
		TimeAdded: time.Now().UnixMicro(),
		Tags:      tags,
	})
}

// FromRecord rebuilds a bookmark from a record, e.g. when loading or importing.
// An empty ID is replaced with a fresh one.
func FromRecord(r Record) *Bookmark {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	b := &Bookmark{
		id:        id,
		url:       r.URL,
		title:     r.Title,
		timeAdded: r.TimeAdded,
		tags:      make(map[string]struct{}, len(r.Tags)),
	}
	for _, t := range r.Tags {
		if t != "" {
			b.tags[t] = struct{}{}
		}
	}
	return b
}

func (b *Bookmark) ID() string       { return b.id }
func (b *Bookmark) URL() string      { return b.url }
func (b *Bookmark) Title() string    { return b.title }
func (b *Bookmark) TimeAdded() int64 { return b.timeAdded }

// IsSmart reports whether the URL is a parameterized search template.
func (b *Bookmark) IsSmart() bool {
	return strings.Contains(b.url, SmartPlaceholder)
}

// Tags returns the tag names in byte order.
func (b *Bookmark) Tags() []string {
	tags := make([]string, 0, len(b.tags))
	for t := range b.tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// HasTag reports whether the bookmark carries tag.
func (b *Bookmark) HasTag(tag string) bool {
	_, ok := b.tags[tag]
	return ok
}

// Untagged reports whether the tag set is empty.
func (b *Bookmark) Untagged() bool { return len(b.tags) == 0 }

// Record returns a snapshot of the bookmark.
func (b *Bookmark) Record() Record {
	return Record{
		ID:        b.id,
		URL:       b.url,
		Title:     b.title,
		TimeAdded: b.timeAdded,
		Tags:      b.Tags(),
	}
}

// SetTitle changes the title and notifies title listeners.
func (b *Bookmark) SetTitle(title string) {
	if title == b.title {
		return
	}
	b.title = title
	b.titleChanged.each(func(fn func(*Bookmark)) { fn(b) })
}

// SetURL changes the URL. When the bookmark belongs to a store, the new URL
// must not be used by any other bookmark of that store.
func (b *Bookmark) SetURL(url string) error {
	if url == b.url {
		return nil
	}
	if b.owner != nil && b.owner.urlTaken(url, b) {
		return ErrDuplicateURL
	}
	b.url = url
	b.urlChanged.each(func(fn func(*Bookmark)) { fn(b) })
	return nil
}

// AddTag adds tag to the set. Empty names and tags already present are ignored.
func (b *Bookmark) AddTag(tag string) {
	if tag == "" || b.HasTag(tag) {
		return
	}
	b.tags[tag] = struct{}{}
	b.tagAdded.each(func(fn func(*Bookmark, string)) { fn(b, tag) })
}

// RemoveTag removes tag from the set if present.
func (b *Bookmark) RemoveTag(tag string) {
	if !b.HasTag(tag) {
		return
	}
	delete(b.tags, tag)
	b.tagRemoved.each(func(fn func(*Bookmark, string)) { fn(b, tag) })
}

func (b *Bookmark) OnTitleChanged(fn func(*Bookmark)) *Subscription {
	return b.titleChanged.add(fn)
}

func (b *Bookmark) OnURLChanged(fn func(*Bookmark)) *Subscription {
	return b.urlChanged.add(fn)
}

func (b *Bookmark) OnTagAdded(fn func(*Bookmark, string)) *Subscription {
	return b.tagAdded.add(fn)
}

func (b *Bookmark) OnTagRemoved(fn func(*Bookmark, string)) *Subscription {
	return b.tagRemoved.add(fn)
}

// compareBookmarks orders by time added, most recent first.
func compareBookmarks(a, b *Bookmark) int {
	switch {
	case a.timeAdded > b.timeAdded:
		return -1
	case a.timeAdded < b.timeAdded:
		return 1
	default:
		return 0
	}
}
