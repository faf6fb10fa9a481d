package bookmarks

import "sync"

// Subscription is the handle returned by every On* registration.
// Cancel detaches the listener; calling it more than once is a no-op.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel removes the listener from its event list.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// TagDeleted is delivered to tag-deleted listeners.
// Position is the ordinal the tag held in the registry before removal.
type TagDeleted struct {
	Position int
	Name     string
}

// listeners is an ordered list of callbacks of one event kind.
// Delivery is synchronous, in registration order.
type listeners[F any] struct {
	nextID  uint64
	entries []listenerEntry[F]
}

type listenerEntry[F any] struct {
	id uint64
	fn F
}

func (l *listeners[F]) add(fn F) *Subscription {
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry[F]{id: id, fn: fn})

	return &Subscription{cancel: func() { l.remove(id) }}
}

func (l *listeners[F]) remove(id uint64) {
	for i, e := range l.entries {
		if e.id == id {
			// Copy so a dispatch already iterating the old slice is unaffected.
			next := make([]listenerEntry[F], 0, len(l.entries)-1)
			next = append(next, l.entries[:i]...)
			next = append(next, l.entries[i+1:]...)
			l.entries = next
			return
		}
	}
}

func (l *listeners[F]) each(call func(F)) {
	for _, e := range l.entries {
		call(e.fn)
	}
}

func (l *listeners[F]) len() int { return len(l.entries) }

// storeEvents holds the eight store-scoped event kinds.
type storeEvents struct {
	added        listeners[func(*Bookmark)]
	removed      listeners[func(*Bookmark)]
	titleChanged listeners[func(*Bookmark)]
	urlChanged   listeners[func(*Bookmark)]
	tagAdded     listeners[func(*Bookmark, string)]
	tagRemoved   listeners[func(*Bookmark, string)]
	tagCreated   listeners[func(string)]
	tagDeleted   listeners[func(TagDeleted)]
}

// OnBookmarkAdded registers fn for bookmark-added.
func (s *Store) OnBookmarkAdded(fn func(*Bookmark)) *Subscription {
	return s.events.added.add(fn)
}

// OnBookmarkRemoved registers fn for bookmark-removed. The bookmark has
// already left the store when fn runs.
func (s *Store) OnBookmarkRemoved(fn func(*Bookmark)) *Subscription {
	return s.events.removed.add(fn)
}

// OnBookmarkTitleChanged registers fn for bookmark-title-changed.
func (s *Store) OnBookmarkTitleChanged(fn func(*Bookmark)) *Subscription {
	return s.events.titleChanged.add(fn)
}

// OnBookmarkURLChanged registers fn for bookmark-url-changed.
func (s *Store) OnBookmarkURLChanged(fn func(*Bookmark)) *Subscription {
	return s.events.urlChanged.add(fn)
}

// OnBookmarkTagAdded registers fn for bookmark-tag-added.
func (s *Store) OnBookmarkTagAdded(fn func(*Bookmark, string)) *Subscription {
	return s.events.tagAdded.add(fn)
}

// OnBookmarkTagRemoved registers fn for bookmark-tag-removed.
func (s *Store) OnBookmarkTagRemoved(fn func(*Bookmark, string)) *Subscription {
	return s.events.tagRemoved.add(fn)
}

// OnTagCreated registers fn for tag-created.
func (s *Store) OnTagCreated(fn func(string)) *Subscription {
	return s.events.tagCreated.add(fn)
}

// OnTagDeleted registers fn for tag-deleted.
func (s *Store) OnTagDeleted(fn func(TagDeleted)) *Subscription {
	return s.events.tagDeleted.add(fn)
}
