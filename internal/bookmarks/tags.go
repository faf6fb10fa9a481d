package bookmarks

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// FavoritesTag is the built-in tag seeded into every store. It always sorts first.
const FavoritesTag = "Favorites"

// Untagged selects bookmarks without any tag in BookmarksWithTag.
const Untagged = ""

func newCollator() *collate.Collator {
	return collate.New(language.Und)
}

// collateStrings compares with the collator and falls back to byte order,
// so two different strings never compare equal.
func collateStrings(c *collate.Collator, a, b string) int {
	if r := c.CompareString(a, b); r != 0 {
		return r
	}
	return strings.Compare(a, b)
}

// TagRegistry is the sorted, duplicate-free set of tag names known to a store.
// It is advisory: bookmarks may carry tags that are not registered.
type TagRegistry struct {
	names    []string
	collator *collate.Collator
}

func newTagRegistry() *TagRegistry {
	return &TagRegistry{collator: newCollator()}
}

func (r *TagRegistry) compare(a, b string) int {
	if a == b {
		return 0
	}
	if a == FavoritesTag {
		return -1
	}
	if b == FavoritesTag {
		return 1
	}
	return collateStrings(r.collator, a, b)
}

// search returns the insertion point for name, after any equal element.
func (r *TagRegistry) search(name string) int {
	return sort.Search(len(r.names), func(i int) bool {
		return r.compare(r.names[i], name) > 0
	})
}

// insert adds name unless its sorted predecessor already equals it.
func (r *TagRegistry) insert(name string) bool {
	pos := r.search(name)
	if pos > 0 && r.names[pos-1] == name {
		return false
	}
	r.names = append(r.names, "")
	copy(r.names[pos+1:], r.names[pos:])
	r.names[pos] = name
	return true
}

// remove deletes name and returns its former position, or -1.
func (r *TagRegistry) remove(name string) int {
	pos := r.Position(name)
	if pos < 0 {
		return -1
	}
	r.names = append(r.names[:pos], r.names[pos+1:]...)
	return pos
}

// Position returns the ordinal of name, or -1 when absent.
func (r *TagRegistry) Position(name string) int {
	pos := r.search(name)
	if pos > 0 && r.names[pos-1] == name {
		return pos - 1
	}
	return -1
}

// Contains reports whether name is registered.
func (r *TagRegistry) Contains(name string) bool {
	return r.Position(name) >= 0
}

// Names returns a copy of the registered names in order.
func (r *TagRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered tags.
func (r *TagRegistry) Len() int { return len(r.names) }
