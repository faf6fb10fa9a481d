package redis

import "fmt"

const (
	// KeyPrefixBookmark is the prefix for bookmark keys
	KeyPrefixBookmark = "marks:bookmark:"
	// KeyAllBookmarks is the key for the set of all bookmark IDs
	KeyAllBookmarks = "marks:bookmarks:all"
	// KeyTags is the key for the ordered list of tag names
	KeyTags = "marks:tags"
)

// BookmarkKey returns the Redis key for a bookmark
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// AllBookmarksKey returns the Redis key for the set of all bookmarks
func AllBookmarksKey() string {
	return KeyAllBookmarks
}

// TagsKey returns the Redis key for the tag list
func TagsKey() string {
	return KeyTags
}

// ExtractBookmarkID extracts the bookmark ID from a Redis key
func ExtractBookmarkID(key string) (string, error) {
	if len(key) <= len(KeyPrefixBookmark) || key[:len(KeyPrefixBookmark)] != KeyPrefixBookmark {
		return "", fmt.Errorf("invalid bookmark key: %s", key)
	}
	return key[len(KeyPrefixBookmark):], nil
}
