package kvfile

import (
	"fmt"
	"strings"
)

const (
	// KeyPrefixBookmark is the prefix for bookmark entries
	KeyPrefixBookmark = "bookmark:"
	// KeyTags holds the JSON array of registered tags
	KeyTags = "tags"
	// KeyVersion holds the container format version
	KeyVersion = "version"

	// FormatVersion is written to KeyVersion
	FormatVersion = "1"
)

// BookmarkKey returns the container key for a bookmark by ID
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// IsBookmarkKey reports whether key holds a bookmark entry
func IsBookmarkKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefixBookmark)
}

// ExtractBookmarkID extracts the bookmark ID from a container key
func ExtractBookmarkID(key string) (string, error) {
	if !IsBookmarkKey(key) || len(key) == len(KeyPrefixBookmark) {
		return "", fmt.Errorf("invalid bookmark key: %s", key)
	}
	return key[len(KeyPrefixBookmark):], nil
}
