package search

import (
	"errors"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
)

// ErrNotSmart is returned when expanding a URL without a query placeholder.
var ErrNotSmart = errors.New("url has no search placeholder")

// ExpandSmart replaces every search placeholder in rawURL with the
// URL-escaped query.
func ExpandSmart(rawURL, query string) (string, error) {
	if !strings.Contains(rawURL, bookmarks.SmartPlaceholder) {
		return "", ErrNotSmart
	}
	return strings.ReplaceAll(rawURL, bookmarks.SmartPlaceholder, url.QueryEscape(query)), nil
}
