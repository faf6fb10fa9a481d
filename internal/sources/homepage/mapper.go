package homepage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
)

// Result is the outcome of mapping a bookmarks.yaml file.
type Result struct {
	Bookmarks []*bookmarks.Bookmark
	// Tags lists the category names, in file order.
	Tags []string
}

// Mapper converts Homepage bookmark config to store bookmarks
type Mapper struct {
	now func() time.Time
}

// NewMapper creates a new bookmark mapper
func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

// Map converts a Config into bookmarks. Each category becomes a tag on its
// bookmarks. Entries keep file order: the first one gets the most recent
// time added, one microsecond apart.
func (m *Mapper) Map(config Config) (Result, error) {
	var res Result
	seenTags := make(map[string]struct{})
	base := m.now().UnixMicro()

	for _, category := range config {
		// yaml maps lose key order; keep output deterministic
		names := make([]string, 0, len(category))
		for name := range category {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, categoryName := range names {
			if _, ok := seenTags[categoryName]; !ok && categoryName != "" {
				seenTags[categoryName] = struct{}{}
				res.Tags = append(res.Tags, categoryName)
			}

			for _, entryMap := range category[categoryName] {
				for bookmarkName, entries := range entryMap {
					// Each bookmark has a list with a single entry
					if len(entries) == 0 {
						continue
					}
					entry := entries[0]

					if entry.Href == "" {
						continue
					}

					title := bookmarkName
					if title == "" {
						title = entry.Abbr
					}

					var tags []string
					if categoryName != "" {
						tags = []string{categoryName}
					}

					res.Bookmarks = append(res.Bookmarks, bookmarks.FromRecord(bookmarks.Record{
						ID:        generateBookmarkID(entry.Href),
						URL:       entry.Href,
						Title:     title,
						TimeAdded: base - int64(len(res.Bookmarks)),
						Tags:      tags,
					}))
				}
			}
		}
	}

	if len(res.Bookmarks) == 0 {
		return Result{}, fmt.Errorf("no valid bookmarks found in config")
	}

	return res, nil
}

// generateBookmarkID creates a stable ID from a URL using SHA-256,
// so re-importing the same file yields the same ids.
func generateBookmarkID(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])[:16]
}

// IsImported reports whether b carries the id an import of its URL would
// give it.
func IsImported(b *bookmarks.Bookmark) bool {
	return b.ID() == generateBookmarkID(b.URL())
}
