// Package kvfile stores bookmarks in a single binary key-value container:
// a SQLite database file holding one kv_store table.
package kvfile

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// entry is the JSON value stored under a bookmark key.
type entry struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	TimeAdded int64    `json:"time_added"`
	Tags      []string `json:"tags"`
}

// Codec implements bookmarks.Codec.
type Codec struct{}

// New creates a codec.
func New() *Codec {
	return &Codec{}
}

// Encode writes snap to a temporary file next to path and renames it over
// path, so readers never see a partially written container.
func (c *Codec) Encode(path string, snap bookmarks.Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpPath)
			_ = os.Remove(tmpPath + "-journal")
		}
	}()

	if err := writeContainer(tmpPath, snap); err != nil {
		return err
	}
	if err := syncFile(tmpPath); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	renamed = true
	return nil
}

func writeContainer(path string, snap bookmarks.Snapshot) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite %q: %w", path, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sqlite %q: %w", path, cerr)
		}
	}()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare("INSERT INTO kv_store (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer utils.Close(stmt)

	if _, err := stmt.Exec(KeyVersion, []byte(FormatVersion)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}

	tags := snap.Tags
	if tags == nil {
		tags = []string{}
	}
	tagData, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	if _, err := stmt.Exec(KeyTags, tagData); err != nil {
		return fmt.Errorf("write tags: %w", err)
	}

	for _, r := range snap.Bookmarks {
		data, err := json.Marshal(entry{
			ID:        r.ID,
			URL:       r.URL,
			Title:     r.Title,
			TimeAdded: r.TimeAdded,
			Tags:      r.Tags,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal bookmark %s: %w", r.ID, err)
		}
		if _, err := stmt.Exec(BookmarkKey(r.ID), data); err != nil {
			return fmt.Errorf("write bookmark %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s for sync: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return f.Close()
}

// Decode reads the container at path. A missing file is an empty snapshot.
// Entries that fail to decode are counted in Snapshot.Skipped and the rest
// are still returned.
func (c *Codec) Decode(path string) (bookmarks.Snapshot, error) {
	var snap bookmarks.Snapshot

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return snap, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	defer utils.Close(db)

	rows, err := db.Query("SELECT key, value FROM kv_store ORDER BY key")
	if err != nil {
		return snap, fmt.Errorf("failed to read kv store: %w", err)
	}
	defer utils.Close(rows)

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			snap.Skipped++
			continue
		}

		switch {
		case key == KeyTags:
			var tags []string
			if err := json.Unmarshal(value, &tags); err != nil {
				snap.Skipped++
				continue
			}
			snap.Tags = tags

		case IsBookmarkKey(key):
			id, err := ExtractBookmarkID(key)
			if err != nil {
				snap.Skipped++
				continue
			}
			var e entry
			if err := json.Unmarshal(value, &e); err != nil {
				snap.Skipped++
				continue
			}
			if e.ID == "" {
				e.ID = id
			}
			snap.Bookmarks = append(snap.Bookmarks, bookmarks.Record{
				ID:        e.ID,
				URL:       e.URL,
				Title:     e.Title,
				TimeAdded: e.TimeAdded,
				Tags:      e.Tags,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("failed to iterate kv store: %w", err)
	}

	return snap, nil
}
