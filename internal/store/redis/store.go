// Package redis mirrors the bookmark store into Redis so other processes
// can read bookmarks without opening the bookmarks file.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
)

// ErrNotFound is returned when a bookmark is not in Redis.
var ErrNotFound = errors.New("bookmark not found")

// bookmarkValue is the JSON stored under a bookmark key.
type bookmarkValue struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	TimeAdded int64    `json:"time_added"`
	Tags      []string `json:"tags,omitempty"`
}

func encodeRecord(r bookmarks.Record) ([]byte, error) {
	return json.Marshal(bookmarkValue{
		ID:        r.ID,
		URL:       r.URL,
		Title:     r.Title,
		TimeAdded: r.TimeAdded,
		Tags:      r.Tags,
	})
}

// Store handles Redis operations for the bookmark mirror
type Store struct {
	client redis.Cmdable
}

// NewStore creates a new Redis store
func NewStore(client redis.Cmdable) *Store {
	return &Store{
		client: client,
	}
}

// SaveBookmark stores a bookmark in Redis
func (s *Store) SaveBookmark(ctx context.Context, r bookmarks.Record) error {
	data, err := encodeRecord(r)
	if err != nil {
		return fmt.Errorf("failed to marshal bookmark: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, BookmarkKey(r.ID), data, 0)
	pipe.SAdd(ctx, AllBookmarksKey(), r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save bookmark: %w", err)
	}

	return nil
}

// SaveBookmarksMany stores multiple bookmarks in Redis (bulk operation)
func (s *Store) SaveBookmarksMany(ctx context.Context, records []bookmarks.Record) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, r := range records {
		data, err := encodeRecord(r)
		if err != nil {
			return fmt.Errorf("failed to marshal bookmark %s: %w", r.ID, err)
		}
		pipe.Set(ctx, BookmarkKey(r.ID), data, 0)
		pipe.SAdd(ctx, AllBookmarksKey(), r.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save bookmarks: %w", err)
	}

	return nil
}

// GetBookmark retrieves a bookmark from Redis by ID
func (s *Store) GetBookmark(ctx context.Context, id string) (bookmarks.Record, error) {
	data, err := s.client.Get(ctx, BookmarkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return bookmarks.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bookmarks.Record{}, fmt.Errorf("failed to get bookmark: %w", err)
	}

	var v bookmarkValue
	if err := json.Unmarshal(data, &v); err != nil {
		return bookmarks.Record{}, fmt.Errorf("failed to unmarshal bookmark: %w", err)
	}

	return bookmarks.Record{
		ID:        v.ID,
		URL:       v.URL,
		Title:     v.Title,
		TimeAdded: v.TimeAdded,
		Tags:      v.Tags,
	}, nil
}

// GetAllBookmarks retrieves all bookmarks from Redis. Entries that cannot
// be read are skipped.
func (s *Store) GetAllBookmarks(ctx context.Context) ([]bookmarks.Record, error) {
	ids, err := s.client.SMembers(ctx, AllBookmarksKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark IDs: %w", err)
	}

	records := make([]bookmarks.Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetBookmark(ctx, id)
		if err != nil {
			continue
		}
		records = append(records, r)
	}

	return records, nil
}

// DeleteBookmark removes a bookmark from Redis
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, BookmarkKey(id))
	pipe.SRem(ctx, AllBookmarksKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	return nil
}

// SaveTags replaces the mirrored tag list
func (s *Store) SaveTags(ctx context.Context, tags []string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, TagsKey())
	if len(tags) > 0 {
		values := make([]interface{}, len(tags))
		for i, t := range tags {
			values[i] = t
		}
		pipe.RPush(ctx, TagsKey(), values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save tags: %w", err)
	}

	return nil
}

// GetTags returns the mirrored tag list, in store order
func (s *Store) GetTags(ctx context.Context) ([]string, error) {
	tags, err := s.client.LRange(ctx, TagsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	return tags, nil
}

// Replace makes the mirror match snap: bookmarks missing from snap are
// deleted, the others written. It returns the number of deleted bookmarks.
func (s *Store) Replace(ctx context.Context, snap bookmarks.Snapshot) (int, error) {
	existing, err := s.client.SMembers(ctx, AllBookmarksKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get bookmark IDs: %w", err)
	}

	keep := make(map[string]struct{}, len(snap.Bookmarks))
	for _, r := range snap.Bookmarks {
		keep[r.ID] = struct{}{}
	}

	deleted := 0
	for _, id := range existing {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := s.DeleteBookmark(ctx, id); err != nil {
			return deleted, err
		}
		deleted++
	}

	if err := s.SaveBookmarksMany(ctx, snap.Bookmarks); err != nil {
		return deleted, err
	}
	if err := s.SaveTags(ctx, snap.Tags); err != nil {
		return deleted, err
	}

	return deleted, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
