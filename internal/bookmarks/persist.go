package bookmarks

import (
	"fmt"
	"sort"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Snapshot is the full persisted state of a store.
type Snapshot struct {
	Bookmarks []Record
	Tags      []string

	// Skipped counts entries a codec could not decode. Not written.
	Skipped int
}

// Codec reads and writes a snapshot to a file.
//
// Encode must replace the file atomically. Decode of a missing file returns
// an empty snapshot; on a damaged file it may return both the entries it
// could read and an error.
type Codec interface {
	Encode(path string, snap Snapshot) error
	Decode(path string) (Snapshot, error)
}

// SaveError is reported when writing the bookmarks file fails.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save bookmarks to %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Snapshot returns the current bookmarks and tags as detached values.
func (s *Store) Snapshot() Snapshot {
	records := make([]Record, 0, len(s.bookmarks))
	for _, b := range s.bookmarks {
		records = append(records, b.Record())
	}
	return Snapshot{
		Bookmarks: records,
		Tags:      s.tags.Names(),
	}
}

// Save writes the current state synchronously.
func (s *Store) Save() error {
	s.gen++
	return s.write(s.gen, s.Snapshot())
}

// SaveAsync snapshots the store now and writes it in the background.
// done receives the result through the store's executor; a nil done logs
// failures and otherwise ignores them.
func (s *Store) SaveAsync(done func(error)) {
	if done == nil {
		done = s.logSaveError
	}

	s.gen++
	gen, snap := s.gen, s.Snapshot()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		err := s.write(gen, snap)
		s.exec.Post(func() { done(err) })
	}()
}

// Wait blocks until every save started so far has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

// write encodes snap unless a newer generation already reached the disk.
func (s *Store) write(gen uint64, snap Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if gen < s.written {
		s.log.Debug("skipping stale bookmarks snapshot",
			logger.Int64("generation", int64(gen)))
		return nil
	}
	if err := s.codec.Encode(s.path, snap); err != nil {
		return &SaveError{Path: s.path, Err: err}
	}
	s.written = gen
	return nil
}

func (s *Store) logSaveError(err error) {
	if err != nil {
		s.log.Warn("bookmarks save failed", logger.Error(err))
	}
}

// Load reads the backing file and adds its bookmarks and tags without
// emitting events or saving. Entries without a URL, or repeating a URL or id
// already present, are skipped. A decode error is returned after applying
// whatever the codec managed to read.
func (s *Store) Load() error {
	snap, err := s.codec.Decode(s.path)
	s.apply(snap)
	if err != nil {
		return fmt.Errorf("failed to load bookmarks from %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) apply(snap Snapshot) {
	urls := make(map[string]struct{}, len(s.bookmarks)+len(snap.Bookmarks))
	ids := make(map[string]struct{}, len(s.bookmarks)+len(snap.Bookmarks))
	for _, b := range s.bookmarks {
		urls[b.url] = struct{}{}
		ids[b.id] = struct{}{}
	}

	loaded, skipped := 0, snap.Skipped
	for _, r := range snap.Bookmarks {
		if r.URL == "" {
			skipped++
			continue
		}
		if _, dup := urls[r.URL]; dup {
			skipped++
			continue
		}
		if _, dup := ids[r.ID]; dup && r.ID != "" {
			skipped++
			continue
		}

		b := FromRecord(r)
		urls[b.url] = struct{}{}
		ids[b.id] = struct{}{}
		s.bookmarks = append(s.bookmarks, b)
		s.watch(b)
		loaded++
	}

	sort.SliceStable(s.bookmarks, func(i, j int) bool {
		return compareBookmarks(s.bookmarks[i], s.bookmarks[j]) < 0
	})

	for _, name := range snap.Tags {
		if name != "" {
			s.tags.insert(name)
		}
	}

	s.log.Info("bookmarks loaded",
		logger.String("path", s.path),
		logger.Int("bookmarks", loaded),
		logger.Int("tags", len(snap.Tags)),
		logger.Int("skipped", skipped))
}
