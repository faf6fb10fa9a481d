package bookmarks

import (
	"sync"
	"sync/atomic"
)

var (
	sharedOnce  sync.Once
	sharedStore atomic.Pointer[Store]
	sharedErr   error
)

// Shared returns the process-wide store, creating it on the first call.
// Later calls return the same store (or the same creation error) and ignore
// their arguments.
func Shared(path string, codec Codec, opts ...Option) (*Store, error) {
	sharedOnce.Do(func() {
		var s *Store
		s, sharedErr = Create(path, codec, opts...)
		if s != nil {
			sharedStore.Store(s)
		}
	})
	return sharedStore.Load(), sharedErr
}

// Current returns the store created by Shared, or nil before that.
func Current() *Store {
	return sharedStore.Load()
}
