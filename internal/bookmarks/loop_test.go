package bookmarks

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLoopRunsInOrder(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		loop.Post(func() { got = append(got, i) })
	}
	if err := loop.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if len(got) != 50 {
		t.Fatalf("ran %d functions, want 50", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("function %d ran at position %d", v, i)
		}
	}
}

func TestLoopPostFromLoopDoesNotBlock(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	ran := make(chan struct{})
	err := loop.Do(context.Background(), func() {
		loop.Post(func() { close(ran) })
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("function posted from the loop never ran")
	}
}

func TestLoopDoHonoursContext(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	release := make(chan struct{})
	loop.Post(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := loop.Do(ctx, func() {})
	close(release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestLoopStopDrainsAndRejects(t *testing.T) {
	loop := NewLoop()

	count := 0
	for i := 0; i < 10; i++ {
		loop.Post(func() { count++ })
	}
	loop.Stop()
	loop.Stop()

	if count != 10 {
		t.Errorf("Stop() drained %d functions, want 10", count)
	}
	if err := loop.Do(context.Background(), func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Errorf("Do() after Stop() error = %v, want ErrLoopStopped", err)
	}
	loop.Post(func() { count++ })
	if count != 10 {
		t.Error("Post() after Stop() ran the function")
	}
}

func TestLoopSerializesStoreAccess(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	s, err := Create(filepath.Join(t.TempDir(), "bookmarks.db"), newMemCodec(), WithExecutor(loop))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer s.Wait()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = loop.Do(context.Background(), func() {
				s.Add(bookmarkAt("https://a.test/"+string(rune('A'+i)), int64(i+1)))
			})
		}(i)
	}
	wg.Wait()

	var n int
	if err := loop.Do(context.Background(), func() { n = s.Len() }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if n != 50 {
		t.Errorf("Len() = %d, want 50", n)
	}
}

func TestSharedReturnsSameStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.db")
	codec := newMemCodec()

	first, err := Shared(path, codec)
	if err != nil {
		t.Fatalf("Shared() error = %v", err)
	}
	second, err := Shared(filepath.Join(t.TempDir(), "other.db"), newMemCodec())
	if err != nil {
		t.Fatalf("Shared() error = %v", err)
	}

	if first != second {
		t.Error("Shared() returned different stores")
	}
	if Current() != first {
		t.Error("Current() did not return the shared store")
	}
	if first.Path() != path {
		t.Errorf("Path() = %q, want %q", first.Path(), path)
	}
}
