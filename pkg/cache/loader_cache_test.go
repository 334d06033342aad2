package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newFormCache(ttl time.Duration) *LoaderCache[uuid.UUID, string] {
	return NewLoaderCache[uuid.UUID, string](10, ttl, uuid.UUID.String)
}

func TestLoaderCache_MissThenHit(t *testing.T) {
	loads := atomic.Int32{}
	c := newFormCache(time.Minute)
	ctx := context.Background()
	id := uuid.New()

	load := func(_ context.Context, key uuid.UUID) (string, error) {
		loads.Add(1)

		return "form-" + key.String(), nil
	}

	v, hit, err := c.GetWithStats(ctx, id, load)
	if err != nil {
		t.Fatal(err)
	}

	if hit {
		t.Error("expected miss")
	}

	if v != "form-"+id.String() {
		t.Errorf("got %q", v)
	}

	_, hit, err = c.GetWithStats(ctx, id, load)
	if err != nil {
		t.Fatal(err)
	}

	if !hit {
		t.Error("expected hit")
	}

	if loads.Load() != 1 {
		t.Errorf("loads = %d", loads.Load())
	}
}

func TestLoaderCache_EntriesExpire(t *testing.T) {
	loads := atomic.Int32{}
	c := newFormCache(20 * time.Millisecond)
	ctx := context.Background()
	id := uuid.New()

	load := func(_ context.Context, _ uuid.UUID) (string, error) {
		loads.Add(1)

		return "v", nil
	}

	_, _ = c.Get(ctx, id, load)

	time.Sleep(60 * time.Millisecond)

	_, hit, err := c.GetWithStats(ctx, id, load)
	if err != nil {
		t.Fatal(err)
	}

	if hit {
		t.Error("expected miss after ttl")
	}

	if loads.Load() != 2 {
		t.Errorf("loads = %d, want 2", loads.Load())
	}
}

func TestLoaderCache_ConcurrentMissesShareResult(t *testing.T) {
	loads := atomic.Int32{}
	c := newFormCache(time.Minute)
	ctx := context.Background()
	id := uuid.New()

	load := func(_ context.Context, _ uuid.UUID) (string, error) {
		loads.Add(1)
		time.Sleep(10 * time.Millisecond)

		return "shared", nil
	}

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := c.Get(ctx, id, load)
			if err != nil {
				t.Error(err)

				return
			}

			if v != "shared" {
				t.Errorf("got %q", v)
			}
		}()
	}

	wg.Wait()

	// Scheduling may let some callers miss the in-flight load; all must still see the value.
	if n := loads.Load(); n < 1 || n > 10 {
		t.Errorf("expected 1-10 loads, got %d", n)
	}
}

func TestLoaderCache_Invalidate(t *testing.T) {
	c := newFormCache(time.Minute)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	load := func(_ context.Context, key uuid.UUID) (string, error) { return key.String(), nil }

	_, _ = c.Get(ctx, a, load)
	_, _ = c.Get(ctx, b, load)

	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}

	c.Invalidate(a)

	if _, hit, _ := c.GetWithStats(ctx, a, load); hit {
		t.Error("expected miss after Invalidate")
	}

	c.InvalidateAll()

	if c.Len() != 0 {
		t.Errorf("Len = %d after InvalidateAll", c.Len())
	}
}

func TestLoaderCache_LoadErrorNotCached(t *testing.T) {
	c := newFormCache(time.Minute)
	ctx := context.Background()
	loadErr := errors.New("form not found")

	_, err := c.Get(ctx, uuid.New(), func(_ context.Context, _ uuid.UUID) (string, error) {
		return "", loadErr
	})
	if !errors.Is(err, loadErr) {
		t.Errorf("got err %v", err)
	}

	if c.Len() != 0 {
		t.Error("failed load should not be cached")
	}
}

func TestLoaderCache_InvalidateDuringLoadDiscardsResult(t *testing.T) {
	c := newFormCache(time.Minute)
	ctx := context.Background()
	id := uuid.New()

	started := make(chan struct{})
	release := make(chan struct{})

	slowLoad := func(_ context.Context, _ uuid.UUID) (string, error) {
		close(started)
		<-release

		return "old title", nil
	}

	done := make(chan string, 1)

	go func() {
		v, _ := c.Get(ctx, id, slowLoad)
		done <- v
	}()

	<-started
	c.Invalidate(id)

	fresh, hit, err := c.GetWithStats(ctx, id, func(_ context.Context, _ uuid.UUID) (string, error) {
		return "new title", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if hit || fresh != "new title" {
		t.Errorf("got %q hit=%v, want a fresh load after Invalidate", fresh, hit)
	}

	close(release)

	if v := <-done; v != "old title" {
		t.Errorf("in-flight caller got %q", v)
	}

	v, hit, err := c.GetWithStats(ctx, id, func(_ context.Context, _ uuid.UUID) (string, error) {
		return "reloaded", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if !hit || v != "new title" {
		t.Errorf("got %q hit=%v, want the post-invalidate value from cache", v, hit)
	}
}
