package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMembershipCacheHitsUntilInvalidated(t *testing.T) {
	st := newFakeStore()
	st.addChat("c1", "A", "B")
	cache := NewMembershipCache(st, time.Minute, time.Second, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := cache.MembersOf(ctx, "c1")
		if err != nil {
			t.Fatalf("members: %v", err)
		}
		if !m.Has("A") || !m.Has("B") || m.Has("C") {
			t.Fatalf("members = %v", m.IDs())
		}
	}
	if st.memberCalls != 1 {
		t.Fatalf("store calls = %d, want 1", st.memberCalls)
	}

	st.setMembers("c1", "A", "C")
	cache.Invalidate("c1")
	m, _ := cache.MembersOf(ctx, "c1")
	if m.Has("B") || !m.Has("C") {
		t.Fatalf("members after invalidate = %v", m.IDs())
	}
}

func TestMembershipCacheExpires(t *testing.T) {
	st := newFakeStore()
	st.addChat("c1", "A")
	cache := NewMembershipCache(st, 20*time.Millisecond, time.Second, nil, nil)

	cache.MembersOf(context.Background(), "c1")
	time.Sleep(40 * time.Millisecond)
	cache.MembersOf(context.Background(), "c1")
	if st.memberCalls != 2 {
		t.Fatalf("store calls = %d, want 2", st.memberCalls)
	}
}

func TestMembershipCacheUnknownChat(t *testing.T) {
	cache := NewMembershipCache(newFakeStore(), time.Minute, time.Second, nil, nil)
	_, err := cache.MembersOf(context.Background(), "missing")
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected chat not found, got %v", err)
	}
}

type failingLoader struct{ *fakeStore }

func (f *failingLoader) ListMembers(context.Context, string) ([]string, error) {
	return nil, errDiskFull
}

func TestMembershipCacheLoadFailure(t *testing.T) {
	cache := NewMembershipCache(&failingLoader{newFakeStore()}, time.Minute, time.Second, nil, nil)
	_, err := cache.MembersOf(context.Background(), "c1")
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errDiskFull) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatal("failures must not be cached")
	}
}

// blockingLoader holds ListMembers until release is closed.
type blockingLoader struct {
	*fakeStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLoader) ListMembers(ctx context.Context, chatID string) ([]string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeStore.ListMembers(ctx, chatID)
}

func TestMembershipCacheStaleFetchDoesNotRepopulate(t *testing.T) {
	loader := &blockingLoader{
		fakeStore: newFakeStore(),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	loader.addChat("c1", "A")
	cache := NewMembershipCache(loader, time.Minute, time.Second, nil, nil)

	done := make(chan struct{})
	go func() {
		cache.MembersOf(context.Background(), "c1")
		close(done)
	}()
	<-loader.started
	cache.Invalidate("c1")
	close(loader.release)
	<-done

	if cache.Len() != 0 {
		t.Fatal("fetch that raced an invalidation must not be cached")
	}
}

func TestMembershipCacheSharesConcurrentMisses(t *testing.T) {
	loader := &blockingLoader{
		fakeStore: newFakeStore(),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	loader.addChat("c1", "A")
	cache := NewMembershipCache(loader, time.Minute, time.Second, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.MembersOf(context.Background(), "c1"); err != nil {
				t.Errorf("members: %v", err)
			}
		}()
	}
	<-loader.started
	time.Sleep(20 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	if loader.memberCalls != 1 {
		t.Fatalf("store calls = %d, want 1", loader.memberCalls)
	}
}

var _ Persistence = (*fakeStore)(nil)

func TestMembershipCacheReleasesFetchState(t *testing.T) {
	loader := &blockingLoader{
		fakeStore: newFakeStore(),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	loader.addChat("c1", "A")
	cache := NewMembershipCache(loader, time.Minute, time.Second, nil, nil)

	done := make(chan struct{})
	go func() {
		cache.MembersOf(context.Background(), "c1")
		close(done)
	}()
	<-loader.started
	if cache.pendingFetches() != 1 {
		t.Fatalf("pending fetches = %d, want 1", cache.pendingFetches())
	}
	close(loader.release)
	<-done

	for i := 0; i < 50; i++ {
		chatID := fmt.Sprintf("gone-%d", i)
		cache.Invalidate(chatID)
		cache.MembersOf(context.Background(), chatID)
	}
	if n := cache.pendingFetches(); n != 0 {
		t.Fatalf("pending fetches = %d, want 0", n)
	}
}

func TestMembershipCacheRunEvictsAndStops(t *testing.T) {
	st := newFakeStore()
	st.addChat("c1", "A")
	cache := NewMembershipCache(st, 20*time.Millisecond, time.Second, nil, nil)

	// An already cancelled context returns without leaving work behind.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	returned := make(chan struct{})
	go func() {
		cache.Run(cancelled)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for a cancelled context")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go cache.Run(ctx)

	cache.MembersOf(context.Background(), "c1")
	deadline := time.Now().Add(time.Second)
	for cache.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired entry was not evicted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
