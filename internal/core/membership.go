package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vovakirdan/chatsync/internal/metrics"
	"github.com/vovakirdan/chatsync/internal/store"
)

// Members is an immutable set of member ids.
type Members map[string]struct{}

func newMembers(ids []string) Members {
	m := make(Members, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// Has reports whether userID is in the set.
func (m Members) Has(userID string) bool {
	_, ok := m[userID]
	return ok
}

// IDs returns the sorted member ids.
func (m Members) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MembershipCache keeps chat member sets for at most ttl. Concurrent misses
// for one chat share a single fetch.
type MembershipCache struct {
	loader  Persistence
	cache   *ttlcache.Cache[string, Members]
	group   singleflight.Group
	timeout time.Duration
	ttl     time.Duration
	metrics *metrics.Recorder
	log     *zerolog.Logger

	// fetches tracks in-flight loads per chat. Invalidate bumps the epoch so a
	// load that started before it never repopulates the cache. Entries are
	// removed when the last load of a chat finishes.
	mu      sync.Mutex
	fetches map[string]*fetchState
}

type fetchState struct {
	epoch    uint64
	inflight int
}

// NewMembershipCache creates a cache backed by loader.
func NewMembershipCache(loader Persistence, ttl, timeout time.Duration, rec *metrics.Recorder, logger *zerolog.Logger) *MembershipCache {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &MembershipCache{
		loader: loader,
		cache: ttlcache.New[string, Members](
			ttlcache.WithTTL[string, Members](ttl),
			ttlcache.WithDisableTouchOnHit[string, Members](),
		),
		timeout: timeout,
		ttl:     ttl,
		metrics: rec,
		log:     logger,
		fetches: make(map[string]*fetchState),
	}
}

// Run evicts expired entries every ttl until ctx is done. Lookups never
// return expired entries whether or not Run is active.
func (c *MembershipCache) Run(ctx context.Context) {
	if c.ttl <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cache.DeleteExpired()
		}
	}
}

// MembersOf returns the member set of a chat, loading it on miss or expiry.
func (c *MembershipCache) MembersOf(ctx context.Context, chatID string) (Members, error) {
	if chatID == "" {
		return nil, validationError("chat id is required")
	}
	if item := c.cache.Get(chatID); item != nil {
		c.metrics.CacheLookup(true)
		return item.Value(), nil
	}
	c.metrics.CacheLookup(false)

	v, err, _ := c.group.Do(chatID, func() (any, error) {
		state, epoch := c.beginFetch(chatID)

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		ids, err := c.loader.ListMembers(fetchCtx, chatID)
		if err != nil {
			c.endFetch(chatID, state, epoch, nil)
			return nil, err
		}
		members := newMembers(ids)
		c.endFetch(chatID, state, epoch, members)
		return members, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, chatNotFoundError(chatID)
		}
		c.log.Warn().Err(err).Str("chat_id", chatID).Msg("load chat members")
		return nil, persistenceError("load members", err)
	}
	return v.(Members), nil
}

// Invalidate drops the cached set so the next lookup reads persistence.
func (c *MembershipCache) Invalidate(chatID string) {
	c.mu.Lock()
	if state, ok := c.fetches[chatID]; ok {
		state.epoch++
	}
	c.cache.Delete(chatID)
	c.mu.Unlock()
	c.group.Forget(chatID)
	c.log.Debug().Str("chat_id", chatID).Msg("membership invalidated")
}

// Len returns the number of cached chats.
func (c *MembershipCache) Len() int {
	return c.cache.Len()
}

func (c *MembershipCache) beginFetch(chatID string) (*fetchState, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.fetches[chatID]
	if !ok {
		state = &fetchState{}
		c.fetches[chatID] = state
	}
	state.inflight++
	return state, state.epoch
}

// endFetch stores members unless an invalidation happened since beginFetch.
// A nil members only releases the fetch.
func (c *MembershipCache) endFetch(chatID string, state *fetchState, epoch uint64, members Members) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if members != nil && state.epoch == epoch {
		c.cache.Set(chatID, members, ttlcache.DefaultTTL)
	}
	state.inflight--
	if state.inflight == 0 {
		delete(c.fetches, chatID)
	}
}

func (c *MembershipCache) pendingFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fetches)
}
