package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/chatsync/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustNoEvent fails if an event of kind is queued on ch.
func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		default:
			return
		}
	}
}

// drain empties ch.
func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type fakeChat struct {
	members []string
	unread  int
}

// fakeStore is an in-memory Persistence.
type fakeStore struct {
	mu       sync.Mutex
	chats    map[string]*fakeChat
	messages []*store.Message
	seq      int

	memberCalls int
	createErr   error
	// onCreate runs while CreateMessage holds no lock.
	onCreate func(msg *store.Message)
}

func newFakeStore() *fakeStore {
	return &fakeStore{chats: make(map[string]*fakeChat)}
}

func (s *fakeStore) addChat(id string, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[id] = &fakeChat{members: members}
}

func (s *fakeStore) setMembers(id string, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[id].members = members
}

func (s *fakeStore) unread(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats[id].unread
}

func (s *fakeStore) stored() []*store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*store.Message(nil), s.messages...)
}

func (s *fakeStore) ListMembers(_ context.Context, chatID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberCalls++
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]string(nil), chat.members...), nil
}

func (s *fakeStore) CreateMessage(_ context.Context, msg *store.Message) error {
	if s.onCreate != nil {
		s.onCreate(msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.chats[msg.ChatID]; !ok {
		return store.ErrNotFound
	}
	s.seq++
	msg.ID = fmt.Sprintf("m%d", s.seq)
	msg.CreatedAt = time.Now().UTC()
	cp := *msg
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *fakeStore) IncrementUnread(_ context.Context, chatID string, recipients []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return store.ErrNotFound
	}
	if len(recipients) > 0 {
		chat.unread++
	}
	return nil
}

func (s *fakeStore) ClearUnread(_ context.Context, chatID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return false, store.ErrNotFound
	}
	changed := chat.unread > 0
	chat.unread = 0
	return changed, nil
}

var errDiskFull = errors.New("disk full")

type staticAuth map[string]string

func (a staticAuth) ValidateIdentity(_ context.Context, token string) (string, error) {
	if id, ok := a[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func newTestHub(t *testing.T, st *fakeStore) *Hub {
	t.Helper()
	return NewHub(st, nil, Options{TrustClaimedIdentity: true}, nil, nil)
}

// connect identifies a new connection as userID and drains its handshake events.
func connect(t *testing.T, hub *Hub, userID string) *Connection {
	t.Helper()
	conn := hub.NewConnection()
	if _, err := hub.Identify(context.Background(), conn, userID, ""); err != nil {
		t.Fatalf("identify %s: %v", userID, err)
	}
	drain(conn.Events())
	return conn
}
