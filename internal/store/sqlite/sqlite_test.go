package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/vovakirdan/chatsync/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedChat(t *testing.T, s *SQLiteStore, id string, members ...string) {
	t.Helper()

	if err := s.CreateChat(context.Background(), &store.Chat{ID: id, Members: members}); err != nil {
		t.Fatalf("failed to create chat %s: %v", id, err)
	}
}

func TestCreateMessageAssignsDurableID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "A", "B")

	msg := &store.Message{ChatID: "c1", SenderID: "A", Text: "hi"}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be assigned, got %+v", msg)
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Text != "hi" || got.SenderID != "A" || got.Read {
		t.Fatalf("unexpected stored message: %+v", got)
	}

	chat, err := s.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.LastMessageID == nil || *chat.LastMessageID != msg.ID {
		t.Fatalf("expected last message to be %s, got %v", msg.ID, chat.LastMessageID)
	}
}

func TestCreateMessageUnknownChat(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateMessage(context.Background(), &store.Message{ChatID: "ghost", SenderID: "A", Text: "hi"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	msgs, err := s.ListMessages(context.Background(), "ghost", 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no durable record, got %d", len(msgs))
	}
}

func TestListMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "A", "B")

	members, err := s.ListMembers(ctx, "c1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}

	if err := s.AddMember(ctx, "c1", "C"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := s.RemoveMember(ctx, "c1", "A"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	members, err = s.ListMembers(ctx, "c1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 || members[0] != "B" || members[1] != "C" {
		t.Fatalf("unexpected members after change: %v", members)
	}

	if _, err := s.ListMembers(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown chat, got %v", err)
	}
}

func TestClearUnreadIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "A", "B")

	msg := &store.Message{ChatID: "c1", SenderID: "A", Text: "hi"}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if err := s.IncrementUnread(ctx, "c1", []string{"B"}); err != nil {
		t.Fatalf("increment unread: %v", err)
	}

	chat, err := s.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.UnreadCount != 1 {
		t.Fatalf("expected unread 1, got %d", chat.UnreadCount)
	}

	changed, err := s.ClearUnread(ctx, "c1")
	if err != nil {
		t.Fatalf("clear unread: %v", err)
	}
	if !changed {
		t.Fatalf("expected first clear to change state")
	}

	changed, err = s.ClearUnread(ctx, "c1")
	if err != nil {
		t.Fatalf("second clear unread: %v", err)
	}
	if changed {
		t.Fatalf("expected second clear to be a no-op")
	}

	chat, err = s.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.UnreadCount != 0 {
		t.Fatalf("expected unread 0, got %d", chat.UnreadCount)
	}
	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if !got.Read {
		t.Fatalf("expected message to be marked read")
	}

	if _, err := s.ClearUnread(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementUnreadWithoutRecipients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "solo", "A")

	if err := s.IncrementUnread(ctx, "solo", nil); err != nil {
		t.Fatalf("increment unread: %v", err)
	}
	chat, err := s.GetChat(ctx, "solo")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.UnreadCount != 0 {
		t.Fatalf("expected unread to stay 0, got %d", chat.UnreadCount)
	}
}

func TestListMessagesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "A", "B")

	var ids []string
	for _, text := range []string{"one", "two", "three", "four"} {
		msg := &store.Message{ChatID: "c1", SenderID: "A", Text: text}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("create message: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	tests := []struct {
		name     string
		limit    int
		beforeID *string
		expected []string
	}{
		{name: "latest two", limit: 2, expected: []string{"three", "four"}},
		{name: "before third", limit: 10, beforeID: &ids[2], expected: []string{"one", "two"}},
		{name: "before first", limit: 10, beforeID: &ids[0], expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := s.ListMessages(ctx, "c1", tt.limit, tt.beforeID)
			if err != nil {
				t.Fatalf("list messages: %v", err)
			}
			if len(msgs) != len(tt.expected) {
				t.Fatalf("expected %d messages, got %d", len(tt.expected), len(msgs))
			}
			for i, msg := range msgs {
				if msg.Text != tt.expected[i] {
					t.Errorf("expected %s at index %d, got %s", tt.expected[i], i, msg.Text)
				}
			}
		})
	}
}

func TestListMessagesUnknownCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "A", "B")
	seedChat(t, s, "c2", "A", "B")

	other := &store.Message{ChatID: "c2", SenderID: "A", Text: "elsewhere"}
	if err := s.CreateMessage(ctx, other); err != nil {
		t.Fatalf("create message: %v", err)
	}

	for name, cursor := range map[string]string{"unknown id": "no-such-message", "other chat": other.ID} {
		t.Run(name, func(t *testing.T) {
			if _, err := s.ListMessages(ctx, "c1", 10, &cursor); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestListChatsForMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChat(t, s, "c1", "A", "B")
	seedChat(t, s, "c2", "B", "C")

	chats, err := s.ListChats(ctx, "B")
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}

	chats, err = s.ListChats(ctx, "A")
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != "c1" || len(chats[0].Members) != 2 {
		t.Fatalf("unexpected chats for A: %+v", chats)
	}
}
