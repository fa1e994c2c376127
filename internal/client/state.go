// Package client mirrors server pushes into an immutable local view.
//
// Every outbound frame is applied through State.Apply, which returns a new
// State. Apply never mutates its receiver.
package client

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/vovakirdan/chatsync/internal/proto"
)

// Frame is one decoded server frame.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s: empty data", f.Event)
	}
	return json.Unmarshal(f.Data, v)
}

// ChatView is the local view of one chat.
type ChatView struct {
	ID          string
	Unread      int
	LastMessage *proto.EventMessage
}

// State is an immutable snapshot. Create it with NewState.
type State struct {
	self    string
	online  []string
	chats   map[string]ChatView
	typing  map[string]map[string]time.Time
	lastErr *proto.Error
}

// NewState returns an empty state for the given local user.
func NewState(self string) State {
	return State{self: self}
}

// Self returns the local user.
func (s State) Self() string { return s.self }

// Online returns the last presence snapshot.
func (s State) Online() []string { return slices.Clone(s.online) }

// IsOnline reports whether userID was in the last presence snapshot.
func (s State) IsOnline(userID string) bool {
	_, ok := slices.BinarySearch(s.online, userID)
	return ok
}

// Chat returns the view of chatID.
func (s State) Chat(chatID string) (ChatView, bool) {
	c, ok := s.chats[chatID]
	return c, ok
}

// Unread returns the local unread count of chatID.
func (s State) Unread(chatID string) int {
	return s.chats[chatID].Unread
}

// Typing returns the senders whose indicator in chatID is still live at now.
func (s State) Typing(chatID string, now time.Time) []string {
	var users []string
	for user, exp := range s.typing[chatID] {
		if now.Before(exp) {
			users = append(users, user)
		}
	}
	slices.Sort(users)
	return users
}

// LastError returns the most recent error frame.
func (s State) LastError() *proto.Error { return s.lastErr }

// Apply returns the state after frame. Unknown events are ignored.
func (s State) Apply(frame Frame, now time.Time) (State, error) {
	if frame.Type == proto.OutboundTypeError {
		next := s
		next.lastErr = frame.Error
		return next, nil
	}

	switch frame.Event {
	case proto.EventOnlineUsers, proto.EventOnlineUsersUpdated:
		var users []string
		if err := json.Unmarshal(frame.Data, &users); err != nil {
			return s, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		slices.Sort(users)
		next := s
		next.online = users
		return next, nil

	case proto.EventReceiveMessage:
		var msg proto.EventMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return s, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		chat := s.chats[msg.ChatID]
		if chat.LastMessage != nil && chat.LastMessage.ID == msg.ID {
			return s, nil
		}
		chat.ID = msg.ChatID
		chat.LastMessage = &msg
		if msg.Sender != s.self {
			chat.Unread++
		}
		next := s.withChat(chat)
		// A message ends the sender's typing indicator.
		next.typing = s.withoutTyping(msg.ChatID, msg.Sender)
		return next, nil

	case proto.EventMessageCountCleared:
		var ref proto.ChatRef
		if err := json.Unmarshal(frame.Data, &ref); err != nil {
			return s, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		chat := s.chats[ref.ChatID]
		chat.ID = ref.ChatID
		chat.Unread = 0
		return s.withChat(chat), nil

	case proto.EventStartedTyping:
		var ev proto.EventTyping
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return s, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		if ev.Sender == s.self {
			return s, nil
		}
		next := s
		next.typing = s.withTyping(ev.ChatID, ev.Sender, now.Add(time.Duration(ev.ExpiresInMs)*time.Millisecond))
		return next, nil
	}
	return s, nil
}

func (s State) withChat(chat ChatView) State {
	chats := make(map[string]ChatView, len(s.chats)+1)
	for k, v := range s.chats {
		chats[k] = v
	}
	chats[chat.ID] = chat
	next := s
	next.chats = chats
	return next
}

func (s State) copyTyping() map[string]map[string]time.Time {
	out := make(map[string]map[string]time.Time, len(s.typing)+1)
	for chatID, senders := range s.typing {
		inner := make(map[string]time.Time, len(senders))
		for k, v := range senders {
			inner[k] = v
		}
		out[chatID] = inner
	}
	return out
}

func (s State) withTyping(chatID, sender string, expires time.Time) map[string]map[string]time.Time {
	out := s.copyTyping()
	if out[chatID] == nil {
		out[chatID] = make(map[string]time.Time)
	}
	out[chatID][sender] = expires
	return out
}

func (s State) withoutTyping(chatID, sender string) map[string]map[string]time.Time {
	if _, ok := s.typing[chatID][sender]; !ok {
		return s.typing
	}
	out := s.copyTyping()
	delete(out[chatID], sender)
	return out
}
