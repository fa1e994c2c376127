package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatsync/internal/proto"
)

// Conn is a typed wrapper around a sync WebSocket.
type Conn struct {
	ws *websocket.Conn
}

// Dial connects to the sync endpoint at url (ws://host/ws).
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) send(ctx context.Context, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, c.ws, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

// Identify sends join-room. token may be empty when the server trusts
// claimed identities.
func (c *Conn) Identify(ctx context.Context, userID, token string) error {
	return c.send(ctx, proto.InboundTypeJoinRoom, proto.JoinRoomData{
		UserID:   userID,
		Token:    token,
		Protocol: proto.ProtocolVersion,
	})
}

// Login requests the presence snapshot.
func (c *Conn) Login(ctx context.Context, userID string) error {
	return c.send(ctx, proto.InboundTypeUserLogin, proto.UserLoginData{UserID: userID})
}

// SendMessage sends a chat message.
func (c *Conn) SendMessage(ctx context.Context, chatID, sender, text, image string) error {
	return c.send(ctx, proto.InboundTypeSendMessage, proto.SendMessageData{
		ChatID: chatID,
		Sender: sender,
		Text:   text,
		Image:  image,
	})
}

// ClearUnread marks a chat read on every device.
func (c *Conn) ClearUnread(ctx context.Context, chatID string) error {
	return c.send(ctx, proto.InboundTypeClearUnread, proto.ClearUnreadData{ChatID: chatID})
}

// Typing sends a typing notification.
func (c *Conn) Typing(ctx context.Context, chatID, sender string) error {
	return c.send(ctx, proto.InboundTypeUserTyping, proto.UserTypingData{ChatID: chatID, Sender: sender})
}

// Next blocks for the next server frame.
func (c *Conn) Next(ctx context.Context) (Frame, error) {
	var frame Frame
	if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

// Close closes the connection normally.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}
