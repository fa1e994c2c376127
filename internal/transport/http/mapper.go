package http

import (
	"encoding/json"

	"github.com/vovakirdan/chatsync/internal/core"
	"github.com/vovakirdan/chatsync/internal/proto"
)

// inboundToCommand maps a client frame to a core command. A non-nil
// *proto.Error is reported to the client and the frame is dropped.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom:
		var join proto.JoinRoomData
		if err := decodeData(inbound.Data, &join); err != nil {
			return nil, err
		}
		if join.Protocol > proto.ProtocolVersion {
			return nil, &proto.Error{Code: core.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}
		}
		return &core.Command{Kind: core.CommandIdentify, UserID: join.UserID, Token: join.Token}, nil
	case proto.InboundTypeUserLogin:
		var login proto.UserLoginData
		if err := decodeData(inbound.Data, &login); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandLogin, UserID: login.UserID}, nil
	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if err := decodeData(inbound.Data, &msg); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:   core.CommandSendMessage,
			ChatID: msg.ChatID,
			Message: core.Message{
				ChatID:   msg.ChatID,
				SenderID: msg.Sender,
				Text:     msg.Text,
				Image:    msg.Image,
			},
		}, nil
	case proto.InboundTypeClearUnread:
		var req proto.ClearUnreadData
		if err := decodeData(inbound.Data, &req); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandClearUnread, ChatID: req.ChatID}, nil
	case proto.InboundTypeUserTyping:
		var typing proto.UserTypingData
		if err := decodeData(inbound.Data, &typing); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandTyping, UserID: typing.Sender, ChatID: typing.ChatID}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func decodeData(raw json.RawMessage, v any) *proto.Error {
	if len(raw) == 0 {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "data is required"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed data"}
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventOnlineUsers, core.EventOnlineUsersUpdated:
		users := event.Users
		if users == nil {
			users = []string{}
		}
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String(), Data: users}
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveMessage,
			Data:  eventMessage(event.Message),
		}
	case core.EventMessageCountCleared:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageCountCleared,
			Data:  proto.ChatRef{ChatID: event.ChatID},
		}
	case core.EventStartedTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventStartedTyping,
			Data: proto.EventTyping{
				ChatID:      event.Typing.ChatID,
				Sender:      event.Typing.SenderID,
				ExpiresInMs: event.Typing.Expiry.Milliseconds(),
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventMessage(m core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Sender:    m.SenderID,
		Text:      m.Text,
		Image:     m.Image,
		CreatedAt: m.CreatedAt.UnixMilli(),
		Read:      m.Read,
	}
}
