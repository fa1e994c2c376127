package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vovakirdan/chatsync/internal/client"
	"github.com/vovakirdan/chatsync/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run identifies, sends one message and waits for its echo.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "alice", "user id to identify as")
	token := flag.String("token", "", "identity token")
	chat := flag.String("chat", "", "chat id the user is a member of")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *chat == "" {
		return errors.New("-chat is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := client.Dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Identify(ctx, *user, *token); err != nil {
		return err
	}
	if err := conn.SendMessage(ctx, *chat, *user, *text, ""); err != nil {
		return err
	}

	state := client.NewState(*user)
	for {
		frame, err := conn.Next(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received outbound: type=%s event=%s\n", frame.Type, frame.Event)

		state, err = state.Apply(frame, time.Now())
		if err != nil {
			return err
		}
		if frame.Type == proto.OutboundTypeError {
			return fmt.Errorf("server error %s: %s", state.LastError().Code, state.LastError().Msg)
		}
		if frame.Event != proto.EventReceiveMessage {
			continue
		}
		view, _ := state.Chat(*chat)
		if view.LastMessage == nil || view.LastMessage.Sender != *user {
			continue
		}
		fmt.Printf("Message stored: id=%s chat=%s text=%q createdAt=%d\n",
			view.LastMessage.ID, view.LastMessage.ChatID, view.LastMessage.Text, view.LastMessage.CreatedAt)
		return nil
	}
}
