package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/chatsync/internal/client"
	"github.com/vovakirdan/chatsync/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "alice", "user id")
	token := flag.String("token", "", "identity token (see `chatsync token`)")
	chat := flag.String("chat", "", "chat id to talk in")
	flag.Parse()

	if *chat == "" {
		return errors.New("-chat is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, err := client.Dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Identify(ctx, *user, *token); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in chat %s\n", *addr, *user, *chat)
	fmt.Println("Type messages and press Enter to send. /typing and /clear are commands. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, *user)
	}()

	writeLoop(ctx, conn, *user, *chat)
	return nil
}

func readLoop(ctx context.Context, conn *client.Conn, self string) {
	state := client.NewState(self)
	for {
		frame, err := conn.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		now := time.Now()
		next, err := state.Apply(frame, now)
		if err != nil {
			log.Printf("apply %s: %v", frame.Event, err)
			continue
		}
		state = next

		switch {
		case frame.Type == proto.OutboundTypeError:
			fmt.Printf("! %s: %s\n", state.LastError().Code, state.LastError().Msg)
		case frame.Event == proto.EventOnlineUsers, frame.Event == proto.EventOnlineUsersUpdated:
			fmt.Printf("online: %s\n", strings.Join(state.Online(), ", "))
		case frame.Event == proto.EventReceiveMessage:
			printMessage(state, frame)
		case frame.Event == proto.EventMessageCountCleared:
			fmt.Println("(chat marked read)")
		case frame.Event == proto.EventStartedTyping:
			printTyping(state, frame, now)
		}
	}
}

func printMessage(state client.State, frame client.Frame) {
	chatID := frameChat(frame)
	view, ok := state.Chat(chatID)
	if !ok || view.LastMessage == nil {
		return
	}
	msg := view.LastMessage
	fmt.Printf("[%s] %s: %s (unread %d)\n", chatID, msg.Sender, msg.Text, view.Unread)
}

func printTyping(state client.State, frame client.Frame, now time.Time) {
	chatID := frameChat(frame)
	if typing := state.Typing(chatID, now); len(typing) > 0 {
		fmt.Printf("[%s] %s typing...\n", chatID, strings.Join(typing, ", "))
	}
}

func frameChat(frame client.Frame) string {
	var ref proto.ChatRef
	if err := frame.Decode(&ref); err != nil {
		return ""
	}
	return ref.ChatID
}

func writeLoop(ctx context.Context, conn *client.Conn, user, chat string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			var err error
			switch text {
			case "":
				continue
			case "/typing":
				err = conn.Typing(ctx, chat, user)
			case "/clear":
				err = conn.ClearUnread(ctx, chat)
			default:
				err = conn.SendMessage(ctx, chat, user, text, "")
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
