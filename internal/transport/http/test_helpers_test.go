package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatsync/internal/auth"
	"github.com/vovakirdan/chatsync/internal/config"
	"github.com/vovakirdan/chatsync/internal/core"
	"github.com/vovakirdan/chatsync/internal/metrics"
	"github.com/vovakirdan/chatsync/internal/proto"
	"github.com/vovakirdan/chatsync/internal/store"
	"github.com/vovakirdan/chatsync/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts        *httptest.Server
	server    *http.Server
	store     store.Store
	hub       *core.Hub
	validator *auth.Validator
}

// newTestEnv starts a server over an in-memory store seeded with chat c1
// whose members are alice and bob.
func newTestEnv(t *testing.T, jwtRequired bool) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.CreateChat(context.Background(), &store.Chat{ID: "c1", Name: "c1", Members: []string{"alice", "bob"}}); err != nil {
		t.Fatalf("seed chat: %v", err)
	}

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	cfg.JWTRequired = jwtRequired

	validator := auth.NewValidator(&auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	logger := zerolog.Nop()
	rec := metrics.New()
	hub := core.NewHub(st, validator, core.Options{TrustClaimedIdentity: !jwtRequired}, rec, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	server := NewServer(hub, validator, st, rec, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})

	return &testEnv{ts: ts, server: server, store: st, hub: hub, validator: validator}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.validator.IssueToken(userID, "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readUntil reads frames until one matches event (or an error frame when
// event is proto.OutboundTypeError).
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outboundFrame {
	t.Helper()
	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if event == proto.OutboundTypeError && frame.Type == proto.OutboundTypeError {
			return frame
		}
		if frame.Type == proto.OutboundTypeEvent && frame.Event == event {
			return frame
		}
	}
}

// identify joins as userID and waits for the presence snapshot.
func identify(t *testing.T, ctx context.Context, conn *websocket.Conn, userID, token string) []string {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeJoinRoom, proto.JoinRoomData{UserID: userID, Token: token, Protocol: proto.ProtocolVersion})
	frame := readUntil(t, ctx, conn, proto.EventOnlineUsers)
	var users []string
	if err := json.Unmarshal(frame.Data, &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	return users
}

// waitOnline blocks until the hub reports userID online.
func waitOnline(t *testing.T, hub *core.Hub, userID string, online bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		found := false
		for _, u := range hub.OnlineUsers() {
			if u == userID {
				found = true
			}
		}
		if found == online {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s online=%v not reached", userID, online)
}
