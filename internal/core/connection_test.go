package core

import "testing"

func TestConnectionSlowConsumerIsClosed(t *testing.T) {
	conn := NewConnection(2)
	ev := &Event{Kind: EventStartedTyping}

	if !conn.Send(ev) || !conn.Send(ev) {
		t.Fatal("sends within buffer should succeed")
	}
	if conn.Send(ev) {
		t.Fatal("send on a full queue must fail")
	}
	select {
	case <-conn.Done():
	default:
		t.Fatal("overflowing connection should be closed")
	}
	if conn.State() != StateDisconnected {
		t.Fatalf("state = %v", conn.State())
	}
	if conn.Send(ev) {
		t.Fatal("send after close must fail")
	}
}

func TestConnectionStateMachine(t *testing.T) {
	conn := NewConnection(1)
	if conn.State() != StateConnecting {
		t.Fatalf("initial state = %v", conn.State())
	}
	if err := conn.authenticate(1, "A"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := conn.authenticate(2, "A"); err == nil {
		t.Fatal("authenticate twice must fail")
	}
	conn.Close()
	conn.Close()
	if err := conn.authenticate(3, "A"); err == nil {
		t.Fatal("a disconnected connection never re-enters authenticated")
	}
	if conn.ID() != 1 || conn.UserID() != "A" {
		t.Fatalf("identity changed: %d %s", conn.ID(), conn.UserID())
	}
}

func TestChatSequencerReleasesEntries(t *testing.T) {
	s := newChatSequencer()
	release := s.lock("c1")
	if s.len() != 1 {
		t.Fatalf("len = %d", s.len())
	}
	release()
	if s.len() != 0 {
		t.Fatalf("len after release = %d", s.len())
	}
}
