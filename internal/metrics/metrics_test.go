package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.SetConnections(3)
	r.SetOnlineUsers(2)
	r.MessagePersisted()
	r.Delivered("receive-message")
	r.Delivered("receive-message")
	r.Dropped("started-typing")
	r.Rejected("unauthorized")
	r.CacheLookup(true)
	r.CacheLookup(false)

	if got := testutil.ToFloat64(r.connections); got != 3 {
		t.Fatalf("connections = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.onlineUsers); got != 2 {
		t.Fatalf("online users = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.delivered.WithLabelValues("receive-message")); got != 2 {
		t.Fatalf("delivered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.rejected.WithLabelValues("unauthorized")); got != 1 {
		t.Fatalf("rejected = %v, want 1", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.SetConnections(1)
	r.MessagePersisted()
	r.Delivered("x")
	r.Dropped("x")
	r.Rejected("x")
	r.CacheLookup(true)
	if r.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.MessagePersisted()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "chatsync_messages_persisted_total 1") {
		t.Fatalf("metric missing from output:\n%s", body)
	}
}
