package notify

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"swap-guard/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedServer serves hub events over websocket the way the API does.
func feedServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		obs := NewWSObserver(conn, nil)
		hub.Subscribe(r.URL.Query().Get("identity"), obs)
		<-obs.Done()
		hub.Unsubscribe(obs)
		obs.Wait()
	}))
	t.Cleanup(server.Close)
	return server
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFeedClient_ReceivesEvents(t *testing.T) {
	hub := testHub()
	server := feedServer(t, hub)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	client, err := DialFeed(context.Background(), wsURL, "alice", nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("DialFeed: %v", err)
	}
	defer client.Close()

	waitFor(t, func() bool { return hub.Count() == 1 })

	hub.Publish("alice", domain.Event{Type: domain.EventBatchExecuted, BatchID: "b-1", TransactionID: "tx-1"})
	hub.Publish("bob", domain.StatusEvent(domain.TxStatusSimulating))

	select {
	case ev := <-client.Events():
		if ev.Type != domain.EventBatchExecuted || ev.BatchID != "b-1" || ev.TransactionID != "tx-1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestWSObserver_ClientDisconnectDropsObserver(t *testing.T) {
	hub := testHub()
	server := feedServer(t, hub)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?identity=alice"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return hub.Count() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestWSObserver_SendAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		obs := NewWSObserver(conn, nil)
		obs.Close()
		obs.Wait()
		if obs.Connected() {
			t.Error("observer should report disconnected")
		}
		if err := obs.Send(domain.StatusEvent(domain.TxStatusPending)); err != ErrObserverClosed {
			t.Errorf("expected ErrObserverClosed, got %v", err)
		}
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected close frame")
	}
}

func TestFeedClient_ReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 1 {
			return
		}
		conn.WriteJSON(domain.Event{Type: domain.EventBatchFailed, BatchID: "b-2", Reason: "timeout"})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}))
	defer server.Close()

	cfg := DefaultFeedClientConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	client, err := DialFeed(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), "alice", &cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("DialFeed: %v", err)
	}
	defer client.Close()

	select {
	case ev := <-client.Events():
		if ev.BatchID != "b-2" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
}

func TestFeedClient_ServerCloseEndsFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown identity"))
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}))
	defer server.Close()

	client, err := DialFeed(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), "mallory", nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("DialFeed: %v", err)
	}
	defer client.Close()

	select {
	case _, ok := <-client.Events():
		if ok {
			t.Error("expected events channel to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed still open after policy close")
	}
}
