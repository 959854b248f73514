package wsbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeRemote is a minimal server-side peer implementing just enough of
// the wire protocol to exercise Bridge's remote operations.
func fakeRemote(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case "get":
				conn.WriteJSON(wireMessage{Type: "response", ID: msg.ID, Value: 42.0})
			case "set":
				conn.WriteJSON(wireMessage{Type: "response", ID: msg.ID})
			case "list":
				conn.WriteJSON(wireMessage{Type: "response", ID: msg.ID, Items: []RemoteEntry{
					{ID: "battery"}, {ID: "temperature"},
				}})
			case "subscribe":
				conn.WriteJSON(wireMessage{Type: "response", ID: msg.ID})
				conn.WriteJSON(wireMessage{Type: "push", Path: msg.Path, Value: 7.0})
			case "change":
				// fire-and-forget, no response expected
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func connectedBridge(t *testing.T, server *httptest.Server) (*Bridge, context.CancelFunc) {
	t.Helper()
	b := New("remote", wsURL(server), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.writeMu.Lock()
		connected := b.conn != nil
		b.writeMu.Unlock()
		if connected {
			return b, cancel
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	t.Fatal("timed out waiting for bridge to connect")
	return nil, cancel
}

func TestGetRemoteRoundTrips(t *testing.T) {
	server := fakeRemote(t)
	defer server.Close()
	b, cancel := connectedBridge(t, server)
	defer cancel()

	value, err := b.GetRemote([]string{"battery"})
	if err != nil {
		t.Fatalf("get remote: %v", err)
	}
	if value != 42.0 {
		t.Errorf("unexpected value: %v", value)
	}
}

func TestSetRemoteRoundTrips(t *testing.T) {
	server := fakeRemote(t)
	defer server.Close()
	b, cancel := connectedBridge(t, server)
	defer cancel()

	if err := b.SetRemote([]string{"battery"}, 99.0); err != nil {
		t.Fatalf("set remote: %v", err)
	}
}

func TestListRemoteReturnsIDs(t *testing.T) {
	server := fakeRemote(t)
	defer server.Close()
	b, cancel := connectedBridge(t, server)
	defer cancel()

	ids, err := b.ListRemote()
	if err != nil {
		t.Fatalf("list remote: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 ids, got %v", ids)
	}
}

func TestSubscribeRemoteDeliversPush(t *testing.T) {
	server := fakeRemote(t)
	defer server.Close()
	b, cancel := connectedBridge(t, server)
	defer cancel()

	received := make(chan any, 1)
	if err := b.SubscribeRemote([]string{"temperature"}, func(path []string, value any) {
		received <- value
	}); err != nil {
		t.Fatalf("subscribe remote: %v", err)
	}

	select {
	case v := <-received:
		if v != 7.0 {
			t.Errorf("unexpected pushed value: %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push")
	}
}
