// Package ws streams PubSub envelopes to websocket clients: a
// completion of the teacher's TODO'd wsHandler in
// http_server/robot.go, which upgraded the connection and then did
// nothing with it.
//
// A client connects to /ws?prefix=a.b.c (or without a query, which
// subscribes to every path) and receives one JSON frame per matching
// publish, for the lifetime of the connection.
package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"roverd/diag"
	"roverd/message"
	"roverd/pubsub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// frame is the wire shape of one streamed envelope.
type frame struct {
	Path    []string  `json:"path"`
	Kind    string    `json:"kind"`
	Payload any       `json:"payload"`
	Time    time.Time `json:"time"`
}

// Handler upgrades HTTP connections to websockets and streams PubSub
// envelopes under the requested prefix.
type Handler struct {
	router *pubsub.Router
}

// NewHandler wraps router for serving over HTTP.
func NewHandler(router *pubsub.Router) *Handler {
	return &Handler{router: router}
}

// ServeHTTP implements http.Handler, mirroring http_server/robot.go's
// wsHandler shape (Upgrade, then serve the connection) but with the
// subscribe-and-forward loop the teacher left as a TODO.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		diag.Printf("api/ws: upgrade: %v", err)
		return
	}
	defer conn.Close()

	var prefix []string
	if raw := r.URL.Query().Get("prefix"); raw != "" {
		prefix = strings.Split(strings.Trim(raw, "."), ".")
	}

	out := make(chan frame, 64)
	id := h.router.Subscribe(prefix, pubsub.Options{}, func(path []string, env message.Envelope) {
		f := frame{Path: path, Kind: string(env.Payload.Kind()), Payload: env.Payload, Time: time.Unix(0, env.TimestampNanos)}
		select {
		case out <- f:
		default:
			diag.Printf("api/ws: dropping frame, client too slow")
		}
	})
	defer h.router.Unsubscribe(id)

	// readLoop exists only to notice when the client disconnects;
	// this endpoint is otherwise send-only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case f := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
	}
}
