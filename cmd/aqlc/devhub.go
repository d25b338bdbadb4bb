package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	devWriteWait  = 10 * time.Second
	devPongWait   = 60 * time.Second
	devPingPeriod = (devPongWait * 9) / 10
)

var devUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// devMessage is what gets pushed to a connected dev client after every
// build the watch loop runs, success or failure.
type devMessage struct {
	Type   string   `json:"type"` // "build"
	OK     bool     `json:"ok"`
	File   string   `json:"file,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// devClient is one browser (or other long-lived process) listening for
// build-status pushes. It never sends anything the hub acts on; readPump
// only exists to notice the peer going away and unregister.
type devClient struct {
	hub  *devHub
	conn *websocket.Conn
	send chan []byte
}

// devHub fans build-status messages out to every connected devClient, the
// same register/unregister/broadcast shape as a chat room's hub, just with
// a single implicit "room" instead of per-view subscriptions.
type devHub struct {
	clients    map[*devClient]bool
	broadcast  chan []byte
	register   chan *devClient
	unregister chan *devClient
}

func newDevHub() *devHub {
	return &devHub{
		clients:    make(map[*devClient]bool),
		broadcast:  make(chan []byte, 8),
		register:   make(chan *devClient),
		unregister: make(chan *devClient),
	}
}

func (h *devHub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// push broadcasts a build result to every connected client. Safe to call
// even when nothing is listening on /ws.
func (h *devHub) push(msg devMessage) {
	encoded, err := json.Marshal(msg)
	if err != nil {
		log.Printf("dev: failed to marshal build status: %v", err)
		return
	}
	select {
	case h.broadcast <- encoded:
	default:
		// hub's run loop is behind; drop rather than block the watch loop.
	}
}

func (h *devHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := devUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dev: websocket upgrade failed: %v", err)
		return
	}

	c := &devClient{hub: h, conn: conn, send: make(chan []byte, 16)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump's only job is detecting the peer disconnecting; a dev client
// pushes nothing back, so any received message just resets the deadline.
func (c *devClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(devPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(devPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *devClient) writePump() {
	ticker := time.NewTicker(devPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(devWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(devWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
