package socket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"flexchat/pkg/logger"
	"flexchat/store"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket follower of a channel.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	ChannelID store.ChannelID
	After     *store.CommentID
	Send      chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

// ServeWs upgrades the request and streams the comments of ?channelId= that
// come after the optional ?after= cursor. Without a cursor only comments
// written after the connection opens are sent.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	channelID, err := store.ParseChannelID(r.URL.Query().Get("channelId"))
	if err != nil {
		http.Error(w, "Invalid channelId parameter", http.StatusBadRequest)
		return
	}
	var after *store.CommentID
	if raw := r.URL.Query().Get("after"); raw != "" {
		id, err := store.ParseCommentID(raw)
		if err != nil {
			http.Error(w, "Invalid after parameter", http.StatusBadRequest)
			return
		}
		after = &id
	}

	_, found, err := hub.service.FindChannel(channelID)
	if err != nil {
		logger.Sugar.Errorf("Error checking channel %s: %v", channelID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		logger.Sugar.Warnf("Connection rejected: channel %s not found", channelID)
		http.Error(w, "Channel not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	// The request context ends when this handler returns, so the follower
	// gets its own.
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		Hub:       hub,
		Conn:      conn,
		ChannelID: channelID,
		After:     after,
		Send:      make(chan []byte, 256),
		ctx:       ctx,
		cancel:    cancel,
	}

	if !hub.register(client) {
		cancel()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only watches for the peer going away; followers do not send
// anything the server acts on.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.cancel()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}

// trySend queues msg without blocking. It reports false when the buffer is
// full or the client is already gone.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// close stops the follow loop and lets writePump send the close frame.
func (c *Client) close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
