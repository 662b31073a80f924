package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"flexchat/internal/chat/model"
	"flexchat/internal/chat/service"
	"flexchat/pkg/logger"
	"flexchat/store"
)

const (
	CommentType        = "COMMENT"         // New comment in the followed channel
	PresenceUpdateType = "PRESENCE_UPDATE" // A follower joined or left
	ErrorType          = "ERROR"           // The follow loop stopped
)

type WSMessage struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id"`
	Payload   json.RawMessage `json:"payload"`
}

type PresencePayload struct {
	Followers int `json:"followers"`
}

// Hub tracks the websocket followers of each channel. Every follower runs its
// own long-poll loop against the chat service; the hub only manages
// membership and presence.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client

	service *service.ChatService
	mu      sync.Mutex
	done    chan struct{}
}

func NewHub(svc *service.ChatService) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		service:    svc,
		done:       make(chan struct{}),
	}
}

// Run processes membership changes until ctx ends, then disconnects every
// follower.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			room := client.ChannelID.String()
			if h.Rooms[room] == nil {
				h.Rooms[room] = make(map[*Client]bool)
			}
			h.Rooms[room][client] = true
			h.mu.Unlock()

			go client.follow(h.service)
			h.broadcastPresenceUpdate(room)

		case client := <-h.Unregister:
			h.mu.Lock()
			room := client.ChannelID.String()
			_, ok := h.Rooms[room][client]
			if ok {
				delete(h.Rooms[room], client)
				client.close()
				if len(h.Rooms[room]) == 0 {
					delete(h.Rooms, room)
					logger.Sugar.Infof("Closed empty room: %s", room)
				}
			}
			h.mu.Unlock()

			if ok {
				h.broadcastPresenceUpdate(room)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for room, clients := range h.Rooms {
				for client := range clients {
					client.close()
				}
				delete(h.Rooms, room)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Followers reports how many clients follow a channel.
func (h *Hub) Followers(channelID store.ChannelID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[channelID.String()])
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) broadcastPresenceUpdate(room string) {
	var clientsToSend []*Client

	h.mu.Lock()
	for client := range h.Rooms[room] {
		clientsToSend = append(clientsToSend, client)
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, _ := json.Marshal(PresencePayload{Followers: len(clientsToSend)})
	msg, err := json.Marshal(WSMessage{Type: PresenceUpdateType, ChannelID: room, Payload: payload})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}

	for _, client := range clientsToSend {
		if !client.trySend(msg) {
			logger.Sugar.Warnf("Follower of %s has a full send buffer during presence update.", room)
		}
	}
}

// follow streams comments to the client until its context ends. The cursor
// advances past every delivered comment, so nothing written while a message
// is in flight is skipped.
func (c *Client) follow(svc *service.ChatService) {
	cursor := c.After
	for {
		comments, err := svc.LongPollComments(c.ctx, c.ChannelID, cursor, service.ASC)
		if err != nil {
			if c.ctx.Err() == nil {
				logger.Sugar.Warnf("Follow loop for %s stopped: %v", c.ChannelID, err)
				c.sendError(err)
				c.Hub.unregister(c)
			}
			return
		}
		for _, comment := range comments {
			payload, _ := json.Marshal(model.NewCommentResponse(comment))
			msg, err := json.Marshal(WSMessage{Type: CommentType, ChannelID: c.ChannelID.String(), Payload: payload})
			if err != nil {
				logger.Sugar.Errorf("Error marshalling comment: %v", err)
				continue
			}
			if !c.trySend(msg) {
				logger.Sugar.Warnf("Follower of %s is lagging. Unregistering.", c.ChannelID)
				c.Hub.unregister(c)
				return
			}
			id := comment.ID
			cursor = &id
		}
	}
}

func (c *Client) sendError(err error) {
	text := err.Error()
	if errors.Is(err, service.ErrChannelNotFound) {
		text = "channel not found"
	}
	payload, _ := json.Marshal(model.ErrorResponse{Error: text})
	msg, _ := json.Marshal(WSMessage{Type: ErrorType, ChannelID: c.ChannelID.String(), Payload: payload})
	c.trySend(msg)
}
