package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"flexchat/internal/chat/model"
	"flexchat/internal/chat/service"
	"flexchat/internal/pubsub"
	"flexchat/pkg/logger"
	"flexchat/pkg/version"
	"flexchat/store"
)

type ChatHandler struct {
	Service *service.ChatService
}

func NewChatHandler(service *service.ChatService) *ChatHandler {
	return &ChatHandler{Service: service}
}

func (h *ChatHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, model.VersionResponse{APIVersion: model.APIVersion, AppVersion: version.App})
}

func (h *ChatHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	channel, err := h.Service.CreateChannel(req.Name)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create channel: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, model.NewChannelResponse(channel))
}

func (h *ChatHandler) GetChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channels, err := h.Service.ListChannelsCreatedAsc()
	if err != nil {
		logger.Sugar.Errorf("Error fetching channels: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, model.NewChannelResponses(channels))
}

func (h *ChatHandler) GetChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channelID, ok := channelIDParam(w, r, "channelId")
	if !ok {
		return
	}

	channel, found, err := h.Service.FindChannel(channelID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching channel %s: %v", channelID, err)
		writeError(w, err)
		return
	}
	if !found {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return
	}
	writeJSON(w, model.NewChannelResponse(channel))
}

func (h *ChatHandler) GetChannelsAfter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cursor, ok := channelIDParam(w, r, "after")
	if !ok {
		return
	}

	channels, err := h.Service.ChannelsAfter(cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, model.NewChannelResponses(channels))
}

// PollChannels blocks until a channel exists after the optional cursor.
func (h *ChatHandler) PollChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dir, ok := directionParam(w, r)
	if !ok {
		return
	}
	var cursor *store.ChannelID
	if r.URL.Query().Get("after") != "" {
		id, ok := channelIDParam(w, r, "after")
		if !ok {
			return
		}
		cursor = &id
	}

	channels, err := h.Service.LongPollChannels(r.Context(), cursor, dir)
	if err != nil {
		if isDisconnect(r, err) {
			return
		}
		logger.Sugar.Warnf("Failed to long poll channels: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, model.NewChannelResponses(channels))
}

func (h *ChatHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChannelID == "" {
		http.Error(w, "Channel ID is required", http.StatusBadRequest)
		return
	}
	channelID, err := store.ParseChannelID(req.ChannelID)
	if err != nil {
		http.Error(w, "Invalid channel_id", http.StatusBadRequest)
		return
	}

	comment, err := h.Service.AddComment(channelID, req.Name, req.Message)
	if err != nil {
		logger.Sugar.Errorf("Failed to add comment: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, model.NewCommentResponse(comment))
}

// GetComments returns the newest `first` comments of a channel.
func (h *ChatHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channelID, ok := channelIDParam(w, r, "channelId")
	if !ok {
		return
	}
	dir, ok := directionParam(w, r)
	if !ok {
		return
	}
	first, err := strconv.Atoi(r.URL.Query().Get("first"))
	if err != nil || first < 0 {
		http.Error(w, "Invalid first parameter", http.StatusBadRequest)
		return
	}

	comments, err := h.Service.FirstComments(channelID, first, dir)
	if err != nil {
		logger.Sugar.Errorf("Error fetching comments: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, model.NewCommentResponses(comments))
}

func (h *ChatHandler) GetCommentsAfter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channelID, ok := channelIDParam(w, r, "channelId")
	if !ok {
		return
	}
	cursor, ok := commentIDParam(w, r, "after")
	if !ok {
		return
	}
	dir, ok := directionParam(w, r)
	if !ok {
		return
	}

	comments, err := h.Service.CommentsAfter(channelID, cursor, dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, model.NewCommentResponses(comments))
}

// PollComments blocks until a comment exists after the optional cursor.
func (h *ChatHandler) PollComments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channelID, ok := channelIDParam(w, r, "channelId")
	if !ok {
		return
	}
	dir, ok := directionParam(w, r)
	if !ok {
		return
	}
	var cursor *store.CommentID
	if r.URL.Query().Get("after") != "" {
		id, ok := commentIDParam(w, r, "after")
		if !ok {
			return
		}
		cursor = &id
	}

	comments, err := h.Service.LongPollComments(r.Context(), channelID, cursor, dir)
	if err != nil {
		if isDisconnect(r, err) {
			return
		}
		logger.Sugar.Warnf("Failed to long poll comments: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, model.NewCommentResponses(comments))
}

func channelIDParam(w http.ResponseWriter, r *http.Request, name string) (store.ChannelID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		http.Error(w, "Missing "+name+" parameter", http.StatusBadRequest)
		return store.ChannelID{}, false
	}
	id, err := store.ParseChannelID(raw)
	if err != nil {
		http.Error(w, "Invalid "+name+" parameter", http.StatusBadRequest)
		return store.ChannelID{}, false
	}
	return id, true
}

func commentIDParam(w http.ResponseWriter, r *http.Request, name string) (store.CommentID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		http.Error(w, "Missing "+name+" parameter", http.StatusBadRequest)
		return store.CommentID{}, false
	}
	id, err := store.ParseCommentID(raw)
	if err != nil {
		http.Error(w, "Invalid "+name+" parameter", http.StatusBadRequest)
		return store.CommentID{}, false
	}
	return id, true
}

func directionParam(w http.ResponseWriter, r *http.Request) (service.OrderDirection, bool) {
	dir, err := service.ParseOrderDirection(r.URL.Query().Get("direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return dir, true
}

// isDisconnect reports a long poll abandoned by its client; there is nobody
// left to answer.
func isDisconnect(r *http.Request, err error) bool {
	if r.Context().Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrChannelNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidCount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pubsub.ErrClosed):
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Failed to encode response: %v", err)
	}
}
