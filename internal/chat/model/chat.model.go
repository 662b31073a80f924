package model

import "flexchat/store"

const APIVersion = "0.1"

type CreateChannelRequest struct {
	Name string `json:"name"`
}

type ChannelResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AddCommentRequest struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

type CommentResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

type VersionResponse struct {
	APIVersion string `json:"api_version"`
	AppVersion string `json:"app_version"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewChannelResponse(c store.Channel) ChannelResponse {
	return ChannelResponse{ID: c.ID.String(), Name: c.Name}
}

func NewChannelResponses(channels []store.Channel) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(channels))
	for _, c := range channels {
		out = append(out, NewChannelResponse(c))
	}
	return out
}

func NewCommentResponse(c store.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID.String(),
		ChannelID: c.ChannelID.String(),
		Name:      c.Name,
		Message:   c.Message,
	}
}

func NewCommentResponses(comments []store.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, NewCommentResponse(c))
	}
	return out
}
