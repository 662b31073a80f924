package router

import (
	"net/http"

	chatHandler "flexchat/internal/chat"
	"flexchat/internal/chat/service"
	"flexchat/middleware"
	"flexchat/socket"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(svc *service.ChatService, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()

	// WebSocket
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	// REST API
	h := chatHandler.NewChatHandler(svc)

	mux.HandleFunc("/api/version", h.GetVersion)
	mux.HandleFunc("/api/channels/create", h.CreateChannel)
	mux.HandleFunc("/api/channels", h.GetChannels)
	mux.HandleFunc("/api/channels/get", h.GetChannel)
	mux.HandleFunc("/api/channels/after", h.GetChannelsAfter)
	mux.HandleFunc("/api/channels/poll", h.PollChannels)
	mux.HandleFunc("/api/comments/add", h.AddComment)
	mux.HandleFunc("/api/comments", h.GetComments)
	mux.HandleFunc("/api/comments/after", h.GetCommentsAfter)
	mux.HandleFunc("/api/comments/poll", h.PollComments)

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.LoggingMiddleware(middleware.CORSMiddleware(mux))
}
