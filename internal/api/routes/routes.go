package routes

import (
	"github.com/gin-gonic/gin"

	"homechat/internal/api/handlers"
	"homechat/internal/api/middleware"
	"homechat/internal/realtime"
	"homechat/internal/repository"
)

type Router struct {
	engine     *gin.Engine
	hub        *realtime.Hub
	dispatcher *realtime.Dispatcher
	rooms      repository.RoomRepository
	messages   repository.MessageRepository
	jwtSecret  string
}

func NewRouter(hub *realtime.Hub, dispatcher *realtime.Dispatcher, rooms repository.RoomRepository, messages repository.MessageRepository, jwtSecret string) *Router {
	return &Router{
		engine:     gin.New(),
		hub:        hub,
		dispatcher: dispatcher,
		rooms:      rooms,
		messages:   messages,
		jwtSecret:  jwtSecret,
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.LogAPI())
	r.engine.Use(middleware.CORS())

	wsHandler := handlers.NewWebSocketHandler(r.hub)
	messageHandler := handlers.NewMessageHandler(r.messages, r.rooms, r.dispatcher)
	roomHandler := handlers.NewRoomHandler(r.rooms, r.dispatcher)

	v1 := r.engine.Group("/api/v1")

	// Websocket handshake authenticates via query token; upgrades cannot
	// carry headers from browser clients.
	v1.GET("/ws", middleware.WSAuth(r.jwtSecret), wsHandler.Serve)

	authed := v1.Group("")
	authed.Use(middleware.Auth(r.jwtSecret))
	{
		authed.POST("/rooms", roomHandler.Create)
		authed.PUT("/rooms/:roomId", roomHandler.Update)
		authed.DELETE("/rooms/:roomId", roomHandler.Delete)

		authed.POST("/rooms/:roomId/messages", messageHandler.Create)
		authed.DELETE("/rooms/:roomId/messages/:messageId", messageHandler.Delete)
		authed.POST("/rooms/:roomId/messages/read", messageHandler.MarkRead)
		authed.POST("/rooms/:roomId/messages/:messageId/reactions", messageHandler.React)
	}

	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
