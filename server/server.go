package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"mazeplay/config"
)

// Server ties the room manager to the HTTP and websocket surface.
type Server struct {
	cfg      config.Config
	rooms    *RoomManager
	upgrader websocket.Upgrader
	timings  ConnTimings
	router   chi.Router
}

// New builds a server from cfg. Rooms are created lazily on first join.
func New(cfg config.Config) *Server {
	s := &Server{
		cfg: cfg,
		rooms: NewRoomManager(RoomConfig{
			MazeSize:   cfg.MazeSize,
			MazeSeed:   cfg.MazeSeed,
			MaxClients: cfg.MaxClientsPerRoom,
		}),
		upgrader: newUpgrader(cfg.AllowedOrigins),
		timings: ConnTimings{
			PingInterval: cfg.PingInterval,
			PongWait:     cfg.PongWait,
			WriteWait:    cfg.WriteWait,
		},
	}
	s.router = s.newRouter()
	return s
}

// Rooms returns the room manager.
func (s *Server) Rooms() *RoomManager { return s.rooms }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close stops every room, disconnecting their clients.
func (s *Server) Close(ctx context.Context) error {
	return s.rooms.CloseAll(ctx)
}
