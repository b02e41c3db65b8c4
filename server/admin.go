package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mazeplay/protocol"
)

const apiTimeout = 2 * time.Second

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", s.handleWS)

	r.Route("/api/v1/rooms", func(sub chi.Router) {
		sub.Get("/", s.handleListRooms)
		sub.Route("/{room}", func(rr chi.Router) {
			rr.Get("/", s.handleRoom)
			rr.Get("/metrics", s.handleRoomMetrics)
			rr.Get("/config", s.handleRoomConfig)
			rr.Post("/config", s.handleRoomConfig)
		})
	})
	return r
}

// requestLogger writes one zap line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		Log.Infow("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type roomView struct {
	Name    string                          `json:"name"`
	Players map[string]protocol.PlayerState `json:"players"`
	Maze    protocol.MazeLayout             `json:"maze"`
}

type roomConfigView struct {
	MaxClients *int `json:"maxClients,omitempty"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.rooms.ListRooms()})
}

// GET /api/v1/rooms/{room}
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
	defer cancel()
	players, err := room.Snapshot(ctx)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomView{Name: room.ID, Players: players, Maze: room.Layout()})
}

// GET /api/v1/rooms/{room}/metrics 输出指定房间的运行指标
func (s *Server) handleRoomMetrics(w http.ResponseWriter, r *http.Request) {
	room, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    room.ID,
		"players": room.NumPlayers(),
		"metrics": room.Metrics().Snapshot(),
	})
}

// GET|POST /api/v1/rooms/{room}/config 读取或更新房间人数上限
func (s *Server) handleRoomConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	n := 0
	if r.Method == http.MethodPost {
		var body roomConfigView
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if body.MaxClients == nil || *body.MaxClients <= 0 {
			writeError(w, http.StatusBadRequest, "maxClients must be positive")
			return
		}
		n = *body.MaxClients
	}
	ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
	defer cancel()
	cur, err := room.SetMaxClients(ctx, n)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomConfigView{MaxClients: &cur})
}

func (s *Server) lookupRoom(w http.ResponseWriter, r *http.Request) (*Room, bool) {
	room, err := s.rooms.GetRoom(chi.URLParam(r, "room"))
	if err != nil {
		writeRoomError(w, err)
		return nil, false
	}
	return room, true
}

func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRoomClosed):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Log.Warnw("write response", "err", err)
	}
}
