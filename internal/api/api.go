// Package api hosts the HTTP surface around the hub: the WebSocket
// endpoint, the history replay side-channel, the room directory, and a
// health check.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arvhov/chatrelay/internal/config"
	"github.com/arvhov/chatrelay/internal/hub"
	"github.com/arvhov/chatrelay/internal/logger"
	"github.com/arvhov/chatrelay/internal/store"
)

const requestTimeout = 5 * time.Second

// HistoryStore is the read/directory side of the persistence layer the
// HTTP handlers consume.
type HistoryStore interface {
	Recent(ctx context.Context, room string, limit int) ([]store.Message, error)
	Rooms(ctx context.Context) ([]store.Room, error)
	CreateRoom(ctx context.Context, name string) (*store.Room, error)
	Ping(ctx context.Context) error
}

// FeedStatus reports the archive feed's connection state for /health.
type FeedStatus interface {
	Connected() bool
}

// Server wires handlers into an http.Server.
type Server struct {
	hub     *hub.Hub
	store   HistoryStore
	feed    FeedStatus
	cfg     *config.Config
	logger  *logger.Logger
	httpSrv *http.Server
}

func NewServer(h *hub.Hub, messages HistoryStore, feed FeedStatus, cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		hub:    h,
		store:  messages,
		feed:   feed,
		cfg:    cfg,
		logger: log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWs)
	mux.HandleFunc("/api/rooms", s.handleRooms)
	mux.HandleFunc("/api/rooms/", s.handleHistory)
	mux.HandleFunc("/health", s.handleHealth)

	// No WriteTimeout: it would sever long-lived WebSocket connections.
	s.httpSrv = &http.Server{
		Addr:        cfg.Addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("HTTP server listening on %s", s.cfg.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.hub.ServeWs(w, r)
}

// handleHistory serves GET /api/rooms/{room}/messages. Messages are
// returned newest to oldest; clients reverse for chronological display.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	room, tail, found := strings.Cut(rest, "/")
	if room == "" || !found || tail != "messages" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	limit := s.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	messages, err := s.store.Recent(ctx, room, limit)
	if err != nil {
		s.logger.Errorf("Loading history for room %s: %v", room, err)
		http.Error(w, "error retrieving messages", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room":     room,
		"messages": messages,
		"count":    len(messages),
		"order":    "newest_first",
	})
}

// handleRooms serves the room directory: GET lists, POST creates.
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		rooms, err := s.store.Rooms(ctx)
		if err != nil {
			s.logger.Errorf("Listing rooms: %v", err)
			http.Error(w, "error listing rooms", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"rooms": rooms,
			"count": len(rooms),
		})

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
			http.Error(w, "room name is required", http.StatusBadRequest)
			return
		}
		room, err := s.store.CreateRoom(ctx, strings.TrimSpace(req.Name))
		if err != nil {
			if errors.Is(err, store.ErrRoomExists) {
				http.Error(w, "room already exists", http.StatusConflict)
				return
			}
			s.logger.Errorf("Creating room %s: %v", req.Name, err)
			http.Error(w, "error creating room", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, room)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	storeStatus := "ok"
	if err := s.store.Ping(ctx); err != nil {
		storeStatus = "unavailable"
	}
	feedStatus := "disabled"
	if s.feed != nil && s.feed.Connected() {
		feedStatus = "connected"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"store":    storeStatus,
		"archive":  feedStatus,
		"sessions": s.hub.SessionCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
