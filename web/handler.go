// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/termplex/lib/clock"
	"github.com/bureau-foundation/termplex/lib/outbox"
	termmux "github.com/bureau-foundation/termplex/mux"
)

// DefaultPingInterval is how often idle WebSockets are pinged.
const DefaultPingInterval = 30 * time.Second

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// Registry resolves sessions. Required.
	Registry *termmux.Registry

	// SocketPath is the pipe server's socket, reported by /status.
	SocketPath string

	// Port reports the HTTP listen port for /status. It is a
	// function because the port is known only once the listener is
	// bound.
	Port func() int

	// AllowedOrigins lists the Origin values a WebSocket upgrade may
	// carry. Empty means same-host origins only; "*" allows any.
	AllowedOrigins []string

	// PingInterval defaults to DefaultPingInterval.
	PingInterval time.Duration

	// Clock drives the ping ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Handler routes the status, screen capture and WebSocket endpoints.
type Handler struct {
	registry     *termmux.Registry
	socketPath   string
	port         func() int
	pingInterval time.Duration
	clock        clock.Clock
	logger       *slog.Logger

	upgrader websocket.Upgrader
	router   *mux.Router
}

// NewHandler creates a Handler.
func NewHandler(config HandlerConfig) *Handler {
	if config.Registry == nil {
		panic("web.NewHandler: Registry is required")
	}
	if config.Logger == nil {
		panic("web.NewHandler: Logger is required")
	}
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Port == nil {
		config.Port = func() int { return 0 }
	}

	h := &Handler{
		registry:     config.Registry,
		socketPath:   config.SocketPath,
		port:         config.Port,
		pingInterval: config.PingInterval,
		clock:        config.Clock,
		logger:       config.Logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}

	router := mux.NewRouter()
	router.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/ws", h.handleWebSocket).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{name}/screen", h.handleScreen).Methods(http.MethodGet)
	h.router = router
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// originChecker allows requests without an Origin header (non-browser
// clients), origins in allowed, and, when allowed is empty, origins
// whose host matches the request's.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimSuffix(origin, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		if len(set) > 0 {
			return false
		}
		parsed, err := url.Parse(origin)
		return err == nil && strings.EqualFold(parsed.Host, r.Host)
	}
}

// Status is the /status document.
type Status struct {
	PID      int                   `json:"pid"`
	Port     int                   `json:"port"`
	SockPath string                `json:"sock_path"`
	Sessions []termmux.SessionInfo `json:"sessions"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		PID:      os.Getpid(),
		Port:     h.port(),
		SockPath: h.socketPath,
		Sessions: h.registry.List(),
	}
	if status.Sessions == nil {
		status.Sessions = []termmux.SessionInfo{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Debug("writing status failed", "error", err)
	}
}

func (h *Handler) handleScreen(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	session, ok := h.registry.Lookup(name)
	if !ok {
		http.Error(w, "session "+name+" not found", http.StatusNotFound)
		return
	}
	state := session.ScreenState()
	if state == nil {
		http.Error(w, "session "+name+" has no terminal", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(ansi.Strip(state.Text()) + "\n"))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Info("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	label := "ws:" + uuid.NewString()
	c := &connection{
		ws:           ws,
		label:        label,
		registry:     h.registry,
		logger:       h.logger.With("client", label, "remote", r.RemoteAddr),
		clock:        h.clock,
		pingInterval: h.pingInterval,
		outbound:     outbox.New[any](),
	}
	c.logger.Debug("websocket opened")
	c.serve()
	c.logger.Debug("websocket closed")
}
