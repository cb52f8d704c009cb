// Package livereload implements the browser live-reload channel: a
// WebSocket endpoint speaking a subset of the LiveReload protocol and the
// client script that connects to it.
//
// Connections are managed by a hub goroutine (register, unregister and
// broadcast channels); each client has a buffered send queue drained by its
// own write pump. A client whose queue is full is dropped.
package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	factoryerrors "github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendQueueSize = 64
)

// Routes served by the live-reload server.
const (
	SocketPath = "/livereload"
	ScriptPath = "/livereload.js"
)

// ProtocolOfficial7 is the protocol version announced in the handshake.
const ProtocolOfficial7 = "http://livereload.com/protocols/official-7"

type helloMessage struct {
	Command    string   `json:"command"`
	Protocols  []string `json:"protocols"`
	ServerName string   `json:"serverName,omitempty"`
}

type reloadMessage struct {
	Command string `json:"command"`
	Path    string `json:"path"`
	LiveCSS bool   `json:"liveCSS"`
}

type alertMessage struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

type incomingMessage struct {
	Command string `json:"command"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server is the live-reload hub and its HTTP endpoints.
type Server struct {
	host           string
	port           int
	originPatterns []string
	logger         logging.Logger

	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	httpServer *http.Server
	listener   net.Listener

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithOriginPatterns sets the page origins allowed to connect, as host
// patterns ("127.0.0.1:8000", "localhost:*").
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = append(s.originPatterns, patterns...) }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.WithComponent("livereload")
		}
	}
}

// New creates a live-reload server for host:port and starts its hub.
func New(host string, port int, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		host:       host,
		port:       port,
		logger:     logging.Discard(),
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client, 16),
		unregister: make(chan *websocket.Conn, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.runHub()

	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// ScriptURL returns the absolute URL of the client script.
func (s *Server) ScriptURL() string {
	return "http://" + s.Addr() + ScriptPath
}

// Handler returns the live-reload routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+SocketPath, s.handleSocket)
	mux.HandleFunc("GET "+ScriptPath, handleScript)

	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("livereload listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(s.ctx, err, "Live-reload server stopped")
		}
	}()

	s.logger.Info(ctx, "Live-reload server listening", "addr", s.Addr())

	return nil
}

// Shutdown closes every client connection and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cancel()

		s.clientsMutex.Lock()
		for conn, c := range s.clients {
			close(c.send)
			_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
		s.clients = make(map[*websocket.Conn]*client)
		s.clientsMutex.Unlock()

		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
	})

	return err
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	return len(s.clients)
}

// Reload asks every client for a full page reload.
func (s *Server) Reload(path string) {
	s.send(reloadMessage{Command: "reload", Path: path, LiveCSS: false})
}

// ReloadStyles asks every client to swap stylesheets in place.
func (s *Server) ReloadStyles(path string) {
	s.send(reloadMessage{Command: "reload", Path: path, LiveCSS: true})
}

// Error shows err in every client's error overlay.
func (s *Server) Error(err error) {
	if err == nil {
		return
	}
	s.send(alertMessage{Command: "alert", Message: factoryerrors.FormatForBrowser(err)})
}

func (s *Server) send(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error(s.ctx, err, "Failed to encode live-reload message")
		return
	}

	select {
	case s.broadcast <- data:
	case <-s.ctx.Done():
	default:
		s.logger.Warn(s.ctx, nil, "Broadcast queue full, dropping message")
	}
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendQueueSize)}

	select {
	case s.register <- c:
	case <-s.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) runHub() {
	for {
		select {
		case <-s.ctx.Done():
			return

		case c := <-s.register:
			s.clientsMutex.Lock()
			s.clients[c.conn] = c
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(s.ctx, "Client connected", "clients", count)

		case conn := <-s.unregister:
			s.removeClient(conn, websocket.StatusNormalClosure, "")

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var slow []*websocket.Conn
			for conn, c := range s.clients {
				select {
				case c.send <- message:
				default:
					slow = append(slow, conn)
				}
			}
			s.clientsMutex.RUnlock()

			for _, conn := range slow {
				s.removeClient(conn, websocket.StatusPolicyViolation, "client too slow")
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	s.clientsMutex.Lock()
	c, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
		close(c.send)
	}
	count := len(s.clients)
	s.clientsMutex.Unlock()

	if ok {
		_ = conn.Close(code, reason)
		s.logger.Debug(s.ctx, "Client disconnected", "clients", count)
	}
}

// readPump answers handshakes until the connection closes.
func (s *Server) readPump(c *client) {
	defer func() {
		select {
		case s.unregister <- c.conn:
		case <-s.ctx.Done():
		}
	}()

	for {
		_, data, err := c.conn.Read(s.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && s.ctx.Err() == nil {
				s.logger.Debug(s.ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}

		var msg incomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Command == "hello" {
			s.reply(c, helloMessage{
				Command:    "hello",
				Protocols:  []string{ProtocolOfficial7},
				ServerName: "elm-factory",
			})
		}
	}
}

func (s *Server) reply(c *client, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	if _, ok := s.clients[c.conn]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(s.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				s.logger.Debug(s.ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}
