// Package ws is the cross-process control channel: a WebSocket endpoint
// that publishes engine state changes and accepts playback commands.
// Delivery is best-effort by design; a slow or absent client never
// blocks playback, it just misses notifications.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/readaloud/readaloud/engine"
)

// sendBuffer is each client's outbound queue. A client that falls this
// far behind is disconnected rather than back-pressuring the engine.
const sendBuffer = 16

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Dispatcher executes one control command.
type Dispatcher interface {
	Dispatch(cmd engine.Command) error
}

// errorMessage is sent to the issuing client when its command fails.
type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Server is the WebSocket hub. It implements engine.Publisher.
type Server struct {
	dispatcher Dispatcher
	logger     *log.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	httpSrv *http.Server
}

// NewServer creates a hub that forwards commands to the dispatcher.
func NewServer(addr string, dispatcher Dispatcher, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		dispatcher: dispatcher,
		logger:     logger,
		clients:    make(map[*client]struct{}),
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}
	return s
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe blocks serving the hub.
func (s *Server) ListenAndServe() error {
	s.logger.Info("control channel listening", "addr", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown closes the listener and disconnects all clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
	return s.httpSrv.Shutdown(ctx)
}

// Publish implements engine.Publisher: fan the notification out to every
// connected client, dropping any whose queue is full.
func (s *Server) Publish(n engine.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		s.logger.Warn("notification marshal failed", "type", n.Type, "err", err)
		return
	}

	s.mu.Lock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			s.logger.Warn("dropping slow control client")
			close(c.send)
			delete(s.clients, c)
		}
	}
	s.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("control client connected", "remote", conn.RemoteAddr())

	go c.writePump()
	s.readPump(c)
}

// readPump decodes commands from the client until it disconnects.
func (s *Server) readPump(c *client) {
	defer s.drop(c)

	for {
		var cmd engine.Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("control client read failed", "err", err)
			}
			return
		}
		if err := s.dispatcher.Dispatch(cmd); err != nil {
			s.logger.Warn("command rejected", "type", cmd.Type, "err", err)
			payload, merr := json.Marshal(errorMessage{Type: "ERROR", Error: err.Error()})
			if merr != nil {
				continue
			}
			s.reply(c, payload)
		}
	}
}

// reply queues a payload for one client. The registration check keeps
// writes off a queue already closed by Publish or Shutdown.
func (s *Server) reply(c *client, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// drop unregisters the client if it is still registered.
func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump drains the send queue to the socket, closing the connection
// when the queue is closed or the write fails.
func (c *client) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
