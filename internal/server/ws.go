// Package server exposes the assistant over websocket and NATS transports.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/askdb-io/askdb-core/internal/assistant"
	"github.com/askdb-io/askdb-core/internal/protocol"
)

const (
	writeTimeout  = 10 * time.Second
	maxFrameBytes = 1 << 20
	outboundQueue = 128
)

// clientConn is one websocket client. A single writer goroutine drains the
// outbound queue so frame order within a session is preserved.
type clientConn struct {
	id   string
	ws   *websocket.Conn
	out  chan protocol.Message
	done chan struct{}
	once sync.Once
}

func (c *clientConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *clientConn) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// WSServer accepts websocket clients at /ws/{client_id} and routes their
// commands into the controller. It doubles as the controller's deliverer for
// connected clients.
type WSServer struct {
	controller *assistant.Controller
	log        *slog.Logger
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*clientConn
}

func NewWSServer(controller *assistant.Controller, log *slog.Logger) *WSServer {
	return &WSServer{
		controller: controller,
		log:        log.With(slog.String("component", "ws")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*clientConn),
	}
}

// Register mounts the websocket endpoint on mux.
func (s *WSServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/{client_id}", s.handleWS)
}

// Deliver implements assistant.Deliverer for websocket clients. Unknown or
// closed targets report ErrStaleTarget so the controller prunes the session.
func (s *WSServer) Deliver(sessionID string, msg protocol.Message) error {
	s.mu.Lock()
	conn, ok := s.conns[sessionID]
	s.mu.Unlock()
	if !ok {
		return assistant.ErrStaleTarget
	}
	select {
	case conn.out <- msg:
		return nil
	case <-conn.done:
		return assistant.ErrStaleTarget
	}
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		http.Error(w, "client_id required", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	conn := &clientConn{
		id:   clientID,
		ws:   ws,
		out:  make(chan protocol.Message, outboundQueue),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if prev, ok := s.conns[clientID]; ok {
		prev.close()
	}
	s.conns[clientID] = conn
	s.mu.Unlock()

	sess := s.controller.Attach(clientID)
	s.log.Info("client connected", slog.String("session_id", sess.ID))

	go conn.writeLoop()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var queries sync.WaitGroup
	defer func() {
		conn.close()
		s.mu.Lock()
		if s.conns[clientID] == conn {
			delete(s.conns, clientID)
		}
		s.mu.Unlock()
		cancel()
		queries.Wait()
		s.controller.Detach(clientID)
		s.log.Info("client disconnected", slog.String("session_id", clientID))
	}()

	conn.out <- protocol.Status("connected")

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			conn.out <- protocol.Error("I did not understand that command.")
			continue
		}

		switch cmd.Type {
		case protocol.CommandTextQuery, protocol.CommandAudioData:
			// Queries run off the read loop so interrupt and toggle
			// frames are still read while speech streams.
			queries.Add(1)
			go func(cmd protocol.Command) {
				defer queries.Done()
				s.controller.Dispatch(ctx, clientID, cmd)
			}(cmd)
		default:
			s.controller.Dispatch(ctx, clientID, cmd)
		}
	}
}
