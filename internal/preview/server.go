// Package preview serves a live, low-rate view of the recording over a
// WebSocket: the most recently encoded JPEG frame is pushed to every
// connected client as soon as it is available. It is wired independently
// of the AVI writer's pipeline, the way the teacher's H.264 WebSocket
// handler streams off a pub/sub fan-out rather than off the file being
// written to disk.
package preview

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server publishes JPEG frames pushed via Publish to any number of
// connected WebSocket clients. A slow or absent client never backs up
// the recording pipeline: Publish updates a single latest-frame slot and
// offers the frame to each client without waiting.
type Server struct {
	addr      string
	sessionID string
	log       *logrus.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	latest   sync.Mutex
	frame    []byte
	frameSeq uint64

	httpServer *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New builds a preview server bound to addr (host:port). sessionID tags
// its access log lines so multiple recordings can be told apart.
func New(addr, sessionID string) *Server {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Server{
		addr:      addr,
		sessionID: sessionID,
		log:       log,
		clients:   make(map[*client]struct{}),
	}
}

// Start begins serving HTTP/WebSocket connections in the background. It
// returns once the listener is bound, or an error if it could not bind.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/preview", s.accessLog(s.handleWebSocket))

	s.httpServer = &http.Server{Handler: mux}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithField("session", s.sessionID).WithError(err).Error("preview server stopped unexpectedly")
		}
	}()

	s.log.WithField("session", s.sessionID).Infof("preview server listening on %s (ws endpoint /preview)", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the HTTP server down and disconnects all clients.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Publish replaces the most recently encoded frame and fans it out to
// every connected client. Frames are dropped for a client whose send
// buffer is still full rather than blocking the caller, matching the
// way the recording pipeline treats every downstream consumer as
// best-effort.
func (s *Server) Publish(jpegBytes []byte) {
	s.latest.Lock()
	s.frame = jpegBytes
	s.frameSeq++
	s.latest.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- jpegBytes:
		default:
		}
	}
}

func (s *Server) accessLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.log.WithFields(logrus.Fields{
			"session": s.sessionID,
			"remote":  r.RemoteAddr,
			"path":    r.URL.Path,
			"elapsed": time.Since(start).String(),
		}).Info("preview request")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("preview websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 4)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
	}()

	s.latest.Lock()
	last := s.frame
	s.latest.Unlock()
	if last != nil {
		if err := conn.WriteMessage(websocket.BinaryMessage, last); err != nil {
			return
		}
	}

	go s.discardReads(conn)

	for frame := range c.send {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
	}
}

// discardReads drains client reads so the connection's control frames
// (ping/pong, close) are processed; the preview channel is one-way.
func (s *Server) discardReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
