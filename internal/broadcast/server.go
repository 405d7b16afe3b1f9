package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// peerQueue bounds the messages waiting for one slow peer.
const peerQueue = 64

// ServerConfig holds relay server configuration.
type ServerConfig struct {
	// Port to listen on (0 picks a free port)
	Port int

	// Logger for server activity (default: discard)
	Logger *log.Logger
}

// Server relays broadcast messages between processes over WebSocket.
// Every message a peer sends is forwarded to every connected peer,
// the sender included.
type Server struct {
	port     int
	listener net.Listener
	server   *http.Server
	logger   *log.Logger

	mu    sync.Mutex
	peers map[*peer]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// peer is one connected process with its own outbound queue.
type peer struct {
	conn *websocket.Conn
	send chan []byte
}

// NewServer creates a relay server. Call Start to listen.
func NewServer(config *ServerConfig) *Server {
	if config == nil {
		config = &ServerConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		port:   config.Port,
		logger: logger,
		peers:  make(map[*peer]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start listens and serves /ws and /health in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Relay listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every peer and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		_ = p.conn.Close(websocket.StatusGoingAway, "relay shutting down")
	}

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := s.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("failed to shut down relay: %w", serr)
		}
	}

	s.wg.Wait()
	s.logger.Println("Relay stopped")
	return err
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ClientCount returns the number of connected peers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// relay queues data on every peer. A peer whose queue is full misses it.
func (s *Server) relay(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.peers {
		select {
		case p.send <- data:
		default:
			s.logger.Printf("Warning: peer queue full, dropping message")
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	p := &peer{conn: conn, send: make(chan []byte, peerQueue)}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	count := len(s.peers)
	s.mu.Unlock()
	s.logger.Printf("Peer connected (total: %d)", count)

	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeLoop(ctx, p)
	}()

	s.readLoop(ctx, p)
	cancel()
	s.drop(p)
}

// readLoop relays every well-formed message from p until it disconnects.
func (s *Server) readLoop(ctx context.Context, p *peer) {
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			s.logger.Printf("Ignoring malformed message: %q", data)
			continue
		}
		s.relay(data)
	}
}

func (s *Server) writeLoop(ctx context.Context, p *peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-p.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := p.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Printf("Failed to send to peer: %v", err)
				_ = p.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (s *Server) drop(p *peer) {
	s.mu.Lock()
	_, ok := s.peers[p]
	delete(s.peers, p)
	count := len(s.peers)
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = p.conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Peer disconnected (total: %d)", count)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
