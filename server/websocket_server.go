package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/room4-2/gensyn-guide/config"
	"github.com/room4-2/gensyn-guide/messages"
	"github.com/room4-2/gensyn-guide/session"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Speaker is the one-shot narration the bridge exposes to the front-end.
type Speaker interface {
	Speak(ctx context.Context, text, id string) error
	OnChange(fn func(id string))
}

type Server struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	speaker        Speaker
	config         *config.Config

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServerWebsocket builds the presentation bridge. gatherer backs /metrics
// and may be nil.
func NewServerWebsocket(cfg *config.Config, sessionManager *session.Manager, speaker Speaker, gatherer prometheus.Gatherer) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		sessionManager: sessionManager,
		speaker:        speaker,
		config:         cfg,
		ctx:            ctx,
		cancel:         cancel,
		clients:        make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Check allowed origins
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	if speaker != nil {
		speaker.OnChange(func(id string) {
			s.broadcast(messages.NewSpeakingMessage(id))
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
		// No ReadTimeout/WriteTimeout: they would cut long-lived websockets.
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 Guide server starting on port %d", s.config.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")
	s.cancel()
	s.sessionManager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) broadcast(msg *messages.ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.queueMessage(msg)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := newClient(s, conn)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	log.Printf("✅ Front-end connected from %s", r.RemoteAddr)

	go c.writePump()
	c.readLoop()

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()

	c.close()
	log.Printf("🔌 Front-end disconnected from %s", r.RemoteAddr)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.sessionManager.GetActiveSessionCount())
}

// openLive starts a live conversation for c and forwards its updates.
func (s *Server) openLive(c *client) {
	if current := c.liveSession(); current != nil {
		st := current.Status()
		if st != session.StatusError && st != session.StatusClosed {
			c.queueMessage(messages.NewErrorMessage(current.ID, messages.ErrCodeSessionFailed, "Live session already open"))
			return
		}
		s.sessionManager.RemoveSession(s.ctx, current.ID)
	}

	ctrl, err := s.sessionManager.OpenSession()
	if errors.Is(err, session.ErrMaxSessions) {
		c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeSessionLimit, "Another conversation is already using the microphone"))
		return
	}
	if ctrl == nil {
		log.Printf("❌ Failed to create session: %v", err)
		c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeSessionFailed, session.StatusMessage(session.StatusError)))
		return
	}
	c.setLiveSession(ctrl)

	updates, cancel := ctrl.Subscribe(32)
	st := ctrl.Status()
	c.queueMessage(messages.NewStatusMessage(ctrl.ID, string(st), session.StatusMessage(st)))
	if err != nil {
		// Diagnostic detail stays in the log.
		log.Printf("❌ [%s] Failed to open live session: %v", ctrl.ID[:8], err)
		c.queueMessage(messages.NewErrorMessage(ctrl.ID, messages.ErrCodeSessionFailed, session.StatusMessage(session.StatusError)))
	}
	go c.forward(ctrl, updates, cancel)
}

func (s *Server) closeLive(c *client) {
	current := c.liveSession()
	if current == nil {
		return
	}
	c.setLiveSession(nil)
	// The final closed status reaches the client through forward.
	s.sessionManager.RemoveSession(s.ctx, current.ID)
}

func (s *Server) speak(c *client, p *messages.SpeakPayload) {
	if s.speaker == nil {
		c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "Narration is not available"))
		return
	}
	go func() {
		if err := s.speaker.Speak(s.ctx, p.Text, p.ID); err != nil {
			log.Printf("⚠️ [%s] Narration failed: %v", p.ID, err)
		}
	}()
}
