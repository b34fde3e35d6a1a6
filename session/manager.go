package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/room4-2/gensyn-guide/audio"
	"github.com/room4-2/gensyn-guide/config"
	"github.com/room4-2/gensyn-guide/functions"
	"github.com/room4-2/gensyn-guide/metrics"

	"github.com/google/uuid"
)

// ErrMaxSessions is returned when every allowed live session is in use.
var ErrMaxSessions = errors.New("maximum sessions reached")

const cleanupInterval = 1 * time.Minute

// Deps are the collaborators every live session is built from.
type Deps struct {
	Dialer    Dialer
	Input     audio.InputDevice
	NewOutput func() (audio.OutputContext, error)
	Metrics   *metrics.Metrics
	Store     *Store
}

type managed struct {
	ctrl      *Controller
	createdAt time.Time
}

// Manager manages all live sessions
type Manager struct {
	sessions map[string]*managed
	mu       sync.RWMutex
	config   *config.Config
	deps     Deps

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a session manager. Sessions opened through it live
// until closed or until Shutdown.
func NewManager(cfg *config.Config, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions: make(map[string]*managed),
		config:   cfg,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func ended(s Status) bool {
	return s == StatusError || s == StatusClosed
}

// OpenSession creates a live session and opens it. When Open fails the
// session is still returned, in StatusError, together with the error.
func (sm *Manager) OpenSession() (*Controller, error) {
	sm.mu.Lock()
	live := 0
	for _, s := range sm.sessions {
		if !ended(s.ctrl.Status()) {
			live++
		}
	}
	if live >= sm.config.MaxSessions {
		sm.mu.Unlock()
		return nil, ErrMaxSessions
	}

	sessionID := uuid.New().String()
	ctrl := NewController(Options{
		ID:             sessionID,
		Dialer:         sm.deps.Dialer,
		Input:          sm.deps.Input,
		NewOutput:      sm.deps.NewOutput,
		SystemPrompt:   DefaultSystemPrompt,
		Tools:          functions.Tools(),
		ToolHandler:    functions.Handle,
		FrameSize:      sm.config.CaptureFrameSize,
		MaxQueueBytes:  sm.config.MaxBufferSize,
		ConnectTimeout: sm.config.LiveConnectTimeout,
		Metrics:        sm.deps.Metrics,
	})
	entry := &managed{ctrl: ctrl, createdAt: time.Now()}
	sm.sessions[sessionID] = entry
	count := len(sm.sessions)
	sm.mu.Unlock()

	sm.deps.Metrics.SetActiveSessions(count)
	sm.deps.Store.Register(sm.ctx, sessionID, entry.createdAt)

	updates, _ := ctrl.Subscribe(32)
	go sm.mirror(entry, updates)

	log.Printf("🆕 [%s] Session created", sessionID[:8])
	return ctrl, ctrl.Open(sm.ctx)
}

// mirror copies a session's updates into the store until it closes.
func (sm *Manager) mirror(entry *managed, updates <-chan Update) {
	id := entry.ctrl.ID
	for u := range updates {
		sm.deps.Store.SetStatus(sm.ctx, id, u.Status)
		sm.deps.Store.AppendTranscript(sm.ctx, id, u.Items)
	}
}

// GetSession retrieves a session by ID
func (sm *Manager) GetSession(sessionID string) (*Controller, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.sessions[sessionID]
	if !exists {
		return nil, false
	}
	return s.ctrl, true
}

// RemoveSession closes and forgets a session. Unknown ids are ignored.
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	s, exists := sm.sessions[sessionID]
	if exists {
		delete(sm.sessions, sessionID)
	}
	count := len(sm.sessions)
	sm.mu.Unlock()

	if !exists {
		return
	}

	s.ctrl.Close()
	sm.deps.Store.Remove(ctx, sessionID)
	sm.deps.Metrics.SetActiveSessions(count)
}

// GetActiveSessionCount returns current session count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions removes sessions that ended in error or were
// closed. Open sessions are never reaped, however quiet: a conversation
// only ends by Close or by failing.
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.RLock()
	var stale []string
	for id, s := range sm.sessions {
		if ended(s.ctrl.Status()) {
			stale = append(stale, id)
		}
	}
	sm.mu.RUnlock()

	for _, id := range stale {
		log.Printf("🧹 [%s] Removing inactive session", id[:8])
		sm.RemoveSession(ctx, id)
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes all sessions
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*managed)
	sm.mu.Unlock()

	for id, s := range sessions {
		s.ctrl.Close()
		sm.deps.Store.Remove(context.Background(), id)
	}
	sm.cancel()
	sm.deps.Metrics.SetActiveSessions(0)

	if err := sm.deps.Store.Close(); err != nil {
		log.Printf("⚠️ Closing Redis: %v", err)
	}
}
