package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jeffbot/soundboard/config"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// ErrMaxSessions is returned when the server is at capacity.
var ErrMaxSessions = errors.New("maximum sessions reached")

// Manager tracks all live sessions. When Redis is reachable it also mirrors
// liveness state there; Redis being down degrades silently to
// in-process-only tracking.
type Manager struct {
	sessions   map[string]*ClientSession
	mu         sync.RWMutex
	redis      *redis.Client
	config     *config.Config
	dispatcher *Dispatcher
}

// NewManager creates a session manager with an optional Redis connection.
func NewManager(cfg *config.Config, dispatcher *Dispatcher) (*Manager, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Redis unavailable, continue without it
		redisClient = nil
	}

	return &Manager{
		sessions:   make(map[string]*ClientSession),
		redis:      redisClient,
		config:     cfg,
		dispatcher: dispatcher,
	}, nil
}

// CreateSession registers a session for an accepted connection. Fails with
// ErrMaxSessions at capacity, before any session state exists.
func (sm *Manager) CreateSession(ctx context.Context, conn *websocket.Conn) (*ClientSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.config.MaxSessions {
		return nil, ErrMaxSessions
	}

	sessionID := uuid.New().String()
	session := NewClientSession(sessionID, conn, sm.dispatcher, sm.config.KeepAlivePeriod, sm.config.MaxMessageSize)
	session.onAuthenticated = func(cs *ClientSession) {
		sm.mirrorIdentity(context.Background(), cs)
	}

	sm.storeSession(ctx, sessionID, session)
	return session, nil
}

// storeSession saves a session to memory and Redis.
func (sm *Manager) storeSession(ctx context.Context, sessionID string, session *ClientSession) {
	sm.sessions[sessionID] = session

	if sm.redis != nil {
		sm.redis.HSet(ctx, "session:"+sessionID, map[string]interface{}{
			"created_at":    session.CreatedAt.Format(time.RFC3339),
			"last_activity": session.LastSeen().Format(time.RFC3339),
			"status":        "active",
			"remote_addr":   session.RemoteAddr,
		})
		sm.redis.SAdd(ctx, "active_sessions", sessionID)
		sm.redis.Expire(ctx, "session:"+sessionID, sm.config.SessionTimeout)
	}
}

// mirrorIdentity records the bound identity once authentication succeeds.
func (sm *Manager) mirrorIdentity(ctx context.Context, session *ClientSession) {
	if sm.redis == nil {
		return
	}
	sm.redis.HSet(ctx, "session:"+session.ID, map[string]interface{}{
		"status":  "authenticated",
		"user_id": session.UserID(),
	})
}

// GetSession retrieves a session by ID.
func (sm *Manager) GetSession(sessionID string) (*ClientSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	return session, exists
}

// RemoveSession cleans up and removes a session.
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil
	}

	session.Close()
	delete(sm.sessions, sessionID)

	if sm.redis != nil {
		sm.redis.Del(ctx, "session:"+sessionID)
		sm.redis.SRem(ctx, "active_sessions", sessionID)
	}

	return nil
}

// GetActiveSessionCount returns current session count.
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// GetAuthenticatedCount returns how many sessions have a bound identity.
func (sm *Manager) GetAuthenticatedCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	count := 0
	for _, session := range sm.sessions {
		if session.Authenticated() {
			count++
		}
	}
	return count
}

// CleanupInactiveSessions removes sessions that have been idle past the
// configured timeout.
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for id, session := range sm.sessions {
		if now.Sub(session.LastSeen()) > sm.config.SessionTimeout {
			session.Close()
			delete(sm.sessions, id)

			if sm.redis != nil {
				sm.redis.Del(ctx, "session:"+id)
				sm.redis.SRem(ctx, "active_sessions", id)
			}
		}
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions.
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
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

// Shutdown closes all sessions.
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, session := range sm.sessions {
		session.Close()
		delete(sm.sessions, id)
	}

	if sm.redis != nil {
		sm.redis.Close()
	}
}
