// Package sessions issues and validates the opaque reconnection tokens
// handed to players when they join a room.
package sessions

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"

	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/clock"
)

const DefaultTTL = 30 * time.Minute

type Session struct {
	PlayerID     string
	RoomCode     string
	Token        string
	CreatedAt    time.Time
	LastActivity time.Time

	// External tokens were issued by the rewards/identity platform and are
	// only mirrored here.
	External bool
}

type Manager struct {
	mu       deadlock.Mutex
	clk      clock.Clock
	ttl      time.Duration
	log      zerolog.Logger
	sessions map[string]*Session // token -> session
	byPlayer map[string]string   // playerID -> token
}

func NewManager(clk clock.Clock, ttl time.Duration, log zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Manager{
		clk:      clk,
		ttl:      ttl,
		log:      log,
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]string),
	}
}

// CreateSession registers a token for playerID in roomCode and returns it.
// Any token previously held by the player is revoked.
func (m *Manager) CreateSession(playerID, roomCode, externalToken string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()

	token := externalToken
	if token == "" {
		token = newToken()
		m.log.Warn().
			Str("player", playerID).
			Str("room", roomCode).
			Msg("SESSIONS: minted local token; it cannot be validated by the platform")
	}

	if old, ok := m.byPlayer[playerID]; ok && old != token {
		delete(m.sessions, old)
	}

	if s, ok := m.sessions[token]; ok {
		s.PlayerID = playerID
		s.RoomCode = roomCode
		s.LastActivity = now
	} else {
		m.sessions[token] = &Session{
			PlayerID:     playerID,
			RoomCode:     roomCode,
			Token:        token,
			CreatedAt:    now,
			LastActivity: now,
			External:     externalToken != "",
		}
	}
	m.byPlayer[playerID] = token

	return token
}

// ValidateSession returns a copy of the session for token and refreshes its
// idle window. Sessions idle for longer than the TTL are deleted.
func (m *Manager) ValidateSession(token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, apperr.NotFound("session")
	}

	now := m.clk.Now()
	if now.Sub(s.LastActivity) > m.ttl {
		m.deleteLocked(s)

		return Session{}, apperr.SessionExpired("idle since %s", s.LastActivity.Format(time.RFC3339))
	}

	s.LastActivity = now

	return *s, nil
}

// SessionFor returns the live session held by playerID, if any.
func (m *Manager) SessionFor(playerID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.byPlayer[playerID]
	if !ok {
		return Session{}, false
	}

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, false
	}

	return *s, true
}

func (m *Manager) DeleteSession(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[token]; ok {
		m.deleteLocked(s)
	}
}

// DeleteSessionsForRoom drops every session bound to code and returns how
// many were removed.
func (m *Manager) DeleteSessionsForRoom(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sessions {
		if s.RoomCode == code {
			m.deleteLocked(s)
			n++
		}
	}

	return n
}

// Sweep removes expired sessions.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()

	n := 0
	for _, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.ttl {
			m.deleteLocked(s)
			n++
		}
	}

	if n > 0 {
		m.log.Debug().Int("count", n).Msg("SESSIONS: swept expired sessions")
	}

	return n
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

func (m *Manager) deleteLocked(s *Session) {
	delete(m.sessions, s.Token)
	if m.byPlayer[s.PlayerID] == s.Token {
		delete(m.byPlayer, s.PlayerID)
	}
}

func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	return hex.EncodeToString(buf)
}
