// Package sessions tracks bridged pages. Each session owns an in-memory DOM
// fed by the page relay and a Player attached to the page's player frame.
package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/twincitiespublictelevision/pbs-partner/internal/player"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrMissingSelector = errors.New("selector is required")
)

const DefaultQueryTimeout = 2 * time.Second

type Option func(*config)

type config struct {
	player       []player.Option
	queryTimeout time.Duration
	log          zerolog.Logger
}

// WithPlayerOptions is applied to the Player of every new session.
func WithPlayerOptions(opts ...player.Option) Option {
	return func(c *config) { c.player = append(c.player, opts...) }
}

func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// Ticket is handed to whoever creates a session; the relay presents the
// token when it connects.
type Ticket struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	VideoID   string `json:"videoId"`
	Selector  string `json:"selector"`
}

type Manager struct {
	cfg config

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(opts ...Option) *Manager {
	cfg := config{queryTimeout: DefaultQueryTimeout, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create registers a session for a page that will embed videoID in the frame
// matching selector.
func (m *Manager) Create(videoID, selector string) (*Ticket, error) {
	if selector == "" {
		return nil, ErrMissingSelector
	}
	id := uuid.NewString()
	token := uuid.NewString()
	session := newSession(id, token, videoID, selector, m.cfg, time.Now().UTC())

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	m.cfg.log.Info().Str("session", id).Str("video", videoID).Msg("session created")
	return &Ticket{
		SessionID: id,
		Token:     token,
		VideoID:   videoID,
		Selector:  selector,
	}, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Lookup finds a session and checks the relay's token against it.
func (m *Manager) Lookup(id, token string) (*Session, error) {
	session, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if token == "" || token != session.token {
		return nil, ErrInvalidToken
	}
	return session, nil
}

func (m *Manager) Status(ctx context.Context, id string) (protocol.SessionStatus, error) {
	session, err := m.Get(id)
	if err != nil {
		return protocol.SessionStatus{}, err
	}
	return session.Status(ctx), nil
}

func (m *Manager) Execute(ctx context.Context, id string, req protocol.CommandRequest) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	return session.Execute(ctx, req)
}

// Remove disconnects and forgets a session.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	session.Disconnect()
	m.cfg.log.Info().Str("session", id).Msg("session removed")
	return nil
}

// CleanupSession forgets session once its relay has gone away.
func (m *Manager) CleanupSession(session *Session) {
	if session == nil || session.Connected() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[session.id]; ok && current == session {
		delete(m.sessions, session.id)
		m.cfg.log.Info().Str("session", session.id).Msg("session closed by relay")
	}
}

// IDs lists the live session ids.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.sessions)
}

// Close disconnects every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := lo.Values(m.sessions)
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, session := range all {
		session.Disconnect()
	}
}
