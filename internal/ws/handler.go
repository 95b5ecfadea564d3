package ws

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
	"github.com/twincitiespublictelevision/pbs-partner/internal/sessions"
)

// Handler upgrades page relay connections on /ws/sessions/{id}?token=...
type Handler struct {
	manager  *sessions.Manager
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHandler(manager *sessions.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, err := extractSessionID(r.URL.Path)
	if err != nil {
		h.log.Warn().Str("path", r.URL.Path).Msg("websocket: invalid session path")
		http.Error(w, "invalid session path", http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		h.log.Warn().Str("session", sessionID).Msg("websocket: missing token")
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	session, err := h.manager.Lookup(sessionID, token)
	if err != nil {
		h.log.Warn().Err(err).Str("session", sessionID).Msg("websocket: lookup failed")
		status := http.StatusUnauthorized
		if errors.Is(err, sessions.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	if session.Connected() {
		http.Error(w, sessions.ErrBusy.Error(), http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		h.log.Warn().Err(err).Str("session", sessionID).Msg("websocket: upgrade failed")
		return
	}

	if err := session.BindConnection(conn); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		conn.Close()
		return
	}
	h.log.Info().Str("session", sessionID).Msg("relay connected")
	go session.SendLoop()

	session.Send(protocol.Envelope{Kind: protocol.KindSession, Data: session.Snapshot()})

	if err := session.Serve(conn.ReadMessage); websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		h.log.Debug().Err(err).Str("session", sessionID).Msg("relay read failed")
	}
	session.Disconnect()
	h.manager.CleanupSession(session)
	h.log.Info().Str("session", sessionID).Msg("relay disconnected")
}

func extractSessionID(path string) (string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "ws" || parts[1] != "sessions" || parts[2] == "" {
		return "", errors.New("invalid path")
	}
	return parts[2], nil
}
