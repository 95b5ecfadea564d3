package hertzws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
	"github.com/twincitiespublictelevision/pbs-partner/internal/sessions"
)

// readTimeout bounds the silence tolerated from a relay; every envelope
// extends it.
const readTimeout = 60 * time.Second

// Handler upgrades page relay connections under hertz.
type Handler struct {
	manager  *sessions.Manager
	upgrader websocket.HertzUpgrader
	log      zerolog.Logger
}

func NewHandler(manager *sessions.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log,
		upgrader: websocket.HertzUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(ctx *app.RequestContext) bool {
				return true
			},
		},
	}
}

// HandleWebSocket serves GET /ws/sessions/:id?token=...
func (h *Handler) HandleWebSocket(_ context.Context, ctx *app.RequestContext) {
	sessionID := ctx.Param("id")
	token := ctx.Query("token")
	if token == "" {
		h.log.Warn().Str("session", sessionID).Msg("websocket: missing token")
		ctx.String(http.StatusUnauthorized, "missing token")
		return
	}

	session, err := h.manager.Lookup(sessionID, token)
	if err != nil {
		h.log.Warn().Err(err).Str("session", sessionID).Msg("websocket: lookup failed")
		status := http.StatusUnauthorized
		if errors.Is(err, sessions.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		ctx.String(status, err.Error())
		return
	}
	if session.Connected() {
		ctx.String(http.StatusConflict, sessions.ErrBusy.Error())
		return
	}

	err = h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		if err := session.BindConnection(conn); err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			conn.Close()
			return
		}
		h.log.Info().Str("session", sessionID).Msg("relay connected")
		go session.SendLoop()

		session.Send(protocol.Envelope{Kind: protocol.KindSession, Data: session.Snapshot()})

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		next := func() (int, []byte, error) {
			msgType, data, err := conn.ReadMessage()
			if err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			}
			return msgType, data, err
		}
		if err := session.Serve(next); websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			h.log.Debug().Err(err).Str("session", sessionID).Msg("relay read failed")
		}

		session.Disconnect()
		h.manager.CleanupSession(session)
		h.log.Info().Str("session", sessionID).Msg("relay disconnected")
	})
	if err != nil {
		h.log.Warn().Err(err).Str("session", sessionID).Msg("websocket: upgrade failed")
	}
}
