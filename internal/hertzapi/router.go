package hertzapi

import (
	"context"
	"time"

	"github.com/RanFeng/ilog"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/hertzws"
	"github.com/twincitiespublictelevision/pbs-partner/internal/httpapi"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
	"github.com/twincitiespublictelevision/pbs-partner/internal/sessions"
)

// NewRouter registers the session API and the relay websocket on h.
func NewRouter(h *server.Hertz, manager *sessions.Manager, log zerolog.Logger) *server.Hertz {
	wsHandler := hertzws.NewHandler(manager, log)

	h.Use(recoveryMiddleware(log))
	h.Use(loggerMiddleware(log))

	h.GET("/healthz", func(c context.Context, ctx *app.RequestContext) {
		ctx.String(consts.StatusOK, "ok")
	})

	api := h.Group("/api")
	{
		group := api.Group("/sessions")
		{
			group.POST("", handleCreateSession(manager))
			group.GET("/:id", handleGetSession(manager))
			group.POST("/:id/commands", handleCommand(manager))
			group.DELETE("/:id", handleDeleteSession(manager))
		}
	}

	h.GET("/ws/sessions/:id", wsHandler.HandleWebSocket)

	return h
}

func recoveryMiddleware(log zerolog.Logger) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", string(ctx.Path())).Msg("handler panicked")
				ctx.String(consts.StatusInternalServerError, "Internal Server Error")
			}
		}()
		ctx.Next(c)
	}
}

func loggerMiddleware(log zerolog.Logger) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		log.Info().
			Str("method", string(ctx.Method())).
			Str("uri", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func handleCreateSession(manager *sessions.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		var payload createSessionRequest
		if err := ctx.Bind(&payload); err != nil {
			respondError(ctx, consts.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
		if payload.VideoID == "" || payload.Selector == "" {
			respondError(ctx, consts.StatusBadRequest, "invalid_request", "videoId and selector are required")
			return
		}

		ticket, err := manager.Create(payload.VideoID, payload.Selector)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ilog.EventInfo(c, "CreateSession", "session", ticket.SessionID, "video", ticket.VideoID)

		ctx.JSON(consts.StatusCreated, ticket)
	}
}

func handleGetSession(manager *sessions.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		status, err := manager.Status(c, ctx.Param("id"))
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, status)
	}
}

func handleCommand(manager *sessions.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		var req protocol.CommandRequest
		if err := ctx.Bind(&req); err != nil || req.Command == "" {
			respondError(ctx, consts.StatusBadRequest, "invalid_request", "command is required")
			return
		}
		session, err := manager.Get(ctx.Param("id"))
		if err != nil {
			respondErr(ctx, err)
			return
		}

		ilog.EventInfo(c, "Command_start", "session", session.ID(), "command", req.Command)
		if err := session.Execute(c, req); err != nil {
			respondErr(ctx, err)
			return
		}
		ilog.EventInfo(c, "Command_end", "session", session.ID(), "state", session.Player().GetState().String())

		ctx.JSON(consts.StatusAccepted, session.Snapshot())
	}
}

func handleDeleteSession(manager *sessions.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		id := ctx.Param("id")
		if err := manager.Remove(id); err != nil {
			respondErr(ctx, err)
			return
		}
		ilog.EventInfo(c, "DeleteSession", "session", id)
		ctx.SetStatusCode(consts.StatusNoContent)
	}
}

type createSessionRequest struct {
	VideoID  string `json:"videoId"`
	Selector string `json:"selector"`
}

func respondErr(ctx *app.RequestContext, err error) {
	status, code := httpapi.Classify(err)
	respondError(ctx, status, code, err.Error())
}

func respondError(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, protocol.Envelope{
		Kind: protocol.KindError,
		Data: protocol.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}
