package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
	"github.com/twincitiespublictelevision/pbs-partner/internal/sessions"
	"github.com/twincitiespublictelevision/pbs-partner/internal/ws"
)

type Server struct {
	sessions *sessions.Manager
	ws       *ws.Handler
	router   *echo.Echo
	log      zerolog.Logger
}

type createSessionRequest struct {
	VideoID  string `json:"videoId"`
	Selector string `json:"selector"`
}

func NewServer(manager *sessions.Manager, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	server := &Server{
		sessions: manager,
		ws:       ws.NewHandler(manager, log),
		router:   e,
		log:      log,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.POST("/api/sessions", server.handleCreateSession)
	e.GET("/api/sessions/:id", server.handleGetSession)
	e.POST("/api/sessions/:id/commands", server.handleCommand)
	e.DELETE("/api/sessions/:id", server.handleDeleteSession)
	e.GET("/ws/sessions/:id", server.handleWebSocket)

	return server
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var payload createSessionRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if payload.VideoID == "" || payload.Selector == "" {
		return respondError(c, http.StatusBadRequest, "invalid_request", "videoId and selector are required")
	}
	ticket, err := s.sessions.Create(payload.VideoID, payload.Selector)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, ticket)
}

func (s *Server) handleGetSession(c echo.Context) error {
	status, err := s.sessions.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleCommand(c echo.Context) error {
	var req protocol.CommandRequest
	if err := c.Bind(&req); err != nil || req.Command == "" {
		return respondError(c, http.StatusBadRequest, "invalid_request", "command is required")
	}
	session, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return respondErr(c, err)
	}
	if err := session.Execute(c.Request().Context(), req); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusAccepted, session.Snapshot())
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if err := s.sessions.Remove(c.Param("id")); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	c.Request().URL.Path = "/ws/sessions/" + c.Param("id")
	// the handler owns the connection from here on
	s.ws.ServeHTTP(c.Response(), c.Request())
	return nil
}

func respondErr(c echo.Context, err error) error {
	status, code := Classify(err)
	return respondError(c, status, code, err.Error())
}

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, protocol.Envelope{
		Kind: protocol.KindError,
		Data: protocol.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}
