package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/dom"
	"github.com/twincitiespublictelevision/pbs-partner/internal/player"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownKind    = errors.New("unsupported message type")
	ErrInvalidValue   = errors.New("invalid command value")
	ErrBusy           = errors.New("session already has a connection")
)

// Commands accepted by Execute.
const (
	CommandPlay    = "play"
	CommandPause   = "pause"
	CommandToggle  = "toggle"
	CommandStop    = "stop"
	CommandSeek    = "seek"
	CommandMute    = "mute"
	CommandVolume  = "volume"
	CommandDestroy = "destroy"
)

// Conn is the write side of a page relay connection. Both websocket flavours
// satisfy it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const sendBuffer = 32

// Session is one bridged page: its in-memory DOM, the Player bound to the
// page's player frame and the relay connection.
type Session struct {
	id           string
	token        string
	videoID      string
	selector     string
	queryTimeout time.Duration
	log          zerolog.Logger

	global *dom.Global
	player *player.Player

	mu        sync.Mutex
	conn      Conn
	send      chan []byte
	updatedAt time.Time
}

func newSession(id, token, videoID, selector string, cfg config, now time.Time) *Session {
	log := cfg.log.With().Str("session", id).Logger()
	global := dom.NewGlobal("")
	popts := append([]player.Option{player.WithLogger(log)}, cfg.player...)
	s := &Session{
		id:           id,
		token:        token,
		videoID:      videoID,
		selector:     selector,
		queryTimeout: cfg.queryTimeout,
		log:          log,
		global:       global,
		player:       player.New(global, popts...),
		updatedAt:    now,
	}
	s.player.SetVideoID(videoID)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Player() *player.Player {
	return s.player
}

// BindConnection makes conn the session's relay. Only one relay may be bound
// at a time.
func (s *Session) BindConnection(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrBusy
	}
	s.conn = conn
	s.send = make(chan []byte, sendBuffer)
	s.updatedAt = time.Now().UTC()
	return nil
}

// Connected reports whether a relay is bound.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SendLoop writes queued envelopes to the bound connection until the session
// is disconnected or a write fails.
func (s *Session) SendLoop() {
	s.mu.Lock()
	conn, ch := s.conn, s.send
	s.mu.Unlock()
	if conn == nil {
		return
	}
	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.log.Debug().Err(err).Msg("relay write failed")
			break
		}
	}
}

// Send queues envelope for the relay. It is dropped when nothing is bound or
// the queue is full.
func (s *Session) Send(envelope protocol.Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		s.log.Error().Err(err).Str("kind", envelope.Kind).Msg("encoding envelope")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return
	}
	select {
	case s.send <- data:
	default:
		s.log.Warn().Str("kind", envelope.Kind).Msg("relay queue full, dropping envelope")
	}
}

// SendError reports a failure to the relay.
func (s *Session) SendError(code string, err error) {
	s.Send(protocol.Envelope{
		Kind: protocol.KindError,
		Data: protocol.ErrorPayload{Code: code, Message: err.Error()},
	})
}

// Disconnect detaches the player and drops the relay connection.
func (s *Session) Disconnect() {
	s.player.Destroy()

	s.mu.Lock()
	conn, ch := s.conn, s.send
	s.conn = nil
	s.send = nil
	s.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// HandleEnvelope applies one envelope from the page relay.
func (s *Session) HandleEnvelope(inbound protocol.InboundEnvelope) error {
	s.touch()
	switch inbound.Kind {
	case protocol.KindHello:
		var hello protocol.HelloPayload
		if err := json.Unmarshal(inbound.Data, &hello); err != nil {
			return fmt.Errorf("decoding hello: %w", err)
		}
		s.global.SetUserAgent(hello.UserAgent)
		for _, frame := range hello.Frames {
			s.global.AddFrame(s.newFrame(frame))
		}
		s.attach()
	case protocol.KindFrame:
		var frame protocol.FrameInfo
		if err := json.Unmarshal(inbound.Data, &frame); err != nil {
			return fmt.Errorf("decoding frame: %w", err)
		}
		el := s.newFrame(frame)
		s.global.AddFrame(el)
		if s.global.QuerySelector(s.selector) == dom.Element(el) {
			s.attach()
		}
	case protocol.KindMessage:
		var msg protocol.MessagePayload
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return fmt.Errorf("decoding message: %w", err)
		}
		s.global.DispatchEvent(dom.Event{
			Type:   dom.TypeMessage,
			Origin: msg.Origin,
			Source: s.source(msg.Source),
			Data:   msg.Data,
		})
	case protocol.KindPageEvent:
		var ev protocol.PageEventPayload
		if err := json.Unmarshal(inbound.Data, &ev); err != nil {
			return fmt.Errorf("decoding page event: %w", err)
		}
		s.global.DispatchEvent(dom.Event{Type: ev.Type})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, inbound.Kind)
	}
	return nil
}

func (s *Session) attach() {
	if s.player.AttachSelector(s.selector) {
		s.log.Info().Str("selector", s.selector).Msg("player attached")
	} else {
		s.log.Debug().Str("selector", s.selector).Msg("player frame not ready")
	}
	s.Send(protocol.Envelope{Kind: protocol.KindSession, Data: s.Snapshot()})
}

// newFrame builds a frame element whose window posts through the relay.
func (s *Session) newFrame(info protocol.FrameInfo) *dom.Frame {
	if !info.ContentWindow {
		return dom.NewFrame(info.ID, info.Selector, nil)
	}
	id := info.ID
	window := dom.NewFrameWindow(func(message, targetOrigin string) error {
		s.Send(protocol.Envelope{
			Kind: protocol.KindPost,
			Data: protocol.PostPayload{Target: id, Message: message, TargetOrigin: targetOrigin},
		})
		return nil
	})
	return dom.NewFrame(info.ID, info.Selector, window)
}

// source resolves a relayed message source. Anything that is not a known,
// loaded frame is left nil and fails source validation.
func (s *Session) source(frameID string) dom.Window {
	if frameID == "" {
		return nil
	}
	frame, ok := s.global.Frame(frameID)
	if !ok {
		return nil
	}
	return frame.ContentWindow()
}

// Execute runs a remote command against the player.
func (s *Session) Execute(ctx context.Context, req protocol.CommandRequest) error {
	s.touch()
	p := s.player
	switch req.Command {
	case CommandPlay:
		return p.Play(ctx)
	case CommandPause:
		return p.Pause(ctx)
	case CommandToggle:
		return p.TogglePlayState(ctx)
	case CommandStop:
		return p.Stop(ctx)
	case CommandMute:
		return p.SetMute(ctx)
	case CommandSeek, CommandVolume:
		var value float64
		if err := json.Unmarshal(req.Value, &value); err != nil {
			return fmt.Errorf("%w: %s needs a number", ErrInvalidValue, req.Command)
		}
		if req.Command == CommandSeek {
			return p.Seek(ctx, value)
		}
		return p.SetVolume(ctx, value)
	case CommandDestroy:
		p.Destroy()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
}

// Snapshot is the status without asking the player anything.
func (s *Session) Snapshot() protocol.SessionStatus {
	incoming, outgoing := s.player.History()
	s.mu.Lock()
	updatedAt := s.updatedAt
	s.mu.Unlock()
	return protocol.SessionStatus{
		SessionID: s.id,
		VideoID:   s.videoID,
		Selector:  s.selector,
		Attached:  s.player.Attached(),
		Connected: s.Connected(),
		State:     s.player.GetState().String(),
		History:   protocol.HistoryPayload{Incoming: incoming, Outgoing: outgoing},
		UpdatedAt: updatedAt,
	}
}

// Status is Snapshot plus live position, duration, mute and volume. Each
// query is bounded by the session's query timeout.
func (s *Session) Status(ctx context.Context) protocol.SessionStatus {
	status := s.Snapshot()
	if !status.Attached {
		return status
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	status.Position = s.player.GetPosition(ctx)
	status.Duration = s.player.GetDuration(ctx)
	status.Muted = s.player.GetMute(ctx)
	status.Volume = s.player.GetVolume(ctx)
	return status
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

// Serve feeds envelopes returned by next into the session until next fails,
// and returns that error. Bad envelopes are reported back to the relay and do
// not end the connection.
func (s *Session) Serve(next func() (int, []byte, error)) error {
	for {
		msgType, data, err := next()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var inbound protocol.InboundEnvelope
		if err := json.Unmarshal(data, &inbound); err != nil {
			s.SendError("bad_envelope", err)
			continue
		}
		if err := s.HandleEnvelope(inbound); err != nil {
			code := "bad_payload"
			if errors.Is(err, ErrUnknownKind) {
				code = "unknown_kind"
			}
			s.SendError(code, err)
		}
	}
}
