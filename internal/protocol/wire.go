package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// TrustedOrigin is the only origin the player is allowed to talk from. It
// cannot be derived from the page, so it is pinned.
const TrustedOrigin = "https://player.pbs.org"

// Separator splits a message into its name and value.
const Separator = "::"

// Public event names.
const (
	EventCreate     = "create"
	EventDestroy    = "destroy"
	EventInitialize = "initialize"
	EventPlay       = "play"
	EventStop       = "stop"
	EventPause      = "pause"
	EventComplete   = "complete"
	EventSeek       = "seek"
	EventAdPlay     = "adPlay"
	EventAdComplete = "adComplete"
	EventError      = "error"
	EventPosition   = "position"
	EventMessage    = "message"
	EventMediaStart = "MediaStart"
	EventMediaStop  = "MediaStop"
	EventConnected  = "connected"
)

// Player commands.
const (
	CmdPlay           = "play"
	CmdPause          = "pause"
	CmdSeek           = "seek"
	CmdStop           = "stop"
	CmdLoad           = "load"
	CmdSetMuted       = "setMuted"
	CmdSetVolume      = "setVolume"
	CmdSetCurrentTime = "setCurrentTime"
	CmdCurrentTime    = "currentTime"
	CmdDuration       = "duration"
	CmdMuted          = "muted"
	CmdVolume         = "volume"
	CmdEnded          = "ended"
	CmdReadyState     = "readyState"
)

// VocabularyEntry maps a peer-native token to a public event name.
type VocabularyEntry struct {
	Token string
	Event string
}

// Vocabulary is consulted in order; the first token contained in an inbound
// message wins.
var Vocabulary = []VocabularyEntry{
	{Token: "initialized", Event: EventInitialize},
	{Token: "video::playing", Event: EventPlay},
	{Token: "video::idle", Event: EventStop},
	{Token: "video::paused", Event: EventPause},
	{Token: "video::finished", Event: EventComplete},
	{Token: "video::seeking", Event: EventSeek},
	{Token: "ad::started", Event: EventAdPlay},
	{Token: "ad::complete", Event: EventAdComplete},
	{Token: "getPosition", Event: EventPosition},
	{Token: CmdCurrentTime, Event: EventPosition},
}

// AllowedEvents lists the public names that may be bound or triggered.
var AllowedEvents = []string{
	EventCreate,
	EventDestroy,
	EventInitialize,
	EventPlay,
	EventStop,
	EventPause,
	EventComplete,
	EventSeek,
	EventAdPlay,
	EventAdComplete,
	EventError,
	EventPosition,
	EventMessage,
	EventMediaStart,
	EventMediaStop,
	EventConnected,
}

// NoResponse lists the commands the player never answers.
var NoResponse = []string{
	CmdPlay,
	CmdPause,
	CmdSeek,
	CmdStop,
	CmdLoad,
	CmdSetMuted,
	CmdSetVolume,
	CmdSetCurrentTime,
}

// ExpectsResponse reports whether the player echoes command.
func ExpectsResponse(command string) bool {
	return !lo.Contains(NoResponse, command)
}

// Message is a decoded wire message.
type Message struct {
	Raw      string
	Name     string
	Value    string
	HasValue bool
}

// Decode splits data on the first separator.
func Decode(data string) Message {
	name, value, found := strings.Cut(data, Separator)
	return Message{Raw: data, Name: name, Value: value, HasValue: found}
}

// Parsed returns the best-effort decoding of the message value, or nil when
// the message has none.
func (m Message) Parsed() any {
	if !m.HasValue {
		return nil
	}
	return ParseValue(m.Value)
}

// ParseValue decodes JSON literals (numbers come back as float64) and passes
// anything else through as a string.
func ParseValue(raw string) any {
	if !gjson.Valid(raw) {
		return raw
	}
	return gjson.Parse(raw).Value()
}

// Encode builds "command" or "command::value". A nil value means none.
func Encode(command string, value any) string {
	if value == nil {
		return command
	}
	return command + Separator + FormatValue(value)
}

// FormatValue renders a command argument the way the player expects to read
// it back.
func FormatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Translate turns an inbound message into a public event. Vocabulary tokens
// match anywhere in data; a value is only extracted when data starts with
// "token::". Data that is itself an allowed name passes through verbatim.
func Translate(data string, allowed []string) (event string, value any, ok bool) {
	for _, entry := range Vocabulary {
		if !strings.Contains(data, entry.Token) {
			continue
		}
		if rest, found := strings.CutPrefix(data, entry.Token+Separator); found {
			return entry.Event, ParseValue(rest), true
		}
		return entry.Event, nil, true
	}
	if lo.Contains(allowed, data) {
		return data, nil, true
	}
	return "", nil, false
}
