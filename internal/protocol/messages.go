// Package protocol holds the player wire grammar and the JSON envelopes the
// page relay and the service exchange over the bridge websocket.
package protocol

import (
	"encoding/json"
	"time"
)

// Envelope kinds.
const (
	KindHello     = "HELLO"
	KindFrame     = "FRAME"
	KindMessage   = "MESSAGE"
	KindPageEvent = "PAGE_EVENT"
	KindPost      = "POST"
	KindSession   = "SESSION"
	KindError     = "ERROR"
)

type FrameInfo struct {
	ID       string `json:"id"`
	Selector string `json:"selector"`
	// ContentWindow is false for frames that are not loaded yet.
	ContentWindow bool `json:"contentWindow"`
}

type HelloPayload struct {
	UserAgent string      `json:"userAgent"`
	Frames    []FrameInfo `json:"frames"`
}

type MessagePayload struct {
	Origin string `json:"origin"`
	Source string `json:"source"`
	Data   string `json:"data"`
}

type PageEventPayload struct {
	Type string `json:"type"`
}

type PostPayload struct {
	Target       string `json:"target"`
	Message      string `json:"message"`
	TargetOrigin string `json:"targetOrigin"`
}

type HistoryPayload struct {
	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
}

type SessionStatus struct {
	SessionID string         `json:"sessionId"`
	VideoID   string         `json:"videoId"`
	Selector  string         `json:"selector"`
	Attached  bool           `json:"attached"`
	Connected bool           `json:"connected"`
	State     string         `json:"state"`
	Position  float64        `json:"position"`
	Duration  float64        `json:"duration"`
	Muted     bool           `json:"muted"`
	Volume    float64        `json:"volume"`
	History   HistoryPayload `json:"history"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type CommandRequest struct {
	Command string          `json:"command"`
	Value   json.RawMessage `json:"value,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Envelope struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

type InboundEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}
