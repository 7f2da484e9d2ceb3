package domain

import (
	"errors"
	"time"
)

type StreamType string

const (
	StreamLive    StreamType = "LIVE"
	StreamMogakco StreamType = "MOGAKCO"
)

type StreamStatus string

const (
	StreamActive StreamStatus = "ACTIVE"
	StreamEnded  StreamStatus = "ENDED"
)

// Stream is the persisted broadcast record, distinct from the liveness-tracked
// session that governs it.
type Stream struct {
	ID         string
	CampID     int64
	OwnerEmail Identity
	Title      string
	Type       StreamType
	Status     StreamStatus
	StartedAt  time.Time
	EndedAt    time.Time
}

type StreamEventType string

const (
	EventStart     StreamEventType = "START"
	EventHeartbeat StreamEventType = "HEARTBEAT"
	EventStop      StreamEventType = "STOP"
)

var (
	ErrEventTypeInvalid = errors.New("invalid stream event type")
	ErrEventNoSession   = errors.New("stream event has no session id")
)

type StreamEvent struct {
	EventType       StreamEventType `json:"eventType"`
	StreamSessionID string          `json:"streamSessionId"`
	CampID          int64           `json:"campId,omitempty"`
	StreamTitle     string          `json:"streamTitle,omitempty"`
}

func (e StreamEvent) Validate() error {
	switch e.EventType {
	case EventStart, EventHeartbeat, EventStop:
	default:
		return ErrEventTypeInvalid
	}
	if e.StreamSessionID == "" {
		return ErrEventNoSession
	}
	return nil
}

// BroadcastSession is what the liveness tracker keeps under a TTL key.
type BroadcastSession struct {
	StreamID string
	OwnerID  Identity
}
