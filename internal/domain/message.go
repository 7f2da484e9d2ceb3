package domain

import (
	"encoding/json"
	"errors"
	"unicode/utf8"
)

type MessageType string

const (
	MsgJoin         MessageType = "join"
	MsgLeave        MessageType = "leave"
	MsgOffer        MessageType = "offer"
	MsgAnswer       MessageType = "answer"
	MsgICECandidate MessageType = "ice-candidate"
	MsgUserList     MessageType = "user-list"
	MsgUserJoined   MessageType = "user-joined"
	MsgUserLeft     MessageType = "user-left"
)

var (
	ErrMsgTypeEmpty = errors.New("message type empty")
	ErrMsgNoRoom    = errors.New("message has no room id")
)

// SignalMessage is the envelope relayed between peers. Data is opaque to the
// server: offer/answer/ice-candidate payloads pass through uninspected.
type SignalMessage struct {
	Type     MessageType     `json:"type"`
	Sender   Identity        `json:"sender,omitempty"`
	Receiver Identity        `json:"receiver,omitempty"`
	RoomID   RoomID          `json:"roomId,omitempty"`
	StreamID string          `json:"streamId,omitempty"`
	Nickname string          `json:"nickname,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ParseSignalMessage decodes and validates an inbound envelope. The legacy
// streamId field doubles as the room identifier when roomId is absent.
func ParseSignalMessage(raw []byte) (SignalMessage, error) {
	var m SignalMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return SignalMessage{}, err
	}
	if m.Type == "" {
		return SignalMessage{}, ErrMsgTypeEmpty
	}
	if m.RoomID == "" && m.StreamID != "" {
		m.RoomID = RoomID(m.StreamID)
	}
	if m.RoomID == "" {
		return SignalMessage{}, ErrMsgNoRoom
	}
	if _, err := NewRoomID(string(m.RoomID)); err != nil {
		return SignalMessage{}, err
	}
	m.Nickname = truncateNickname(m.Nickname)
	return m, nil
}

// truncateNickname caps the nickname at MaxNicknameLen bytes without cutting
// through a multi-byte rune.
func truncateNickname(s string) string {
	if len(s) <= MaxNicknameLen {
		return s
	}
	cut := MaxNicknameLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// IsKnown reports whether the type is one of the fixed kinds. Unknown types
// are still relayed; the distinction only matters for join/leave dispatch.
func (m SignalMessage) IsKnown() bool {
	switch m.Type {
	case MsgJoin, MsgLeave, MsgOffer, MsgAnswer, MsgICECandidate,
		MsgUserList, MsgUserJoined, MsgUserLeft:
		return true
	}
	return false
}
