// Package protocol defines the tagged control messages that cross the
// signaling relay. Every message is an Envelope carrying a type tag,
// optional routing fields and a typed payload; Decode returns the
// concrete variant so handlers can dispatch with a type switch instead
// of string event names.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Coderoom/internal/domain"
)

type MsgType string

const (
	TypeJoin         MsgType = "join"
	TypeWelcome      MsgType = "welcome"
	TypeLeave        MsgType = "leave"
	TypePresence     MsgType = "presence_changed"
	TypeMemberJoined MsgType = "member_joined"
	TypeMemberLeft   MsgType = "member_left"
	TypeOffer        MsgType = "offer"
	TypeAnswer       MsgType = "answer"
	TypeCandidate    MsgType = "candidate"
	TypeRetryRequest MsgType = "retry_request"
	TypeMediaReady   MsgType = "media_ready"
	TypeDocumentEdit MsgType = "document_edit"
	TypeChat         MsgType = "chat"
	TypeChatMessage  MsgType = "chat_message"
	TypeCursor       MsgType = "cursor"
	TypeToggleTrack  MsgType = "toggle_track"
	TypePing         MsgType = "ping"
	TypePong         MsgType = "pong"
	TypeError        MsgType = "error"
)

// Envelope is the wire frame. Sender and Target are connection ids;
// both are stamped by the relay on routed messages, never trusted from
// the client.
type Envelope struct {
	Type    MsgType         `json:"type"`
	Sender  string          `json:"sender,omitempty"`
	Target  string          `json:"target,omitempty"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Routed reports whether the message is addressed to a single
// connection rather than broadcast to the room.
func (e Envelope) Routed() bool {
	switch e.Type {
	case TypeOffer, TypeAnswer, TypeCandidate, TypeRetryRequest:
		return true
	}
	return false
}

// MemberInfo is the per-connection view shared in snapshots and
// presence updates.
type MemberInfo struct {
	ConnID    string       `json:"conn_id"`
	User      *domain.User `json:"user"`
	JoinedAt  time.Time    `json:"joined_at"`
	Muted     bool         `json:"muted,omitempty"`
	CameraOff bool         `json:"camera_off,omitempty"`
}

// Message is implemented by every decoded payload variant.
type Message interface{ isMessage() }

type Join struct {
	Room     string `json:"room"`
	Token    string `json:"token"`
	Password string `json:"password,omitempty"`
}

// Welcome is sent to the joining connection only: its own connection
// id plus the full room snapshot.
type Welcome struct {
	You      string               `json:"you"`
	Room     string               `json:"room"`
	Members  []MemberInfo         `json:"members"`
	Presence []MemberInfo         `json:"presence"`
	Document domain.Document      `json:"document"`
	Messages []domain.ChatMessage `json:"messages"`
}

type Leave struct{}

// PresenceChanged lists every live connection (the mesh view) and the
// de-duplicated display list alongside it.
type PresenceChanged struct {
	Members  []MemberInfo `json:"members"`
	Presence []MemberInfo `json:"presence"`
	Count    int          `json:"count"`
}

type MemberJoined struct {
	Member MemberInfo `json:"member"`
}

type MemberLeft struct {
	ConnID string        `json:"conn_id"`
	User   domain.UserID `json:"user"`
}

type Offer struct {
	SDP string `json:"sdp"`
}

type Answer struct {
	SDP string `json:"sdp"`
}

type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type RetryRequest struct{}

type MediaReady struct {
	User domain.UserID `json:"user"`
}

type DocumentEdit struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

type Chat struct {
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

// ChatBroadcast carries the stored message back out under the
// chat_message tag, with id and timestamp assigned by the server.
type ChatBroadcast struct {
	Message domain.ChatMessage `json:"message"`
}

type Cursor struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Label  string `json:"label,omitempty"`
}

type ToggleTrack struct {
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type Ping struct{}
type Pong struct{}

type Error struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (Join) isMessage()            {}
func (Welcome) isMessage()         {}
func (Leave) isMessage()           {}
func (PresenceChanged) isMessage() {}
func (MemberJoined) isMessage()    {}
func (MemberLeft) isMessage()      {}
func (Offer) isMessage()           {}
func (Answer) isMessage()          {}
func (Candidate) isMessage()       {}
func (RetryRequest) isMessage()    {}
func (MediaReady) isMessage()      {}
func (DocumentEdit) isMessage()    {}
func (Chat) isMessage()            {}
func (ChatBroadcast) isMessage()   {}
func (Cursor) isMessage()          {}
func (ToggleTrack) isMessage()     {}
func (Ping) isMessage()            {}
func (Pong) isMessage()            {}
func (Error) isMessage()           {}

// Decode parses a raw frame into its envelope and typed payload.
func Decode(data []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope: %w", err)
	}
	msg, err := env.Decode()
	return env, msg, err
}

// Decode returns the typed payload of an already-parsed envelope.
func (e Envelope) Decode() (Message, error) {
	var msg Message
	switch e.Type {
	case TypeJoin:
		msg = &Join{}
	case TypeWelcome:
		msg = &Welcome{}
	case TypeLeave:
		msg = &Leave{}
	case TypePresence:
		msg = &PresenceChanged{}
	case TypeMemberJoined:
		msg = &MemberJoined{}
	case TypeMemberLeft:
		msg = &MemberLeft{}
	case TypeOffer:
		msg = &Offer{}
	case TypeAnswer:
		msg = &Answer{}
	case TypeCandidate:
		msg = &Candidate{}
	case TypeRetryRequest:
		msg = &RetryRequest{}
	case TypeMediaReady:
		msg = &MediaReady{}
	case TypeDocumentEdit:
		msg = &DocumentEdit{}
	case TypeChat:
		msg = &Chat{}
	case TypeChatMessage:
		msg = &ChatBroadcast{}
	case TypeCursor:
		msg = &Cursor{}
	case TypeToggleTrack:
		msg = &ToggleTrack{}
	case TypePing:
		msg = &Ping{}
	case TypePong:
		msg = &Pong{}
	case TypeError:
		msg = &Error{}
	default:
		return nil, fmt.Errorf("unknown message type %q", e.Type)
	}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, msg); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
	}
	return msg, nil
}

// New builds an envelope around a payload.
func New(t MsgType, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Encode marshals the envelope to its wire form.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// MustEncode is for server-built messages whose payloads are always
// marshalable structs.
func MustEncode(t MsgType, payload any) []byte {
	env, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	b, err := env.Encode()
	if err != nil {
		panic(err)
	}
	return b
}
