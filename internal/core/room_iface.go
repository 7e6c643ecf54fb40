package core

import (
	"errors"

	"github.com/dkeye/Coderoom/internal/domain"
	"github.com/dkeye/Coderoom/internal/protocol"
)

// ErrUnreachable is returned when a routed message addresses a
// connection that is not live in the room.
var ErrUnreachable = errors.New("target unreachable")

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []ConnID
}

// Snapshot is what a joining connection receives: every live
// connection, the de-duplicated presence list, the current document
// and the recent chat history.
type Snapshot struct {
	Members  []protocol.MemberInfo
	Presence []protocol.MemberInfo
	Document domain.Document
	Messages []domain.ChatMessage
}

// RoomService is the core-facing API of a room. It owns the connection
// set, the chat history and the shared document, but never touches
// transport resources.
type RoomService interface {
	Room() *domain.Room
	ConnCount() int

	AddConnection(sid ConnID, ms MemberSession)
	RemoveConnection(sid ConnID) (MemberSession, bool)
	SetTrack(sid ConnID, kind string, enabled bool)

	// Members lists every live connection; Presence collapses
	// connections sharing one identity to the most recently joined.
	Members() []protocol.MemberInfo
	Presence() []protocol.MemberInfo
	Snapshot() Snapshot

	Broadcast(from ConnID, data Frame) PublishResult
	BroadcastAll(data Frame) PublishResult
	SendTo(sid ConnID, data Frame) error

	AppendMessage(msg domain.ChatMessage)
	RecentMessages() []domain.ChatMessage
	SeedHistory(msgs []domain.ChatMessage)
	SetDocument(doc domain.Document)
	Document() domain.Document
}

type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	ConnCount int           `json:"conn_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
