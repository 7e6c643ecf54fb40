package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Coderoom/internal/domain"
)

// Frame is a raw encoded control message.
type Frame []byte

// ConnID identifies one live transport session. It is ephemeral: a
// reconnect or a second tab of the same user gets a fresh ConnID while
// the domain.UserID stays stable.
type ConnID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// ActiveConnection is the room-side record of a live transport session.
type ActiveConnection struct {
	ID        ConnID
	User      *domain.User
	JoinedAt  time.Time
	Muted     bool
	CameraOff bool
}

// MemberSession binds an ActiveConnection and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Conn() *ActiveConnection
	Signal() SignalConnection
}

var (
	ErrBadToken     = errors.New("unknown identity token")
	ErrRoomNotFound = errors.New("room not found")
	ErrAccessDenied = errors.New("access denied")
)

// Directory is the external Identity & Room Directory service. A
// failed lookup or access check is fatal to the join attempt; the
// connection is never admitted to a room.
type Directory interface {
	ResolveIdentity(ctx context.Context, token string) (*domain.User, error)
	RoomExists(ctx context.Context, id domain.RoomID) (bool, error)
	CheckAccess(ctx context.Context, id domain.RoomID, user *domain.User, password string) error
}

// DocumentStore persists the shared document. Writes happen only on
// the debounced path; failures are logged and never block editing.
type DocumentStore interface {
	SaveDocument(ctx context.Context, room domain.RoomID, doc domain.Document) error
	LoadDocument(ctx context.Context, room domain.RoomID) (domain.Document, bool, error)
}

// MessageStore persists the chat log.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg domain.ChatMessage) error
	RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error)
}
