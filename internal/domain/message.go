package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessageKind distinguishes plain text from system notices.
type ChatMessageKind string

const (
	ChatText   ChatMessageKind = "text"
	ChatSystem ChatMessageKind = "system"
)

type ChatMessage struct {
	ID      string          `json:"id"`
	Room    RoomID          `json:"room"`
	Sender  UserID          `json:"sender"`
	Content string          `json:"content"`
	Kind    ChatMessageKind `json:"kind"`
	SentAt  time.Time       `json:"sent_at"`
}

func NewChatMessage(room RoomID, sender UserID, content string, kind ChatMessageKind) ChatMessage {
	if kind == "" {
		kind = ChatText
	}
	return ChatMessage{
		ID:      uuid.NewString(),
		Room:    room,
		Sender:  sender,
		Content: content,
		Kind:    kind,
		SentAt:  time.Now(),
	}
}
