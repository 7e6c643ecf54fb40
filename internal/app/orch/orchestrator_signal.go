package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/domain"
	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Route forwards a targeted negotiation message (offer, answer,
// candidate, retry request) verbatim. The sender field is stamped
// server-side so a client cannot spoof another connection.
func (o *Orchestrator) Route(sid core.ConnID, env protocol.Envelope) {
	roomID, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		o.sendError(sid, "not_in_room", "join a room before signaling")
		return
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	env.Sender = string(sid)
	env.Room = string(roomID)
	if _, err := o.Relay.Deliver(room, env); err != nil {
		if errors.Is(err, core.ErrUnreachable) {
			o.sendError(sid, "target_unreachable", "peer is no longer connected")
			return
		}
		// Malformed (no target): drop with a log entry, never fatal.
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).
			Str("type", string(env.Type)).Msg("unroutable message dropped")
	}
}

// MediaReady tells the room this connection attached its local media;
// already-linked peers respond with a fresh offer (renegotiation).
func (o *Orchestrator) MediaReady(sid core.ConnID, m *protocol.MediaReady) {
	_, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	room, ok := o.roomOf(sid)
	if !ok {
		return
	}
	if sess.Conn().User != nil {
		m.User = sess.Conn().User.ID
	}
	o.broadcast(room, sid, protocol.TypeMediaReady, m)
}

// DocumentEdit goes through the synchronizer: broadcast now, persist
// after the quiet period.
func (o *Orchestrator) DocumentEdit(sid core.ConnID, m *protocol.DocumentEdit) {
	room, ok := o.roomOf(sid)
	if !ok {
		return
	}
	o.Docs.ApplyEdit(room, sid, *m)
}

// Chat appends to the bounded room log, persists write-through and
// fans out to everyone including the sender.
func (o *Orchestrator) Chat(ctx context.Context, sid core.ConnID, m *protocol.Chat) {
	roomID, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	msg := domain.NewChatMessage(roomID, sess.Conn().User.ID, m.Content, domain.ChatMessageKind(m.Kind))
	room.AppendMessage(msg)
	if o.Messages != nil {
		if err := o.Messages.SaveMessage(ctx, msg); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("persist chat message")
		}
	}
	o.broadcast(room, sid, protocol.TypeChatMessage, protocol.ChatBroadcast{Message: msg})
}

// Ephemeral fans out best-effort messages (cursor positions and the
// like): no buffering, no retry, no persistence.
func (o *Orchestrator) Ephemeral(sid core.ConnID, t protocol.MsgType, payload any) {
	room, ok := o.roomOf(sid)
	if !ok {
		return
	}
	o.broadcast(room, sid, t, payload)
}

// Toggle records the mute/camera flag on the connection, then fans the
// change out like any other ephemeral message.
func (o *Orchestrator) Toggle(sid core.ConnID, m *protocol.ToggleTrack) {
	room, ok := o.roomOf(sid)
	if !ok {
		return
	}
	room.SetTrack(sid, m.Kind, m.Enabled)
	o.broadcast(room, sid, protocol.TypeToggleTrack, m)
}

func (o *Orchestrator) roomOf(sid core.ConnID) (core.RoomService, bool) {
	roomID, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return nil, false
	}
	return o.Rooms.Get(roomID)
}
