package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/domain"
	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join admits a connection into a room after the directory verified
// identity and access. Any failure here is fatal to the join attempt
// only; the connection stays open and may retry.
func (o *Orchestrator) Join(ctx context.Context, sid core.ConnID, m *protocol.Join) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	if prev, _, ok := o.Registry.RoomOf(sid); ok {
		o.Leave(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prev)).Msg("left previous room on join")
	}

	user, err := o.Directory.ResolveIdentity(ctx, m.Token)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("identity rejected")
		o.sendError(sid, "bad_token", "identity could not be verified")
		return
	}

	roomID := domain.RoomID(m.Room)
	exists, err := o.Directory.RoomExists(ctx, roomID)
	if err != nil || !exists {
		o.sendError(sid, "room_not_found", "room does not exist")
		return
	}
	if err := o.Directory.CheckAccess(ctx, roomID, user, m.Password); err != nil {
		code := "access_denied"
		if errors.Is(err, core.ErrAccessDenied) && m.Password == "" {
			code = "password_required"
		}
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).
			Str("room", string(roomID)).Msg("join denied")
		o.sendError(sid, code, "not allowed to join this room")
		return
	}

	ac := sess.Conn()
	ac.User = user
	ac.JoinedAt = time.Now()

	room := o.Rooms.GetOrCreate(roomID)
	room.AddConnection(sid, sess)
	o.Registry.UpdateRoom(sid, roomID)

	snap := room.Snapshot()
	o.send(sid, protocol.TypeWelcome, protocol.Welcome{
		You:      string(sid),
		Room:     string(roomID),
		Members:  snap.Members,
		Presence: snap.Presence,
		Document: snap.Document,
		Messages: snap.Messages,
	})

	o.broadcast(room, sid, protocol.TypeMemberJoined, protocol.MemberJoined{
		Member: protocol.MemberInfo{ConnID: string(sid), User: user, JoinedAt: ac.JoinedAt},
	})
	o.broadcastPresence(room)
	log.Info().Str("module", "orch").Str("sid", string(sid)).
		Str("user", string(user.ID)).Str("room", string(roomID)).Msg("joined")
}

func (o *Orchestrator) broadcastPresence(room core.RoomService) {
	presence := room.Presence()
	o.broadcast(room, "", protocol.TypePresence, protocol.PresenceChanged{
		Members:  room.Members(),
		Presence: presence,
		Count:    len(presence),
	})
}

// Leave removes the connection from its room and notifies the rest.
// The transport stays open; Disconnect handles the transport-level
// cascade.
func (o *Orchestrator) Leave(sid core.ConnID) {
	roomID, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		o.Registry.RemoveRoom(sid)
		return
	}
	room.RemoveConnection(sid)
	o.Registry.RemoveRoom(sid)

	ac := sess.Conn()
	o.broadcast(room, sid, protocol.TypeMemberLeft, protocol.MemberLeft{
		ConnID: string(sid),
		User:   ac.User.ID,
	})
	o.broadcastPresence(room)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("left")

	if room.ConnCount() == 0 {
		o.Docs.Flush(room)
		o.Rooms.StopRoom(roomID)
		log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("room evicted (empty)")
	}
}

// Disconnect is the implicit leave: a transport-level drop triggers
// the same cascade as an explicit leave, then unbinds the session.
func (o *Orchestrator) Disconnect(sid core.ConnID) {
	o.Leave(sid)
	o.Registry.Unbind(sid)
}

// Kick force-closes a connection (backpressure policy, room eviction).
func (o *Orchestrator) Kick(sid core.ConnID) {
	o.Leave(sid)
	o.Registry.Cancel(sid)
}

func (o *Orchestrator) EvictRoom(id domain.RoomID) {
	for _, snap := range o.Registry.MembersOfRoom(id) {
		o.Kick(snap.SID)
	}
	o.Docs.Cancel(id)
	o.Rooms.StopRoom(id)
}
