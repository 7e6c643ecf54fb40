// Package orch wires the registry, rooms, relay and stores together
// and dispatches every inbound control message.
package orch

import (
	"context"

	"github.com/dkeye/Coderoom/internal/app"
	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomManager
	Relay     app.Relay
	Docs      *app.DocSync
	Directory core.Directory
	Messages  core.MessageStore
	Policy    app.Policy
}

// Handle dispatches one decoded inbound message. Messages for one room
// arrive here in the order the relay received them from each sender;
// there is no cross-sender ordering, which is fine because the typed
// handlers never assume it.
func (o *Orchestrator) Handle(ctx context.Context, sid core.ConnID, env protocol.Envelope, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Join:
		o.Join(ctx, sid, m)
	case *protocol.Leave:
		o.Leave(sid)
	case *protocol.Ping:
		o.send(sid, protocol.TypePong, nil)
	case *protocol.Offer, *protocol.Answer, *protocol.Candidate, *protocol.RetryRequest:
		o.Route(sid, env)
	case *protocol.MediaReady:
		o.MediaReady(sid, m)
	case *protocol.DocumentEdit:
		o.DocumentEdit(sid, m)
	case *protocol.Chat:
		o.Chat(ctx, sid, m)
	case *protocol.Cursor:
		o.Ephemeral(sid, protocol.TypeCursor, m)
	case *protocol.ToggleTrack:
		o.Toggle(sid, m)
	default:
		log.Warn().Str("module", "orch").Str("sid", string(sid)).
			Str("type", string(env.Type)).Msg("unexpected inbound message, dropped")
	}
}

// send delivers a server-built message to one connection.
func (o *Orchestrator) send(sid core.ConnID, t protocol.MsgType, payload any) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	env, err := protocol.New(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(t)).Msg("encode")
		return
	}
	data, err := env.Encode()
	if err != nil {
		return
	}
	if err := sess.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("send failed")
	}
}

func (o *Orchestrator) sendError(sid core.ConnID, code, reason string) {
	o.send(sid, protocol.TypeError, protocol.Error{Code: code, Reason: reason})
}

// broadcast builds an envelope and hands it to the relay; dropped
// slow receivers go through the backpressure policy.
func (o *Orchestrator) broadcast(room core.RoomService, sid core.ConnID, t protocol.MsgType, payload any) {
	env, err := protocol.New(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(t)).Msg("encode broadcast")
		return
	}
	env.Sender = string(sid)
	env.Room = string(room.Room().ID)
	res, err := o.Relay.Deliver(room, env)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("type", string(t)).Msg("broadcast")
		return
	}
	o.applyPolicy(room, res)
}

func (o *Orchestrator) applyPolicy(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickConnection:
			o.Kick(slow)
		case app.MarkSlow, app.NoAction:
		}
	}
}
