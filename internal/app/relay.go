package app

import (
	"errors"

	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrNoTarget = errors.New("routed message without target")

// Relay is the stateless per-message forwarder. Routed messages go to
// exactly one connection; everything else fans out to the room. It
// never inspects payloads beyond the type tag and holds no state
// across messages.
type Relay struct{}

// includesSender reports whether the sender receives its own copy of a
// broadcast. Chat and stream-readiness go to the whole room; edits,
// cursors and toggles only to the others.
func includesSender(t protocol.MsgType) bool {
	switch t {
	case protocol.TypeChat, protocol.TypeChatMessage, protocol.TypeMediaReady, protocol.TypePresence:
		return true
	}
	return false
}

// Deliver forwards env inside room. For routed messages an unknown
// target yields core.ErrUnreachable, reported back to the sender by
// the orchestrator; the relay itself only logs.
func (Relay) Deliver(room core.RoomService, env protocol.Envelope) (core.PublishResult, error) {
	data, err := env.Encode()
	if err != nil {
		return core.PublishResult{}, err
	}
	if env.Routed() {
		if env.Target == "" {
			return core.PublishResult{}, ErrNoTarget
		}
		if err := room.SendTo(core.ConnID(env.Target), data); err != nil {
			log.Warn().Str("module", "app.relay").Str("type", string(env.Type)).
				Str("sender", env.Sender).Str("target", env.Target).Err(err).Msg("route failed")
			return core.PublishResult{}, err
		}
		return core.PublishResult{SentTo: 1}, nil
	}
	from := core.ConnID(env.Sender)
	if includesSender(env.Type) {
		from = ""
	}
	return room.Broadcast(from, data), nil
}
